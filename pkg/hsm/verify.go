// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hsm.
//
// go-hsm is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package hsm

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/jeremyhahn/go-hsm/pkg/audit"
	"github.com/jeremyhahn/go-hsm/pkg/metrics"
)

// Verify checks signature over message against the public key stored under
// keyID. The message is hashed with SHA-256 and verified with prehash
// semantics; the digest is not re-hashed.
//
// The boolean result reflects cryptographic validity: a well-formed
// signature that does not verify returns (false, nil), never an error.
// Errors are reserved for inputs that could not be interpreted at all: an
// empty message or malformed signature fails with ErrInvalidInput, and key
// material that cannot be fetched or parsed as a P-256 point fails with
// ErrInvalidKey. Callers can therefore distinguish "could not attempt
// verification" from "attempted and failed".
func (c *Client) Verify(keyID ObjectID, message, signature []byte) (bool, error) {
	start := time.Now()

	valid, err := c.verify(keyID, message, signature)
	c.record(metrics.OpVerify, start, err)

	ev := audit.NewEvent(audit.EventVerify, audit.OutcomeSuccess)
	ev.ObjectID = keyID.String()
	if err != nil {
		ev.Outcome = audit.OutcomeFailure
		ev.Detail = err.Error()
	} else {
		ev.Detail = fmt.Sprintf("valid=%t", valid)
	}
	c.recordAudit(ev)

	return valid, err
}

func (c *Client) verify(keyID ObjectID, message, signature []byte) (bool, error) {
	if len(message) == 0 {
		return false, fmt.Errorf("%w: message cannot be empty", ErrInvalidInput)
	}

	digest := sha256.Sum256(message)

	var pub PublicKey
	err := c.withDevice(func(d Device) error {
		var derr error
		pub, derr = d.GetPublicKey(keyID)
		return derr
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to get public key: %v", ErrInvalidKey, err)
	}

	verifyingKey, err := ParseP256PublicKey(pub.Bytes)
	if err != nil {
		return false, err
	}

	r, s, err := ParseECDSASignature(signature)
	if err != nil {
		return false, err
	}

	return ecdsa.Verify(verifyingKey, digest[:], r, s), nil
}

// ParseP256PublicKey normalizes device-native public key bytes into an ECDSA
// P-256 public key. A 65-byte input starting with 0x04 is taken as an
// already-uncompressed SEC1 point; a 64-byte input is the bare x||y
// coordinates and gets the 0x04 prefix prepended. Any other shape, and any
// byte sequence that does not decode to a point on the curve, fails with
// ErrInvalidKey.
func ParseP256PublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	var sec1 []byte
	switch {
	case len(raw) == 65 && raw[0] == 0x04:
		sec1 = raw
	case len(raw) == 64:
		sec1 = make([]byte, 0, 65)
		sec1 = append(sec1, 0x04)
		sec1 = append(sec1, raw...)
	default:
		return nil, fmt.Errorf("%w: unexpected public key length: %d bytes (expected 64 or 65)",
			ErrInvalidKey, len(raw))
	}

	x, y := elliptic.Unmarshal(elliptic.P256(), sec1)
	if x == nil {
		return nil, fmt.Errorf("%w: malformed P-256 point", ErrInvalidKey)
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// ecdsaSignature is the ASN.1 structure of a DER-encoded ECDSA signature.
type ecdsaSignature struct {
	R, S *big.Int
}

// ParseECDSASignature normalizes signature bytes into the (r, s) integer
// pair. A signature longer than 64 bytes whose first byte is the DER
// SEQUENCE tag 0x30 is parsed as DER; exactly 64 bytes are parsed as raw
// concatenated r||s (32 bytes each). Any other shape, and malformed bytes
// within either branch, fail with ErrInvalidInput.
func ParseECDSASignature(signature []byte) (r, s *big.Int, err error) {
	switch {
	case len(signature) > 64 && signature[0] == 0x30:
		var sig ecdsaSignature
		rest, err := asn1.Unmarshal(signature, &sig)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: malformed DER signature: %v", ErrInvalidInput, err)
		}
		if len(rest) != 0 {
			return nil, nil, fmt.Errorf("%w: trailing bytes after DER signature", ErrInvalidInput)
		}
		return sig.R, sig.S, nil

	case len(signature) == 64:
		r = new(big.Int).SetBytes(signature[:32])
		s = new(big.Int).SetBytes(signature[32:])
		return r, s, nil

	default:
		return nil, nil, fmt.Errorf("%w: invalid signature length: %d bytes (expected 64 for raw or >64 for DER)",
			ErrInvalidInput, len(signature))
	}
}

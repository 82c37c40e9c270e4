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
	"fmt"
	"strconv"
	"strings"
)

// ObjectID identifies one object on the device. Ids are 16-bit and assigned
// at import or generation time; id 0 is reserved by the device.
type ObjectID uint16

// String returns the canonical lowercase hex form, e.g. "0xf35b".
func (id ObjectID) String() string {
	return fmt.Sprintf("0x%04x", uint16(id))
}

// Hex returns the bare lowercase hex form without the 0x prefix.
func (id ObjectID) Hex() string {
	return fmt.Sprintf("%04x", uint16(id))
}

// ParseObjectID parses decimal ("62299") or hex ("0xf35b", "f35b") forms.
func ParseObjectID(s string) (ObjectID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: object id cannot be empty", ErrInvalidInput)
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	} else if strings.IndexFunc(s, isHexLetter) >= 0 {
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid object id %q", ErrInvalidInput, s)
	}
	return ObjectID(v), nil
}

func isHexLetter(r rune) bool {
	return (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ObjectType enumerates the kinds of objects the device stores. Values match
// the device wire protocol.
type ObjectType uint8

const (
	// TypeOpaque is arbitrary opaque data, e.g. an X.509 certificate.
	TypeOpaque ObjectType = 0x01

	// TypeAuthenticationKey establishes sessions with the device.
	// Objects of this type can never be deleted through this package.
	TypeAuthenticationKey ObjectType = 0x02

	// TypeAsymmetricKey is a private key for signing or decryption.
	TypeAsymmetricKey ObjectType = 0x03

	// TypeWrapKey imports and exports other objects under wrap.
	TypeWrapKey ObjectType = 0x04

	// TypeHMACKey computes HMACs.
	TypeHMACKey ObjectType = 0x05

	// TypeTemplate holds validation templates, e.g. for SSH certificates.
	TypeTemplate ObjectType = 0x06

	// TypeOTPAEADKey creates and decrypts Yubico OTP AEADs.
	TypeOTPAEADKey ObjectType = 0x07
)

// String returns the lowercase dashed name used in listings and CLI output.
func (t ObjectType) String() string {
	switch t {
	case TypeOpaque:
		return "opaque"
	case TypeAuthenticationKey:
		return "authentication-key"
	case TypeAsymmetricKey:
		return "asymmetric-key"
	case TypeWrapKey:
		return "wrap-key"
	case TypeHMACKey:
		return "hmac-key"
	case TypeTemplate:
		return "template"
	case TypeOTPAEADKey:
		return "otp-aead-key"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Valid reports whether t is a known object type.
func (t ObjectType) Valid() bool {
	return t >= TypeOpaque && t <= TypeOTPAEADKey
}

// ParseObjectType parses the dashed names produced by String. Parsing is
// case-insensitive and tolerates underscores in place of dashes.
func ParseObjectType(s string) (ObjectType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "opaque":
		return TypeOpaque, nil
	case "authentication-key", "auth-key":
		return TypeAuthenticationKey, nil
	case "asymmetric-key":
		return TypeAsymmetricKey, nil
	case "wrap-key":
		return TypeWrapKey, nil
	case "hmac-key":
		return TypeHMACKey, nil
	case "template":
		return TypeTemplate, nil
	case "otp-aead-key":
		return TypeOTPAEADKey, nil
	default:
		return 0, fmt.Errorf("%w: unknown object type %q", ErrInvalidInput, s)
	}
}

// Algorithm identifies the cryptographic algorithm bound to an object.
// Values match the device wire protocol.
type Algorithm uint8

const (
	AlgorithmRSA2048                 Algorithm = 9
	AlgorithmRSA3072                 Algorithm = 10
	AlgorithmRSA4096                 Algorithm = 11
	AlgorithmECP256                  Algorithm = 12
	AlgorithmECP384                  Algorithm = 13
	AlgorithmECP521                  Algorithm = 14
	AlgorithmECK256                  Algorithm = 15
	AlgorithmHMACSHA256              Algorithm = 20
	AlgorithmAES128CCMWrap           Algorithm = 29
	AlgorithmOpaqueData              Algorithm = 30
	AlgorithmOpaqueX509Certificate   Algorithm = 31
	AlgorithmTemplateSSH             Algorithm = 36
	AlgorithmYubicoAESAuthentication Algorithm = 38
	AlgorithmECDSASHA256             Algorithm = 43
	AlgorithmEd25519                 Algorithm = 46
)

// String returns the lowercase name used in listings and CLI output.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmRSA2048:
		return "rsa2048"
	case AlgorithmRSA3072:
		return "rsa3072"
	case AlgorithmRSA4096:
		return "rsa4096"
	case AlgorithmECP256:
		return "ecp256"
	case AlgorithmECP384:
		return "ecp384"
	case AlgorithmECP521:
		return "ecp521"
	case AlgorithmECK256:
		return "eck256"
	case AlgorithmHMACSHA256:
		return "hmac-sha256"
	case AlgorithmAES128CCMWrap:
		return "aes128-ccm-wrap"
	case AlgorithmOpaqueData:
		return "opaque-data"
	case AlgorithmOpaqueX509Certificate:
		return "opaque-x509-certificate"
	case AlgorithmTemplateSSH:
		return "template-ssh"
	case AlgorithmYubicoAESAuthentication:
		return "aes128-yubico-authentication"
	case AlgorithmECDSASHA256:
		return "ecdsa-sha256"
	case AlgorithmEd25519:
		return "ed25519"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// LabelSize is the maximum byte length of an object label on the device.
const LabelSize = 40

// Label is the human-readable label attached to a device object. The device
// stores labels in a fixed 40-byte field; this type enforces the limit at
// the boundary instead of truncating silently.
type Label string

// NewLabel validates s as a device label.
func NewLabel(s string) (Label, error) {
	if len(s) > LabelSize {
		return "", fmt.Errorf("%w: label exceeds %d bytes", ErrInvalidInput, LabelSize)
	}
	return Label(s), nil
}

// String returns the label text.
func (l Label) String() string {
	return string(l)
}

// Origin describes how an object's material came to exist on the device.
type Origin uint8

const (
	// OriginGenerated marks material generated on the device.
	OriginGenerated Origin = 0x01

	// OriginImported marks material imported from outside the device.
	OriginImported Origin = 0x02
)

// String returns the lowercase origin name.
func (o Origin) String() string {
	switch o {
	case OriginGenerated:
		return "generated"
	case OriginImported:
		return "imported"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(o))
	}
}

// ObjectEntry is one row of a device listing: the minimal identity of an
// object before its detailed info is fetched.
type ObjectEntry struct {
	ID ObjectID `json:"id" yaml:"id"`

	Type ObjectType `json:"type" yaml:"type"`

	// Sequence increments each time an object is written to this id slot.
	Sequence uint8 `json:"sequence" yaml:"sequence"`
}

// ObjectInfo is the detailed metadata of one device object. It is immutable
// once read and re-read on every listing; nothing in this package caches it
// across calls.
type ObjectInfo struct {
	ID ObjectID `json:"id" yaml:"id"`

	Type ObjectType `json:"type" yaml:"type"`

	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`

	// Sequence increments each time an object is written to this id slot.
	Sequence uint8 `json:"sequence" yaml:"sequence"`

	Label Label `json:"label" yaml:"label"`

	// Size is the object length in bytes as reported by the device.
	Size uint16 `json:"size" yaml:"size"`

	// Domains is the 16-bit domain access mask.
	Domains uint16 `json:"domains" yaml:"domains"`

	Origin Origin `json:"origin" yaml:"origin"`
}

// ObjectSummary is an ObjectInfo enriched for display: asymmetric keys carry
// their public key hex-encoded, all other types carry an empty string.
// Summaries are produced fresh per listing request.
type ObjectSummary struct {
	ID ObjectID `json:"id" yaml:"id"`

	Type ObjectType `json:"type" yaml:"type"`

	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`

	Sequence uint8 `json:"sequence" yaml:"sequence"`

	Label Label `json:"label" yaml:"label"`

	// PublicKey is the lowercase hex encoding of the device-native public
	// key bytes, without separators. Empty for non-asymmetric objects.
	PublicKey string `json:"public_key,omitempty" yaml:"public_key,omitempty"`
}

// PublicKey is the raw point material returned by the device for a key id,
// either 64 bytes (x||y) or 65 bytes (0x04||x||y) for P-256 keys.
type PublicKey struct {
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`

	Bytes []byte `json:"bytes" yaml:"bytes"`
}

// Hex returns the lowercase hex encoding of the key bytes.
func (p PublicKey) Hex() string {
	return fmt.Sprintf("%x", p.Bytes)
}

// ObjectFilter narrows ListObjects results. The zero value matches every
// object; a nonzero field must match exactly.
type ObjectFilter struct {
	// ID matches a single object id when nonzero.
	ID ObjectID

	// Type matches a single object type when nonzero.
	Type ObjectType

	// Label matches the exact label when nonempty.
	Label Label
}

// Matches reports whether info satisfies the filter.
func (f ObjectFilter) Matches(info ObjectInfo) bool {
	if f.ID != 0 && info.ID != f.ID {
		return false
	}
	if f.Type != 0 && info.Type != f.Type {
		return false
	}
	if f.Label != "" && info.Label != f.Label {
		return false
	}
	return true
}

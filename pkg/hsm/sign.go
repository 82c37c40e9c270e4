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
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-hsm/pkg/audit"
	"github.com/jeremyhahn/go-hsm/pkg/metrics"
)

// Sign hashes message with SHA-256 and requests a prehashed ECDSA signature
// under keyID from the device. The digest is sent to the device, never the
// raw message. The device's signature bytes are returned unmodified; they
// may be raw r||s or DER depending on the connector.
//
// An empty message fails with ErrInvalidInput before any device call. A
// remote failure, including a capability released by Disconnect, surfaces
// as ErrSigningFailed wrapping the device detail.
func (c *Client) Sign(keyID ObjectID, message []byte) ([]byte, error) {
	start := time.Now()

	if len(message) == 0 {
		err := fmt.Errorf("%w: message cannot be empty", ErrInvalidInput)
		c.record(metrics.OpSign, start, err)
		return nil, err
	}

	digest := sha256.Sum256(message)

	var signature []byte
	err := c.withDevice(func(d Device) error {
		var derr error
		signature, derr = d.SignPrehash(keyID, digest[:])
		return derr
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSigningFailed, err)
		c.record(metrics.OpSign, start, err)
		ev := audit.NewEvent(audit.EventSign, audit.OutcomeFailure)
		ev.ObjectID = keyID.String()
		ev.Detail = err.Error()
		c.recordAudit(ev)
		return nil, err
	}

	c.record(metrics.OpSign, start, nil)
	ev := audit.NewEvent(audit.EventSign, audit.OutcomeSuccess)
	ev.ObjectID = keyID.String()
	c.recordAudit(ev)
	c.log.Debug("signed message",
		"key_id", keyID.String(),
		"signature_bytes", len(signature))
	return signature, nil
}

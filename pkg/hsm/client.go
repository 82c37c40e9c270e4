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
	"errors"
	"sync"
	"time"

	"github.com/jeremyhahn/go-hsm/pkg/audit"
	"github.com/jeremyhahn/go-hsm/pkg/logging"
	"github.com/jeremyhahn/go-hsm/pkg/metrics"
)

// Client wraps a Device behind a mutual-exclusion lock so that at most one
// remote call is in flight at a time. Concurrent callers serialize in
// FIFO-ish lock acquisition order; no two operations race against each
// other's device-visible effects.
//
// Operations borrow the device for the duration of one call and never retain
// it. Once Close releases the capability, every operation fails with its own
// error kind wrapping ErrSessionClosed.
type Client struct {
	mu        sync.Mutex
	dev       Device
	connector string
	sessionID string
	log       *logging.Logger
	auditor   audit.Auditor
}

// newClient wraps an opened device. Only the session manager constructs
// clients; everything downstream receives a borrowed reference.
func newClient(dev Device, connector, sessionID string, log *logging.Logger, auditor audit.Auditor) *Client {
	if log == nil {
		log = logging.DefaultLogger()
	}
	if auditor == nil {
		auditor = audit.NewNopAuditor()
	}
	return &Client{
		dev:       dev,
		connector: connector,
		sessionID: sessionID,
		log:       log,
		auditor:   auditor,
	}
}

// withDevice runs fn while holding the exclusive device lock. It fails with
// ErrSessionClosed once the capability has been released; callers translate
// that into the failure kind of the operation in progress.
func (c *Client) withDevice(fn func(Device) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return ErrSessionClosed
	}
	return fn(c.dev)
}

// Connector returns the name of the connector this session runs on.
func (c *Client) Connector() string {
	return c.connector
}

// SessionID returns the correlation id assigned at connect time.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Close terminates the session and releases the device capability.
// Idempotent; subsequent operations fail with their own error kinds.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}

// record tracks one finished operation in the metrics registry.
func (c *Client) record(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		metrics.RecordError(op, c.connector, errorType(err))
	}
	metrics.RecordOperation(op, c.connector, status, time.Since(start).Seconds())
}

// recordAudit stamps the event with session context and hands it to the
// auditor. Audit write failures are logged, never propagated to the caller.
func (c *Client) recordAudit(event *audit.Event) {
	event.SessionID = c.sessionID
	event.Connector = c.connector
	if err := c.auditor.Record(event); err != nil {
		c.log.Warn("audit record failed", "error", err.Error())
	}
}

// errorType maps an operation error onto a stable metrics label.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrSigningFailed):
		return "signing_failed"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrListingFailed):
		return "listing_failed"
	case errors.Is(err, ErrDeletionFailed):
		return "deletion_failed"
	case errors.Is(err, ErrGetPublicKeyFailed):
		return "get_public_key_failed"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrObjectNotFound):
		return "object_not_found"
	default:
		return "internal"
	}
}

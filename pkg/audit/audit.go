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

// Package audit provides an adapter interface for audit logging of device
// operations, allowing calling applications to plug in custom audit trail
// strategies while offering memory and file-backed defaults.
//
// Audit events never contain credentials or key material; only object
// identifiers, outcomes, and opaque error detail strings are recorded.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event
type EventType string

const (
	// Authentication events
	EventAuthSuccess EventType = "auth.success"
	EventAuthFailure EventType = "auth.failure"
	EventAuthLogout  EventType = "auth.logout"

	// Cryptographic operation events
	EventSign   EventType = "crypto.sign"
	EventVerify EventType = "crypto.verify"

	// Object events
	EventObjectList   EventType = "object.list"
	EventObjectInfo   EventType = "object.info"
	EventObjectPubKey EventType = "object.public_key"
	EventObjectDelete EventType = "object.delete"
)

// Outcome indicates the result of an operation
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"

	// OutcomeDenied marks operations rejected by local policy before any
	// device call, such as deleting an authentication key.
	OutcomeDenied Outcome = "denied"
)

// Event represents a single audit log entry.
type Event struct {
	// ID is a unique identifier for this audit event
	ID string `json:"id"`

	// Timestamp when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event
	Type EventType `json:"type"`

	// Outcome indicates whether the operation succeeded
	Outcome Outcome `json:"outcome"`

	// SessionID correlates this event with an authenticated session
	SessionID string `json:"session_id,omitempty"`

	// Connector names the device connector the session runs on
	Connector string `json:"connector,omitempty"`

	// ObjectID is the hex-encoded id of the object acted on, if any
	ObjectID string `json:"object_id,omitempty"`

	// ObjectType is the object type acted on, if any
	ObjectType string `json:"object_type,omitempty"`

	// Detail carries the opaque error detail string on failure
	Detail string `json:"detail,omitempty"`
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(typ EventType, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Outcome:   outcome,
	}
}

// Auditor records audit events.
//
// Implementations must be safe for concurrent use and must never block
// indefinitely; a failed write is returned as an error, not retried.
type Auditor interface {
	// Record persists a single audit event
	Record(event *Event) error

	// Close releases any resources held by the auditor
	Close() error
}

// NopAuditor discards all events. Used when auditing is disabled.
type NopAuditor struct{}

// NewNopAuditor creates an auditor that discards every event.
func NewNopAuditor() *NopAuditor {
	return &NopAuditor{}
}

// Record discards the event.
func (n *NopAuditor) Record(event *Event) error { return nil }

// Close is a no-op.
func (n *NopAuditor) Close() error { return nil }

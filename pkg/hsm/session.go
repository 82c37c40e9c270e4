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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-hsm/pkg/audit"
	"github.com/jeremyhahn/go-hsm/pkg/logging"
	"github.com/jeremyhahn/go-hsm/pkg/metrics"
)

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithLogger sets the logger used by the manager and its clients.
func WithLogger(log *logging.Logger) SessionManagerOption {
	return func(s *SessionManager) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAuditor sets the auditor receiving session and operation events.
func WithAuditor(auditor audit.Auditor) SessionManagerOption {
	return func(s *SessionManager) {
		if auditor != nil {
			s.auditor = auditor
		}
	}
}

// SessionManager owns at most one authenticated device session and gates all
// operations behind it. It is created without a session; Connect establishes
// one explicitly and Disconnect tears it down. A session is never silently
// re-created.
//
// The manager also tracks the session-scoped "last signature" buffer: it is
// overwritten on each successful Sign, cleared by ClearLastSignature, and
// cleared again on Disconnect or a successful reconnect.
//
// All methods are safe for concurrent use.
type SessionManager struct {
	mu        sync.RWMutex
	client    *Client
	authKeyID ObjectID
	lastSig   []byte
	log       *logging.Logger
	auditor   audit.Auditor
}

// NewSessionManager creates a manager with no active session.
func NewSessionManager(opts ...SessionManagerOption) *SessionManager {
	s := &SessionManager{
		log:     logging.DefaultLogger(),
		auditor: audit.NewNopAuditor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect derives credentials from the password, opens a session through the
// connector, and installs it as the active session. Any prior session is
// replaced atomically only on success and closed afterwards; a failed
// attempt fails with ErrAuthenticationFailed and leaves an existing session
// untouched.
//
// The password is copied internally and wiped once the handshake finishes;
// it never appears in logs or audit events.
func (s *SessionManager) Connect(connector Connector, authKeyID ObjectID, password []byte) error {
	start := time.Now()

	creds, err := NewCredentials(authKeyID, password)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		s.recordConnect(connector.Name(), start, err)
		return err
	}
	defer creds.Zeroize()

	dev, err := connector.Open(creds)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		s.recordConnect(connector.Name(), start, err)
		s.log.Warn("authentication failed",
			"connector", connector.Name(),
			"auth_key_id", authKeyID.String())
		return err
	}

	sessionID := uuid.New().String()
	client := newClient(dev, connector.Name(), sessionID, s.log, s.auditor)

	s.mu.Lock()
	prior := s.client
	s.client = client
	s.authKeyID = authKeyID
	s.lastSig = nil
	s.mu.Unlock()

	if prior != nil {
		if cerr := prior.Close(); cerr != nil {
			s.log.Warn("failed to close replaced session", "error", cerr.Error())
		}
	}

	s.recordConnect(connector.Name(), start, nil)
	metrics.SetSessionActive(connector.Name(), true)

	ev := audit.NewEvent(audit.EventAuthSuccess, audit.OutcomeSuccess)
	ev.SessionID = sessionID
	ev.Connector = connector.Name()
	ev.ObjectID = authKeyID.String()
	ev.ObjectType = TypeAuthenticationKey.String()
	s.recordAudit(ev)

	s.log.Info("session established",
		"connector", connector.Name(),
		"auth_key_id", authKeyID.String(),
		"session_id", sessionID)
	return nil
}

// recordConnect tracks the outcome of a connect attempt.
func (s *SessionManager) recordConnect(connector string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		metrics.RecordError(metrics.OpConnect, connector, errorType(err))

		ev := audit.NewEvent(audit.EventAuthFailure, audit.OutcomeFailure)
		ev.Connector = connector
		ev.Detail = err.Error()
		s.recordAudit(ev)
	}
	metrics.RecordOperation(metrics.OpConnect, connector, status, time.Since(start).Seconds())
}

// recordAudit hands an event to the auditor. Failures are logged, never
// propagated.
func (s *SessionManager) recordAudit(event *audit.Event) {
	if err := s.auditor.Record(event); err != nil {
		s.log.Warn("audit record failed", "error", err.Error())
	}
}

// IsAuthenticated reports whether an active session is held.
func (s *SessionManager) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// ActiveClient returns the active session's client. It fails with
// ErrAuthenticationFailed when no session is held. Callers use the client
// for the duration of their call and never cache it across Disconnect.
func (s *SessionManager) ActiveClient() (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, fmt.Errorf("%w: no active session", ErrAuthenticationFailed)
	}
	return s.client, nil
}

// AuthKeyID returns the authentication key id of the active session, and
// whether a session is held at all.
func (s *SessionManager) AuthKeyID() (ObjectID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return 0, false
	}
	return s.authKeyID, true
}

// SessionID returns the correlation id of the active session, if any.
func (s *SessionManager) SessionID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return "", false
	}
	return s.client.SessionID(), true
}

// Disconnect drops the active session, closes the underlying device, and
// clears all session state including the last-signature buffer. It is
// idempotent and has no error path; close failures are logged.
func (s *SessionManager) Disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.authKeyID = 0
	s.lastSig = nil
	s.mu.Unlock()

	if client == nil {
		return
	}

	start := time.Now()
	if err := client.Close(); err != nil {
		s.log.Warn("failed to close session", "error", err.Error())
	}
	metrics.RecordOperation(metrics.OpDisconnect, client.Connector(), metrics.StatusSuccess,
		time.Since(start).Seconds())
	metrics.SetSessionActive(client.Connector(), false)

	ev := audit.NewEvent(audit.EventAuthLogout, audit.OutcomeSuccess)
	ev.SessionID = client.SessionID()
	ev.Connector = client.Connector()
	s.recordAudit(ev)

	s.log.Info("session closed",
		"connector", client.Connector(),
		"session_id", client.SessionID())
}

// Sign signs message under keyID through the active session and remembers
// the produced signature as the session's last signature.
func (s *SessionManager) Sign(keyID ObjectID, message []byte) ([]byte, error) {
	client, err := s.ActiveClient()
	if err != nil {
		return nil, err
	}
	signature, err := client.Sign(keyID, message)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastSig = append([]byte(nil), signature...)
	s.mu.Unlock()
	return signature, nil
}

// Verify verifies signature over message against keyID through the active
// session.
func (s *SessionManager) Verify(keyID ObjectID, message, signature []byte) (bool, error) {
	client, err := s.ActiveClient()
	if err != nil {
		return false, err
	}
	return client.Verify(keyID, message, signature)
}

// ListObjectSummaries lists object summaries through the active session.
func (s *SessionManager) ListObjectSummaries(filters ...ObjectFilter) ([]ObjectSummary, error) {
	client, err := s.ActiveClient()
	if err != nil {
		return nil, err
	}
	return client.ListObjectSummaries(filters...)
}

// GetObjectInfo fetches one object's metadata through the active session.
func (s *SessionManager) GetObjectInfo(id ObjectID, typ ObjectType) (ObjectInfo, error) {
	client, err := s.ActiveClient()
	if err != nil {
		return ObjectInfo{}, err
	}
	return client.GetObjectInfo(id, typ)
}

// GetPublicKey fetches raw public key material through the active session.
func (s *SessionManager) GetPublicKey(id ObjectID) (PublicKey, error) {
	client, err := s.ActiveClient()
	if err != nil {
		return PublicKey{}, err
	}
	return client.GetPublicKey(id)
}

// DeleteObject deletes one object through the active session, subject to
// the authentication-key guard.
func (s *SessionManager) DeleteObject(id ObjectID, typ ObjectType) error {
	client, err := s.ActiveClient()
	if err != nil {
		return err
	}
	return client.DeleteObject(id, typ)
}

// LastSignature returns a copy of the most recent signature produced by
// Sign in this session, and whether one is held.
func (s *SessionManager) LastSignature() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSig == nil {
		return nil, false
	}
	return append([]byte(nil), s.lastSig...), true
}

// ClearLastSignature drops the last-signature buffer.
func (s *SessionManager) ClearLastSignature() {
	s.mu.Lock()
	s.lastSig = nil
	s.mu.Unlock()
}

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

package audit

import (
	"fmt"
	"sync"
	"time"
)

// MemoryAuditor implements Auditor with in-memory storage. It is thread-safe
// and suitable for development, testing, or interactive sessions where a
// persistent audit trail is not required.
//
// Note: all events are lost on process exit. For durable trails use
// FileAuditor or a custom Auditor implementation.
type MemoryAuditor struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryAuditor creates a new in-memory auditor.
func NewMemoryAuditor() *MemoryAuditor {
	return &MemoryAuditor{
		events: make([]*Event, 0, 256),
	}
}

// Record stores an audit event in memory.
func (m *MemoryAuditor) Record(event *Event) error {
	if event == nil {
		return fmt.Errorf("audit: event cannot be nil")
	}
	if event.ID == "" {
		return fmt.Errorf("audit: event id cannot be empty")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of all recorded events in insertion order.
func (m *MemoryAuditor) Events() []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsByType returns recorded events of the given type in insertion order.
func (m *MemoryAuditor) EventsByType(typ EventType) []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Event
	for _, e := range m.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (m *MemoryAuditor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Close is a no-op for the memory auditor.
func (m *MemoryAuditor) Close() error { return nil }

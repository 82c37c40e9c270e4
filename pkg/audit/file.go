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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileAuditor implements Auditor by appending one JSON object per line to a
// log file. Lines are flushed on every Record call so a crash loses at most
// the event being written.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the audit log at path in append mode.
// Parent directories are created as needed with 0700 permissions; the log
// itself is created with 0600 since it records object identifiers.
func NewFileAuditor(path string) (*FileAuditor, error) {
	if path == "" {
		return nil, fmt.Errorf("audit: log path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("audit: create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log file: %w", err)
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Record appends the event to the log as a single JSON line.
func (f *FileAuditor) Record(event *Event) error {
	if event == nil {
		return fmt.Errorf("audit: event cannot be nil")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return fmt.Errorf("audit: auditor is closed")
	}
	if err := f.enc.Encode(event); err != nil {
		return fmt.Errorf("audit: write event: %w", err)
	}
	return nil
}

// Close syncs and closes the underlying log file.
func (f *FileAuditor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Sync()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	f.file = nil
	return err
}

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

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadMessage_Argument(t *testing.T) {
	message, err := readMessage([]string{"hello world"}, "")
	if err != nil {
		t.Fatalf("readMessage() error = %v", err)
	}
	if !bytes.Equal(message, []byte("hello world")) {
		t.Errorf("readMessage() = %q, want hello world", message)
	}
}

func TestReadMessage_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.bin")
	contents := []byte{0x00, 0x01, 0xff, 0xfe}
	if err := os.WriteFile(path, contents, 0600); err != nil {
		t.Fatalf("Failed to write message file: %v", err)
	}

	message, err := readMessage(nil, path)
	if err != nil {
		t.Fatalf("readMessage() error = %v", err)
	}
	if !bytes.Equal(message, contents) {
		t.Errorf("readMessage() = %x, want %x", message, contents)
	}
}

func TestReadMessage_FileMissing(t *testing.T) {
	_, err := readMessage(nil, filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("readMessage() error = nil, want read failure")
	}
	if !strings.Contains(err.Error(), "failed to read message file") {
		t.Errorf("readMessage() error = %v, want read failure", err)
	}
}

func TestReadMessage_ArgumentAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.txt")
	if err := os.WriteFile(path, []byte("from file"), 0600); err != nil {
		t.Fatalf("Failed to write message file: %v", err)
	}

	_, err := readMessage([]string{"from arg"}, path)
	if err == nil {
		t.Fatal("readMessage() error = nil, want conflict error")
	}
	if !strings.Contains(err.Error(), "not both") {
		t.Errorf("readMessage() error = %v, want conflict error", err)
	}
}

func TestReadMessage_Neither(t *testing.T) {
	_, err := readMessage(nil, "")
	if err == nil {
		t.Fatal("readMessage() error = nil, want required error")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("readMessage() error = %v, want required error", err)
	}
}

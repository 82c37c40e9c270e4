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

// Package password provides secure password handling for the operator
// toolkit: in-memory storage with explicit zeroing, constant-time
// comparison, and resolution from flag, environment, or terminal prompt.
//
// Password values never appear in logs, audit events, or error messages.
package password

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"
)

var (
	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordZeroed is returned when the password has been zeroed.
	ErrPasswordZeroed = errors.New("password has been zeroed")

	// ErrNotInteractive is returned when a prompt is required but stdin
	// is not a terminal.
	ErrNotInteractive = errors.New("password prompt requires an interactive terminal")
)

// ClearPassword stores a password in memory as cleartext.
//
// While stored in cleartext, the password data is protected in memory
// and can be securely zeroed when no longer needed.
type ClearPassword struct {
	password []byte
}

// NewClearPassword creates a new cleartext password stored in memory.
//
// The provided byte slice is copied to prevent external modification.
// Returns an error if the password is empty.
func NewClearPassword(password []byte) (*ClearPassword, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	// Copy the password to prevent external modification
	p := make([]byte, len(password))
	copy(p, password)
	return &ClearPassword{password: p}, nil
}

// NewClearPasswordFromString creates a new cleartext password from a string.
//
// Returns an error if the password is empty.
func NewClearPasswordFromString(password string) (*ClearPassword, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	return &ClearPassword{password: []byte(password)}, nil
}

// Bytes returns the password as a byte slice.
//
// The returned slice is a copy to prevent external modification
// of the internal password data.
func (p *ClearPassword) Bytes() []byte {
	if p.password == nil {
		return nil
	}
	// Return a copy to prevent external modification
	result := make([]byte, len(p.password))
	copy(result, p.password)
	return result
}

// String implements fmt.Stringer and always redacts.
func (p *ClearPassword) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer so %#v never prints the password.
func (p *ClearPassword) GoString() string {
	return "password.ClearPassword{[REDACTED]}"
}

// Clear securely clears the password from memory.
//
// After calling Clear, the password cannot be retrieved and subsequent
// calls to Bytes() return nil. This operation is irreversible.
func (p *ClearPassword) Clear() {
	if p.password != nil {
		for i := range p.password {
			p.password[i] = 0
		}
		// Use subtle.ConstantTimeCopy to ensure compiler doesn't optimize away
		subtle.ConstantTimeCopy(1, p.password, make([]byte, len(p.password)))
		p.password = nil
	}
}

// Equal compares two passwords in constant time to prevent timing attacks.
//
// Returns true if the passwords are equal, false otherwise.
func Equal(a, b *ClearPassword) (bool, error) {
	aBytes := a.Bytes()
	if aBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer Zero(aBytes)

	bBytes := b.Bytes()
	if bBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer Zero(bBytes)

	return subtle.ConstantTimeCompare(aBytes, bBytes) == 1, nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// FromTerminal prompts on w and reads a password from stdin with echo
// disabled. The prompt goes to w so stdout stays clean for piped output.
func FromTerminal(w io.Writer, prompt string) ([]byte, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return nil, ErrNotInteractive
	}
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if len(b) == 0 {
		return nil, ErrEmptyPassword
	}
	return b, nil
}

// Resolve returns the connection password, trying sources in order:
// an explicit value (typically a --password flag), the named environment
// variable, and finally an interactive prompt on stderr.
//
// The caller owns the returned bytes and should Zero them when done.
func Resolve(explicit, envVar, prompt string) ([]byte, error) {
	if explicit != "" {
		return []byte(explicit), nil
	}
	if envVar != "" {
		if v, ok := os.LookupEnv(envVar); ok && v != "" {
			return []byte(v), nil
		}
	}
	return FromTerminal(os.Stderr, prompt)
}

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

	"golang.org/x/crypto/pbkdf2"
)

// DefaultAuthKeyID is the factory-default authentication key id present on a
// new device.
const DefaultAuthKeyID ObjectID = 1

// Session key derivation parameters. These match the device's derivation of
// authentication key material from a password.
const (
	credentialSalt       = "Yubico"
	credentialIterations = 10000
	credentialKeyLen     = 32
)

// Credentials binds an authentication key id to its password. The password
// is an opaque secret: it is never logged, never part of String output, and
// can be wiped with Zeroize once the session is established.
type Credentials struct {
	authKeyID ObjectID
	password  []byte
}

// NewCredentials creates credentials for the given authentication key.
// The password is copied; the caller may clear its own buffer afterwards.
func NewCredentials(authKeyID ObjectID, password []byte) (*Credentials, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}
	p := make([]byte, len(password))
	copy(p, password)
	return &Credentials{
		authKeyID: authKeyID,
		password:  p,
	}, nil
}

// AuthKeyID returns the authentication key id these credentials target.
func (c *Credentials) AuthKeyID() ObjectID {
	return c.authKeyID
}

// Password returns a copy of the raw password bytes for connectors whose
// transport performs its own derivation, such as PKCS#11 PIN login.
func (c *Credentials) Password() []byte {
	p := make([]byte, len(c.password))
	copy(p, c.password)
	return p
}

// SessionKey derives the 32 bytes of session authentication key material
// from the password using PBKDF2-HMAC-SHA256 with the device's fixed salt
// and iteration count. A fresh buffer is returned on every call; the caller
// should wipe it when done.
func (c *Credentials) SessionKey() []byte {
	return pbkdf2.Key(c.password, []byte(credentialSalt), credentialIterations, credentialKeyLen, sha256.New)
}

// Zeroize overwrites the stored password bytes. The credentials are unusable
// afterwards.
func (c *Credentials) Zeroize() {
	for i := range c.password {
		c.password[i] = 0
	}
	c.password = nil
}

// String returns a redacted representation safe for logs.
func (c *Credentials) String() string {
	return fmt.Sprintf("Credentials{auth_key_id: %s, password: [REDACTED]}", c.authKeyID)
}

// GoString returns the redacted representation for %#v formatting.
func (c *Credentials) GoString() string {
	return c.String()
}

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

// Package hsm manages a single authenticated session to a hardware security
// module and exposes sign, verify, list, and delete operations against the
// objects stored inside it.
//
// # Overview
//
// The package normalizes between the device's native encodings and standard
// cryptographic representations: public keys arrive as 64-byte x||y or
// 65-byte SEC1 uncompressed points, signatures as raw 64-byte r||s or
// DER-encoded sequences. All signing uses ECDSA over P-256 with SHA-256
// prehashing. Deleting authentication key objects is refused locally before
// any device call.
//
// # Key Concepts
//
// Device: the primitive capability surface of one authenticated connection.
// Implementations live in pkg/connector and are never constructed here.
//
// Client: an exclusively locked wrapper around a Device. At most one remote
// call is in flight at a time; concurrent callers serialize. Operations
// borrow the device for the duration of a single call and never retain it.
//
// SessionManager: owns at most one Client. Connect replaces the active
// session only after the new authentication succeeds, so a failed attempt
// leaves any existing session intact. It also tracks the session-scoped
// "last signature" buffer.
//
// # Basic Usage
//
//	manager := hsm.NewSessionManager()
//	if err := manager.Connect(connector, 1, password); err != nil {
//	    return err
//	}
//	defer manager.Disconnect()
//
//	sig, err := manager.Sign(0xf35b, []byte("hello"))
//	if err != nil {
//	    return err
//	}
//	ok, err := manager.Verify(0xf35b, []byte("hello"), sig)
//
// Every operation returns one of the sentinel error kinds declared in
// errors.go, wrapping the underlying device detail as an opaque string.
package hsm

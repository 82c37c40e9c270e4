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

//go:build pkcs11

package pkcs11

import "errors"

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("pkcs11: invalid configuration")

	// ErrLibraryNotFound is returned when the PKCS#11 library cannot be found.
	ErrLibraryNotFound = errors.New("pkcs11: library not found")

	// ErrNoSlots is returned when the module reports no usable token slots.
	ErrNoSlots = errors.New("pkcs11: no slots available")

	// ErrNotExposed is returned for object types the module does not
	// surface through the PKCS#11 interface, such as authentication keys.
	ErrNotExposed = errors.New("pkcs11: object type not exposed by module")
)

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

import "errors"

// Operation error kinds. Every exported operation fails with exactly one of
// these sentinels, wrapping the underlying device detail as an opaque string.
// No operation is retried automatically, and no failure tears down the
// session; control always returns to the caller with session state otherwise
// unchanged.
var (
	// ErrAuthenticationFailed indicates the session handshake was rejected,
	// the transport was unavailable, or an operation required a session and
	// none was active.
	ErrAuthenticationFailed = errors.New("hsm: authentication failed")

	// ErrSigningFailed indicates the remote signing call failed.
	ErrSigningFailed = errors.New("hsm: signing failed")

	// ErrVerificationFailed indicates an adapter-level fault during
	// verification. A signature that parses but does not verify is a false
	// result, not this error.
	ErrVerificationFailed = errors.New("hsm: verification failed")

	// ErrListingFailed indicates object enumeration or a per-object lookup
	// during a listing failed. Listings are all-or-nothing; no partial
	// results are returned.
	ErrListingFailed = errors.New("hsm: listing failed")

	// ErrDeletionFailed indicates the remote delete call failed.
	ErrDeletionFailed = errors.New("hsm: deletion failed")

	// ErrGetPublicKeyFailed indicates the remote public key fetch failed.
	ErrGetPublicKeyFailed = errors.New("hsm: failed to get public key")

	// ErrInvalidKey indicates public key material could not be interpreted
	// as a P-256 point, or its retrieval for verification failed.
	ErrInvalidKey = errors.New("hsm: invalid key")

	// ErrInvalidInput indicates a caller-supplied value was rejected before
	// any device call: an empty message, a malformed signature encoding, or
	// an attempt to delete an authentication key.
	ErrInvalidInput = errors.New("hsm: invalid input")
)

// Lifecycle errors.
var (
	// ErrSessionClosed indicates the client's device capability has been
	// released by Disconnect or Close. Operations translate it into their
	// own failure kind.
	ErrSessionClosed = errors.New("hsm: session closed")

	// ErrObjectNotFound is returned by device implementations when no object
	// exists under the requested id and type.
	ErrObjectNotFound = errors.New("hsm: object not found")
)

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

// Device is the primitive capability surface of one authenticated connection
// to the HSM. All calls are blocking request/response round trips; there is
// no cancellation or timeout layer at this level, a call runs to transport
// completion or failure.
//
// Implementations return plain errors; the operations layer maps them onto
// the sentinel kinds in errors.go. Implementations need not be safe for
// concurrent use: the Client wrapper guarantees at most one in-flight call.
type Device interface {
	// SignPrehash produces an ECDSA signature over an already-hashed
	// 32-byte digest under the given signing key. The signature bytes are
	// returned in the device's native encoding, unmodified.
	SignPrehash(keyID ObjectID, digest []byte) ([]byte, error)

	// GetPublicKey fetches the raw public key material for a key id.
	GetPublicKey(keyID ObjectID) (PublicKey, error)

	// ListObjects enumerates objects visible under the session's
	// authentication key, in device-reported order. An empty filter list
	// matches all visible objects.
	ListObjects(filters ...ObjectFilter) ([]ObjectEntry, error)

	// GetObjectInfo fetches the detailed metadata of one object.
	GetObjectInfo(id ObjectID, typ ObjectType) (ObjectInfo, error)

	// DeleteObject removes one object from the device. Policy enforcement
	// happens above this layer; implementations perform the raw call.
	DeleteObject(id ObjectID, typ ObjectType) error

	// Close terminates the session and releases transport resources.
	Close() error
}

// Connector opens authenticated device sessions. Implementations live in
// pkg/connector; the session manager never constructs connections itself.
type Connector interface {
	// Open performs the session handshake with the given credentials and
	// returns a live device capability on success.
	Open(creds *Credentials) (Device, error)

	// Name identifies the connector in logs, metrics, and audit events,
	// e.g. "softhsm" or "pkcs11".
	Name() string
}

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

// Package softhsm implements an in-process software device for development
// and testing without hardware attached. It speaks the same capability
// surface as a real device: sessions are opened against seeded
// authentication keys, signatures come back DER-encoded as the hardware
// produces them, and public keys come back as bare 64-byte x||y
// coordinates.
//
// Like the hardware, the device itself will happily delete any object it is
// asked to, authentication keys included; the refusal to delete
// authentication keys is enforced by the layer above.
package softhsm

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"sort"
	"sync"

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// ConnectorName identifies this connector in logs, metrics, and audit events.
const ConnectorName = "softhsm"

// objectKey addresses one object slot: ids are unique per type, not global.
type objectKey struct {
	id  hsm.ObjectID
	typ hsm.ObjectType
}

// object is one stored device object with its private material.
type object struct {
	info hsm.ObjectInfo

	// sessionKey is the derived authentication key material, set only for
	// authentication key objects.
	sessionKey []byte

	// signingKey is the private key, set only for asymmetric key objects.
	signingKey *ecdsa.PrivateKey

	// data is the opaque payload, set only for opaque objects.
	data []byte
}

// Connector is the software device. It holds the object store shared by all
// sessions opened from it and is safe for concurrent use.
type Connector struct {
	mu      sync.Mutex
	objects map[objectKey]*object

	// seq counts writes per object slot so re-imported ids get an
	// incremented sequence number, mirroring device behavior.
	seq map[objectKey]uint8
}

// New creates a software device seeded from cfg.
func New(cfg *Config) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Connector{
		objects: make(map[objectKey]*object),
		seq:     make(map[objectKey]uint8),
	}

	for _, ak := range cfg.AuthKeys {
		if err := c.ImportAuthenticationKey(hsm.ObjectID(ak.ID), ak.Label, []byte(ak.Password)); err != nil {
			return nil, err
		}
	}
	for _, sk := range cfg.SigningKeys {
		key, err := loadSigningKey(sk)
		if err != nil {
			return nil, err
		}
		if key == nil {
			if err := c.GenerateSigningKey(hsm.ObjectID(sk.ID), sk.Label); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.importSigningKey(hsm.ObjectID(sk.ID), sk.Label, key, hsm.OriginImported); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name implements hsm.Connector.
func (c *Connector) Name() string {
	return ConnectorName
}

// Open implements hsm.Connector. The handshake succeeds when an
// authentication key object exists under the credential's id and its stored
// session key material matches the material derived from the password.
func (c *Connector) Open(creds *hsm.Credentials) (hsm.Device, error) {
	if creds == nil {
		return nil, fmt.Errorf("softhsm: credentials cannot be nil")
	}

	c.mu.Lock()
	obj, ok := c.objects[objectKey{creds.AuthKeyID(), hsm.TypeAuthenticationKey}]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("softhsm: authentication key %s not found", creds.AuthKeyID())
	}

	derived := creds.SessionKey()
	defer wipe(derived)
	if subtle.ConstantTimeCompare(obj.sessionKey, derived) != 1 {
		return nil, fmt.Errorf("softhsm: authentication failed for key %s", creds.AuthKeyID())
	}

	return &Session{conn: c}, nil
}

// ImportAuthenticationKey stores an authentication key object. The password
// is derived immediately and discarded; only the derived material is kept.
func (c *Connector) ImportAuthenticationKey(id hsm.ObjectID, label string, password []byte) error {
	if id == 0 {
		return fmt.Errorf("softhsm: object id cannot be zero")
	}
	creds, err := hsm.NewCredentials(id, password)
	if err != nil {
		return fmt.Errorf("softhsm: authentication key %s: %v", id, err)
	}
	sessionKey := creds.SessionKey()
	creds.Zeroize()

	lbl, err := hsm.NewLabel(label)
	if err != nil {
		return fmt.Errorf("softhsm: authentication key %s: %v", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := objectKey{id, hsm.TypeAuthenticationKey}
	c.objects[key] = &object{
		info: hsm.ObjectInfo{
			ID:        id,
			Type:      hsm.TypeAuthenticationKey,
			Algorithm: hsm.AlgorithmYubicoAESAuthentication,
			Sequence:  c.seq[key],
			Label:     lbl,
			Size:      uint16(len(sessionKey)),
			Domains:   0xffff,
			Origin:    hsm.OriginImported,
		},
		sessionKey: sessionKey,
	}
	c.seq[key]++
	return nil
}

// GenerateSigningKey creates a fresh P-256 signing key under id.
func (c *Connector) GenerateSigningKey(id hsm.ObjectID, label string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("softhsm: generate signing key %s: %w", id, err)
	}
	return c.importSigningKey(id, label, key, hsm.OriginGenerated)
}

// ImportSigningKey stores an existing P-256 private key under id.
func (c *Connector) ImportSigningKey(id hsm.ObjectID, label string, key *ecdsa.PrivateKey) error {
	return c.importSigningKey(id, label, key, hsm.OriginImported)
}

func (c *Connector) importSigningKey(id hsm.ObjectID, label string, key *ecdsa.PrivateKey, origin hsm.Origin) error {
	if id == 0 {
		return fmt.Errorf("softhsm: object id cannot be zero")
	}
	if key == nil {
		return fmt.Errorf("softhsm: signing key %s: key cannot be nil", id)
	}
	if key.Params().Name != "P-256" {
		return fmt.Errorf("softhsm: signing key %s: unsupported curve %s", id, key.Params().Name)
	}
	lbl, err := hsm.NewLabel(label)
	if err != nil {
		return fmt.Errorf("softhsm: signing key %s: %v", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	slot := objectKey{id, hsm.TypeAsymmetricKey}
	c.objects[slot] = &object{
		info: hsm.ObjectInfo{
			ID:        id,
			Type:      hsm.TypeAsymmetricKey,
			Algorithm: hsm.AlgorithmECP256,
			Sequence:  c.seq[slot],
			Label:     lbl,
			Size:      32,
			Domains:   0xffff,
			Origin:    origin,
		},
		signingKey: key,
	}
	c.seq[slot]++
	return nil
}

// ImportOpaque stores an opaque data object, e.g. a certificate.
func (c *Connector) ImportOpaque(id hsm.ObjectID, label string, algorithm hsm.Algorithm, data []byte) error {
	if id == 0 {
		return fmt.Errorf("softhsm: object id cannot be zero")
	}
	lbl, err := hsm.NewLabel(label)
	if err != nil {
		return fmt.Errorf("softhsm: opaque %s: %v", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	slot := objectKey{id, hsm.TypeOpaque}
	c.objects[slot] = &object{
		info: hsm.ObjectInfo{
			ID:        id,
			Type:      hsm.TypeOpaque,
			Algorithm: algorithm,
			Sequence:  c.seq[slot],
			Label:     lbl,
			Size:      uint16(len(data)),
			Domains:   0xffff,
			Origin:    hsm.OriginImported,
		},
		data: append([]byte(nil), data...),
	}
	c.seq[slot]++
	return nil
}

// FaultOp names a device operation for fault injection.
type FaultOp string

const (
	FaultSign         FaultOp = "sign"
	FaultGetPublicKey FaultOp = "get-public-key"
	FaultList         FaultOp = "list"
	FaultGetInfo      FaultOp = "get-info"
	FaultDelete       FaultOp = "delete"
)

// Session is one authenticated view of the software device, returned by
// Open. The zero value is not usable.
type Session struct {
	conn *Connector

	mu     sync.Mutex
	closed bool
	faults map[FaultOp]error
}

// SetFault arranges for the named operation to fail with err on every
// subsequent call until cleared with a nil err. Used to exercise failure
// paths in tests.
func (s *Session) SetFault(op FaultOp, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults == nil {
		s.faults = make(map[FaultOp]error)
	}
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// checkLive returns the injected fault or closed-session error, if any.
func (s *Session) checkLive(op FaultOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("softhsm: session closed")
	}
	if err, ok := s.faults[op]; ok {
		return err
	}
	return nil
}

// SignPrehash implements hsm.Device. Signatures are returned DER-encoded,
// matching the hardware's native signature format.
func (s *Session) SignPrehash(keyID hsm.ObjectID, digest []byte) ([]byte, error) {
	if err := s.checkLive(FaultSign); err != nil {
		return nil, err
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("softhsm: unexpected digest length: %d bytes (expected 32)", len(digest))
	}

	s.conn.mu.Lock()
	obj, ok := s.conn.objects[objectKey{keyID, hsm.TypeAsymmetricKey}]
	s.conn.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: asymmetric key %s", hsm.ErrObjectNotFound, keyID)
	}

	sig, err := ecdsa.SignASN1(rand.Reader, obj.signingKey, digest)
	if err != nil {
		return nil, fmt.Errorf("softhsm: sign: %w", err)
	}
	return sig, nil
}

// GetPublicKey implements hsm.Device. Keys are returned as bare 64-byte
// x||y coordinates, matching the hardware's native point format.
func (s *Session) GetPublicKey(keyID hsm.ObjectID) (hsm.PublicKey, error) {
	if err := s.checkLive(FaultGetPublicKey); err != nil {
		return hsm.PublicKey{}, err
	}

	s.conn.mu.Lock()
	obj, ok := s.conn.objects[objectKey{keyID, hsm.TypeAsymmetricKey}]
	s.conn.mu.Unlock()
	if !ok {
		return hsm.PublicKey{}, fmt.Errorf("%w: asymmetric key %s", hsm.ErrObjectNotFound, keyID)
	}

	raw := make([]byte, 64)
	obj.signingKey.PublicKey.X.FillBytes(raw[:32])
	obj.signingKey.PublicKey.Y.FillBytes(raw[32:])
	return hsm.PublicKey{
		Algorithm: hsm.AlgorithmECP256,
		Bytes:     raw,
	}, nil
}

// ListObjects implements hsm.Device. Entries are reported in ascending
// (id, type) order.
func (s *Session) ListObjects(filters ...hsm.ObjectFilter) ([]hsm.ObjectEntry, error) {
	if err := s.checkLive(FaultList); err != nil {
		return nil, err
	}

	s.conn.mu.Lock()
	infos := make([]hsm.ObjectInfo, 0, len(s.conn.objects))
	for _, obj := range s.conn.objects {
		infos = append(infos, obj.info)
	}
	s.conn.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ID != infos[j].ID {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Type < infos[j].Type
	})

	var entries []hsm.ObjectEntry
	for _, info := range infos {
		if !matchesAll(info, filters) {
			continue
		}
		entries = append(entries, hsm.ObjectEntry{
			ID:       info.ID,
			Type:     info.Type,
			Sequence: info.Sequence,
		})
	}
	return entries, nil
}

func matchesAll(info hsm.ObjectInfo, filters []hsm.ObjectFilter) bool {
	for _, f := range filters {
		if !f.Matches(info) {
			return false
		}
	}
	return true
}

// GetObjectInfo implements hsm.Device.
func (s *Session) GetObjectInfo(id hsm.ObjectID, typ hsm.ObjectType) (hsm.ObjectInfo, error) {
	if err := s.checkLive(FaultGetInfo); err != nil {
		return hsm.ObjectInfo{}, err
	}

	s.conn.mu.Lock()
	obj, ok := s.conn.objects[objectKey{id, typ}]
	s.conn.mu.Unlock()
	if !ok {
		return hsm.ObjectInfo{}, fmt.Errorf("%w: object %s of type %s", hsm.ErrObjectNotFound, id, typ)
	}
	return obj.info, nil
}

// DeleteObject implements hsm.Device. Any object may be deleted here,
// authentication keys included; policy lives above.
func (s *Session) DeleteObject(id hsm.ObjectID, typ hsm.ObjectType) error {
	if err := s.checkLive(FaultDelete); err != nil {
		return err
	}

	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	slot := objectKey{id, typ}
	obj, ok := s.conn.objects[slot]
	if !ok {
		return fmt.Errorf("%w: object %s of type %s", hsm.ErrObjectNotFound, id, typ)
	}
	if obj.sessionKey != nil {
		wipe(obj.sessionKey)
	}
	delete(s.conn.objects, slot)
	return nil
}

// Close implements hsm.Device. Idempotent; the shared object store survives
// for future sessions.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

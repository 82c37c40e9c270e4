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

// Package pkcs11 implements the device connector for PKCS#11 modules,
// primarily yubihsm_pkcs11. The module composes its login PIN from the four
// hex digits of the authentication key id followed by the password; plain
// PIN modules such as SoftHSM2 are supported through Config.RawPIN.
//
// Signatures come back as raw 64-byte r||s pairs and public keys as 65-byte
// SEC1 uncompressed points, both per the PKCS#11 conventions; the layer
// above normalizes them. Object ids map to the 2-byte big-endian CKA_ID the
// module assigns. Authentication keys are not exposed through the PKCS#11
// interface and therefore never appear in listings.
package pkcs11

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/ThalesGroup/crypto11"
	"github.com/miekg/pkcs11"

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// ConnectorName identifies this connector in logs, metrics, and audit events.
const ConnectorName = "pkcs11"

// Connector opens authenticated sessions against a PKCS#11 module.
type Connector struct {
	config *Config
}

// NewConnector validates cfg and creates a connector. The module is not
// loaded until Open.
func NewConnector(cfg *Config) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Connector{config: cfg}, nil
}

// Name implements hsm.Connector.
func (c *Connector) Name() string {
	return ConnectorName
}

// Open implements hsm.Connector. The crypto11 context performs the
// authenticated login handshake; a raw module handle is kept alongside it
// for the protocol-level operations crypto11 does not expose.
func (c *Connector) Open(creds *hsm.Credentials) (hsm.Device, error) {
	if creds == nil {
		return nil, fmt.Errorf("pkcs11: credentials cannot be nil")
	}

	if c.config.LibraryConfig != "" {
		if err := os.Setenv("YUBIHSM_PKCS11_CONF", c.config.LibraryConfig); err != nil {
			return nil, fmt.Errorf("pkcs11: set module config: %w", err)
		}
	}

	pin := c.composePIN(creds)

	ctx, err := crypto11.Configure(&crypto11.Config{
		Path:       c.config.Library,
		TokenLabel: c.config.TokenLabel,
		SlotNumber: c.config.Slot,
		Pin:        pin,
	})
	if err != nil {
		return nil, fmt.Errorf("pkcs11: configure module: %w", err)
	}

	p := pkcs11.New(c.config.Library)
	if p == nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, c.config.Library)
	}
	ownsP11 := true
	if err := p.Initialize(); err != nil {
		if err != pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
			p.Destroy()
			_ = ctx.Close()
			return nil, fmt.Errorf("pkcs11: initialize module: %w", err)
		}
		ownsP11 = false
	}

	slot, err := c.resolveSlot(p)
	if err != nil {
		if ownsP11 {
			_ = p.Finalize()
		}
		p.Destroy()
		_ = ctx.Close()
		return nil, err
	}

	return &Device{
		ctx:     ctx,
		p11:     p,
		slot:    slot,
		pin:     pin,
		ownsP11: ownsP11,
	}, nil
}

// composePIN builds the module login PIN from the credentials.
func (c *Connector) composePIN(creds *hsm.Credentials) string {
	password := creds.Password()
	defer wipe(password)
	if c.config.RawPIN {
		return string(password)
	}
	// yubihsm_pkcs11 convention: hex auth key id prepended to the password.
	return creds.AuthKeyID().Hex() + string(password)
}

// resolveSlot picks the token slot from the configuration, preferring an
// explicit slot number over a token label match.
func (c *Connector) resolveSlot(p *pkcs11.Ctx) (uint, error) {
	slots, err := p.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("pkcs11: get slot list: %w", err)
	}
	if len(slots) == 0 {
		return 0, ErrNoSlots
	}

	if c.config.Slot != nil {
		return uint(*c.config.Slot), nil
	}
	if c.config.TokenLabel != "" {
		for _, slot := range slots {
			info, err := p.GetTokenInfo(slot)
			if err != nil {
				continue
			}
			if info.Label == c.config.TokenLabel {
				return slot, nil
			}
		}
		return 0, fmt.Errorf("pkcs11: token %q not found", c.config.TokenLabel)
	}
	return slots[0], nil
}

// Device is one authenticated connection to the module, implementing
// hsm.Device. Each operation runs in its own short-lived session; the login
// state is shared module-wide, so CKR_USER_ALREADY_LOGGED_IN is expected
// and tolerated.
type Device struct {
	ctx     *crypto11.Context
	p11     *pkcs11.Ctx
	slot    uint
	pin     string
	ownsP11 bool

	mu     sync.Mutex
	closed bool
}

// withSession opens a session, logs in, runs fn, and closes the session.
// It never logs out: C_Logout would end the login of every session on the
// token, including the crypto11 context's.
func (d *Device) withSession(fn func(session pkcs11.SessionHandle) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("pkcs11: session closed")
	}

	session, err := d.p11.OpenSession(d.slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return fmt.Errorf("pkcs11: open session: %w", err)
	}
	defer d.p11.CloseSession(session)

	if err := d.p11.Login(session, pkcs11.CKU_USER, d.pin); err != nil {
		if err != pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
			return fmt.Errorf("pkcs11: login: %w", err)
		}
	}

	return fn(session)
}

// findObject locates one object by class and 2-byte big-endian CKA_ID.
func (d *Device) findObject(session pkcs11.SessionHandle, class uint, id hsm.ObjectID) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_ID, objectIDBytes(id)),
	}
	if err := d.p11.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("pkcs11: init object search: %w", err)
	}
	defer d.p11.FindObjectsFinal(session)

	handles, _, err := d.p11.FindObjects(session, 1)
	if err != nil {
		return 0, fmt.Errorf("pkcs11: find objects: %w", err)
	}
	if len(handles) == 0 {
		return 0, fmt.Errorf("%w: object %s", hsm.ErrObjectNotFound, id)
	}
	return handles[0], nil
}

// SignPrehash implements hsm.Device. The CKM_ECDSA mechanism signs the
// supplied digest directly and returns the raw 64-byte r||s signature.
func (d *Device) SignPrehash(keyID hsm.ObjectID, digest []byte) ([]byte, error) {
	var signature []byte
	err := d.withSession(func(session pkcs11.SessionHandle) error {
		handle, err := d.findObject(session, pkcs11.CKO_PRIVATE_KEY, keyID)
		if err != nil {
			return err
		}
		mechanism := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)}
		if err := d.p11.SignInit(session, mechanism, handle); err != nil {
			return fmt.Errorf("pkcs11: sign init: %w", err)
		}
		sig, err := d.p11.Sign(session, digest)
		if err != nil {
			return fmt.Errorf("pkcs11: sign: %w", err)
		}
		signature = sig
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signature, nil
}

// GetPublicKey implements hsm.Device. The CKA_EC_POINT attribute carries
// the SEC1 point, usually wrapped in a DER OCTET STRING.
func (d *Device) GetPublicKey(keyID hsm.ObjectID) (hsm.PublicKey, error) {
	var pub hsm.PublicKey
	err := d.withSession(func(session pkcs11.SessionHandle) error {
		handle, err := d.findObject(session, pkcs11.CKO_PUBLIC_KEY, keyID)
		if err != nil {
			return err
		}
		attrs, err := d.p11.GetAttributeValue(session, handle, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
		})
		if err != nil {
			return fmt.Errorf("pkcs11: get CKA_EC_POINT: %w", err)
		}
		if len(attrs) == 0 || len(attrs[0].Value) == 0 {
			return fmt.Errorf("pkcs11: empty CKA_EC_POINT for key %s", keyID)
		}
		point, err := unwrapECPoint(attrs[0].Value)
		if err != nil {
			return err
		}
		pub = hsm.PublicKey{
			Algorithm: hsm.AlgorithmECP256,
			Bytes:     point,
		}
		return nil
	})
	if err != nil {
		return hsm.PublicKey{}, err
	}
	return pub, nil
}

// unwrapECPoint strips the DER OCTET STRING wrapper from a P-256 point.
// A DER-wrapped point is exactly 67 bytes (04 41 04 x y); some modules
// return the bare 65-byte point.
func unwrapECPoint(raw []byte) ([]byte, error) {
	switch {
	case len(raw) == 67 && raw[0] == 0x04 && raw[1] == 0x41 && raw[2] == 0x04:
		return raw[2:], nil
	case len(raw) == 65 && raw[0] == 0x04:
		return raw, nil
	default:
		return nil, fmt.Errorf("pkcs11: unexpected CKA_EC_POINT encoding (%d bytes)", len(raw))
	}
}

// listClasses maps each enumerated PKCS#11 class to the object type its
// members surface as.
var listClasses = []struct {
	class uint
	typ   hsm.ObjectType
}{
	{pkcs11.CKO_PRIVATE_KEY, hsm.TypeAsymmetricKey},
	{pkcs11.CKO_SECRET_KEY, hsm.TypeWrapKey},
	{pkcs11.CKO_CERTIFICATE, hsm.TypeOpaque},
}

// ListObjects implements hsm.Device. Only objects the module exposes with a
// 2-byte CKA_ID are reported; authentication keys never appear.
func (d *Device) ListObjects(filters ...hsm.ObjectFilter) ([]hsm.ObjectEntry, error) {
	var entries []hsm.ObjectEntry
	err := d.withSession(func(session pkcs11.SessionHandle) error {
		for _, lc := range listClasses {
			handles, err := d.findAll(session, lc.class)
			if err != nil {
				return err
			}
			for _, handle := range handles {
				entry, info, ok := d.describeHandle(session, handle, lc.typ)
				if !ok {
					continue
				}
				if !matchesAll(info, filters) {
					continue
				}
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// findAll enumerates every object of one class.
func (d *Device) findAll(session pkcs11.SessionHandle, class uint) ([]pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
	}
	if err := d.p11.FindObjectsInit(session, template); err != nil {
		return nil, fmt.Errorf("pkcs11: init object search: %w", err)
	}
	defer d.p11.FindObjectsFinal(session)

	var handles []pkcs11.ObjectHandle
	for {
		batch, _, err := d.p11.FindObjects(session, 32)
		if err != nil {
			return nil, fmt.Errorf("pkcs11: find objects: %w", err)
		}
		if len(batch) == 0 {
			return handles, nil
		}
		handles = append(handles, batch...)
	}
}

// describeHandle reads the identity attributes of one handle. Objects
// without the module's 2-byte CKA_ID convention are skipped.
func (d *Device) describeHandle(session pkcs11.SessionHandle, handle pkcs11.ObjectHandle, typ hsm.ObjectType) (hsm.ObjectEntry, hsm.ObjectInfo, bool) {
	attrs, err := d.p11.GetAttributeValue(session, handle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_ID, nil),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, nil),
	})
	if err != nil || len(attrs) < 2 || len(attrs[0].Value) != 2 {
		return hsm.ObjectEntry{}, hsm.ObjectInfo{}, false
	}

	id := hsm.ObjectID(binary.BigEndian.Uint16(attrs[0].Value))
	entry := hsm.ObjectEntry{
		ID:   id,
		Type: typ,
	}
	info := hsm.ObjectInfo{
		ID:    id,
		Type:  typ,
		Label: hsm.Label(attrs[1].Value),
	}
	return entry, info, true
}

func matchesAll(info hsm.ObjectInfo, filters []hsm.ObjectFilter) bool {
	for _, f := range filters {
		if !f.Matches(info) {
			return false
		}
	}
	return true
}

// GetObjectInfo implements hsm.Device. The module does not report sequence
// numbers or domain masks, so those fields are zero.
func (d *Device) GetObjectInfo(id hsm.ObjectID, typ hsm.ObjectType) (hsm.ObjectInfo, error) {
	class, err := typeToClass(typ)
	if err != nil {
		return hsm.ObjectInfo{}, err
	}

	var info hsm.ObjectInfo
	err = d.withSession(func(session pkcs11.SessionHandle) error {
		handle, err := d.findObject(session, class, id)
		if err != nil {
			return err
		}
		attrs, err := d.p11.GetAttributeValue(session, handle, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_LABEL, nil),
			pkcs11.NewAttribute(pkcs11.CKA_LOCAL, nil),
		})
		if err != nil {
			return fmt.Errorf("pkcs11: get attributes: %w", err)
		}

		info = hsm.ObjectInfo{
			ID:        id,
			Type:      typ,
			Algorithm: d.objectAlgorithm(session, handle, typ),
			Label:     hsm.Label(attrs[0].Value),
			Origin:    hsm.OriginImported,
		}
		if len(attrs[1].Value) > 0 && attrs[1].Value[0] != 0 {
			info.Origin = hsm.OriginGenerated
		}
		if info.Algorithm == hsm.AlgorithmECP256 {
			info.Size = 32
		}
		return nil
	})
	if err != nil {
		return hsm.ObjectInfo{}, err
	}
	return info, nil
}

// objectAlgorithm derives the algorithm identifier from the handle's
// CKA_KEY_TYPE where the class has one.
func (d *Device) objectAlgorithm(session pkcs11.SessionHandle, handle pkcs11.ObjectHandle, typ hsm.ObjectType) hsm.Algorithm {
	switch typ {
	case hsm.TypeOpaque:
		return hsm.AlgorithmOpaqueX509Certificate
	case hsm.TypeAsymmetricKey, hsm.TypeWrapKey, hsm.TypeHMACKey:
		attrs, err := d.p11.GetAttributeValue(session, handle, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, nil),
		})
		if err != nil || len(attrs) == 0 {
			return hsm.AlgorithmECP256
		}
		switch attrULong(attrs[0].Value) {
		case pkcs11.CKK_EC:
			return hsm.AlgorithmECP256
		case pkcs11.CKK_RSA:
			return hsm.AlgorithmRSA2048
		case pkcs11.CKK_SHA256_HMAC:
			return hsm.AlgorithmHMACSHA256
		case pkcs11.CKK_AES:
			return hsm.AlgorithmAES128CCMWrap
		}
	}
	return hsm.AlgorithmECP256
}

// DeleteObject implements hsm.Device.
func (d *Device) DeleteObject(id hsm.ObjectID, typ hsm.ObjectType) error {
	class, err := typeToClass(typ)
	if err != nil {
		return err
	}
	return d.withSession(func(session pkcs11.SessionHandle) error {
		handle, err := d.findObject(session, class, id)
		if err != nil {
			return err
		}
		if err := d.p11.DestroyObject(session, handle); err != nil {
			return fmt.Errorf("pkcs11: destroy object: %w", err)
		}
		return nil
	})
}

// typeToClass maps object types onto the PKCS#11 classes the module exposes
// them as.
func typeToClass(typ hsm.ObjectType) (uint, error) {
	switch typ {
	case hsm.TypeAsymmetricKey:
		return pkcs11.CKO_PRIVATE_KEY, nil
	case hsm.TypeOpaque:
		return pkcs11.CKO_CERTIFICATE, nil
	case hsm.TypeWrapKey, hsm.TypeHMACKey:
		return pkcs11.CKO_SECRET_KEY, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotExposed, typ)
	}
}

// Close implements hsm.Device. The crypto11 context is closed first, then
// the raw module handle is finalized only if this device initialized it.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.pin = ""

	err := d.ctx.Close()
	if d.ownsP11 {
		if ferr := d.p11.Finalize(); err == nil {
			err = ferr
		}
	}
	d.p11.Destroy()
	return err
}

// attrULong decodes a native-endian CK_ULONG attribute value. PKCS#11
// attribute buffers are little-endian on every supported platform.
func attrULong(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

// objectIDBytes encodes an object id as the module's 2-byte big-endian CKA_ID.
func objectIDBytes(id hsm.ObjectID) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(id))
	return b
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Compile-time interface checks.
var (
	_ hsm.Connector = (*Connector)(nil)
	_ hsm.Device    = (*Device)(nil)
)

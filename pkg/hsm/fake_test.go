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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testAuthKeyID ObjectID = 0x0001
	testSignKeyID ObjectID = 0xf35b
	testPassword           = "password"
)

// fakeDevice implements Device against an in-memory P-256 key. Its wire
// encodings are configurable so both signature forms (raw r||s and DER) and
// both point forms (64-byte x||y and 65-byte SEC1) get exercised.
type fakeDevice struct {
	mu sync.Mutex

	key     *ecdsa.PrivateKey
	objects []ObjectInfo

	// derSignatures makes SignPrehash return DER instead of raw r||s.
	derSignatures bool

	// sec1Points makes GetPublicKey return the 65-byte 0x04||x||y form
	// instead of bare 64-byte x||y.
	sec1Points bool

	// pubKeyOverride, when set, is returned verbatim by GetPublicKey.
	pubKeyOverride []byte

	// faults fail the named operation unconditionally.
	faults map[string]error

	// infoFaults fail GetObjectInfo for one object id.
	infoFaults map[ObjectID]error

	lastDigest    []byte
	lastSignature []byte

	signCalls   int
	pubKeyCalls int
	listCalls   int
	infoCalls   int
	deleteCalls int
	closeCalls  int
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return &fakeDevice{
		key: key,
		objects: []ObjectInfo{
			{
				ID:        testSignKeyID,
				Type:      TypeAsymmetricKey,
				Algorithm: AlgorithmECP256,
				Sequence:  1,
				Label:     "demo signing key",
				Size:      32,
				Domains:   0xffff,
				Origin:    OriginGenerated,
			},
			{
				ID:        testAuthKeyID,
				Type:      TypeAuthenticationKey,
				Algorithm: AlgorithmYubicoAESAuthentication,
				Sequence:  0,
				Label:     "DEFAULT AUTHKEY CHANGE THIS ASAP",
				Size:      32,
				Domains:   0xffff,
				Origin:    OriginImported,
			},
		},
		faults:     make(map[string]error),
		infoFaults: make(map[ObjectID]error),
	}
}

func (f *fakeDevice) setFault(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.faults, op)
		return
	}
	f.faults[op] = err
}

func (f *fakeDevice) fault(op string) error {
	if err, ok := f.faults[op]; ok {
		return err
	}
	return nil
}

func (f *fakeDevice) SignPrehash(keyID ObjectID, digest []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signCalls++
	f.lastDigest = append([]byte(nil), digest...)

	if err := f.fault("sign"); err != nil {
		return nil, err
	}
	if keyID != testSignKeyID {
		return nil, fmt.Errorf("%w: asymmetric key %s", ErrObjectNotFound, keyID)
	}

	if f.derSignatures {
		sig, err := ecdsa.SignASN1(rand.Reader, f.key, digest)
		if err != nil {
			return nil, err
		}
		f.lastSignature = sig
		return sig, nil
	}

	r, s, err := ecdsa.Sign(rand.Reader, f.key, digest)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	f.lastSignature = sig
	return sig, nil
}

func (f *fakeDevice) GetPublicKey(keyID ObjectID) (PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubKeyCalls++

	if err := f.fault("get-public-key"); err != nil {
		return PublicKey{}, err
	}
	if keyID != testSignKeyID {
		return PublicKey{}, fmt.Errorf("%w: asymmetric key %s", ErrObjectNotFound, keyID)
	}

	if f.pubKeyOverride != nil {
		return PublicKey{Algorithm: AlgorithmECP256, Bytes: f.pubKeyOverride}, nil
	}

	raw := make([]byte, 64)
	f.key.PublicKey.X.FillBytes(raw[:32])
	f.key.PublicKey.Y.FillBytes(raw[32:])
	if f.sec1Points {
		return PublicKey{Algorithm: AlgorithmECP256, Bytes: append([]byte{0x04}, raw...)}, nil
	}
	return PublicKey{Algorithm: AlgorithmECP256, Bytes: raw}, nil
}

func (f *fakeDevice) ListObjects(filters ...ObjectFilter) ([]ObjectEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	if err := f.fault("list"); err != nil {
		return nil, err
	}

	var entries []ObjectEntry
	for _, info := range f.objects {
		matched := true
		for _, filter := range filters {
			if !filter.Matches(info) {
				matched = false
				break
			}
		}
		if matched {
			entries = append(entries, ObjectEntry{ID: info.ID, Type: info.Type, Sequence: info.Sequence})
		}
	}
	return entries, nil
}

func (f *fakeDevice) GetObjectInfo(id ObjectID, typ ObjectType) (ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++

	if err := f.fault("get-info"); err != nil {
		return ObjectInfo{}, err
	}
	if err, ok := f.infoFaults[id]; ok {
		return ObjectInfo{}, err
	}
	for _, info := range f.objects {
		if info.ID == id && info.Type == typ {
			return info, nil
		}
	}
	return ObjectInfo{}, fmt.Errorf("%w: object %s of type %s", ErrObjectNotFound, id, typ)
}

func (f *fakeDevice) DeleteObject(id ObjectID, typ ObjectType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++

	if err := f.fault("delete"); err != nil {
		return err
	}
	for i, info := range f.objects {
		if info.ID == id && info.Type == typ {
			f.objects = append(f.objects[:i], f.objects[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: object %s of type %s", ErrObjectNotFound, id, typ)
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// fakeConnector hands out a fixed device. Open fails with openErr when set,
// leaving any prior session untouched.
type fakeConnector struct {
	dev     *fakeDevice
	openErr error

	mu            sync.Mutex
	openCalls     int
	lastAuthKeyID ObjectID
	lastPassword  []byte
}

func newFakeConnector(dev *fakeDevice) *fakeConnector {
	return &fakeConnector{dev: dev}
}

func (c *fakeConnector) Open(creds *Credentials) (Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openCalls++
	c.lastAuthKeyID = creds.AuthKeyID()
	c.lastPassword = creds.Password()
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.dev, nil
}

func (c *fakeConnector) Name() string { return "fake" }

var (
	_ Device    = (*fakeDevice)(nil)
	_ Connector = (*fakeConnector)(nil)
)

// connectedManager returns a manager with an open session against a fresh
// fake device.
func connectedManager(t *testing.T) (*SessionManager, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice(t)
	manager := NewSessionManager()
	require.NoError(t, manager.Connect(newFakeConnector(dev), testAuthKeyID, []byte(testPassword)))
	t.Cleanup(manager.Disconnect)
	return manager, dev
}

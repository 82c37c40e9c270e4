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

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/pkcs11"

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// writeFakeModule creates a file standing in for a module library so
// Validate's existence check passes.
func writeFakeModule(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libfake_pkcs11.so")
	if err := os.WriteFile(path, []byte{0x7f, 'E', 'L', 'F'}, 0644); err != nil {
		t.Fatalf("Failed to write fake module: %v", err)
	}
	return path
}

// TestConfigValidate tests connector configuration validation.
func TestConfigValidate(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		var cfg *Config
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("missing library", func(t *testing.T) {
		cfg := &Config{TokenLabel: "YubiHSM"}
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("library does not exist", func(t *testing.T) {
		cfg := &Config{
			Library:    filepath.Join(t.TempDir(), "missing.so"),
			TokenLabel: "YubiHSM",
		}
		if err := cfg.Validate(); !errors.Is(err, ErrLibraryNotFound) {
			t.Errorf("Validate() error = %v, want ErrLibraryNotFound", err)
		}
	})

	t.Run("missing token label and slot", func(t *testing.T) {
		cfg := &Config{Library: writeFakeModule(t)}
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("token label", func(t *testing.T) {
		cfg := &Config{Library: writeFakeModule(t), TokenLabel: "YubiHSM"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("slot only", func(t *testing.T) {
		slot := 0
		cfg := &Config{Library: writeFakeModule(t), Slot: &slot}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})
}

// TestNewConnector tests connector construction.
func TestNewConnector(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		if _, err := NewConnector(&Config{}); err == nil {
			t.Fatal("NewConnector() error = nil, want validation error")
		}
	})

	t.Run("valid config", func(t *testing.T) {
		conn, err := NewConnector(&Config{Library: writeFakeModule(t), TokenLabel: "YubiHSM"})
		if err != nil {
			t.Fatalf("NewConnector() error = %v", err)
		}
		if conn.Name() != ConnectorName {
			t.Errorf("Name() = %v, want %v", conn.Name(), ConnectorName)
		}
	})

	// Note: Open requires a loadable module (tested via integration tests)
}

// TestComposePIN tests the module login PIN composition.
func TestComposePIN(t *testing.T) {
	creds, err := hsm.NewCredentials(hsm.ObjectID(1), []byte("password"))
	if err != nil {
		t.Fatalf("NewCredentials() error = %v", err)
	}
	defer creds.Zeroize()

	t.Run("yubihsm convention", func(t *testing.T) {
		conn := &Connector{config: &Config{}}
		if pin := conn.composePIN(creds); pin != "0001password" {
			t.Errorf("composePIN() = %q, want 0001password", pin)
		}
	})

	t.Run("raw pin", func(t *testing.T) {
		conn := &Connector{config: &Config{RawPIN: true}}
		if pin := conn.composePIN(creds); pin != "password" {
			t.Errorf("composePIN() = %q, want password", pin)
		}
	})

	t.Run("credentials survive composition", func(t *testing.T) {
		conn := &Connector{config: &Config{}}
		conn.composePIN(creds)
		if !bytes.Equal(creds.Password(), []byte("password")) {
			t.Error("composePIN() corrupted the credential buffer")
		}
	})
}

// TestUnwrapECPoint tests CKA_EC_POINT decoding.
func TestUnwrapECPoint(t *testing.T) {
	bare := make([]byte, 65)
	bare[0] = 0x04
	for i := 1; i < len(bare); i++ {
		bare[i] = byte(i)
	}

	t.Run("DER octet string wrapper", func(t *testing.T) {
		wrapped := append([]byte{0x04, 0x41}, bare...)
		point, err := unwrapECPoint(wrapped)
		if err != nil {
			t.Fatalf("unwrapECPoint() error = %v", err)
		}
		if !bytes.Equal(point, bare) {
			t.Error("unwrapECPoint() did not strip the wrapper")
		}
	})

	t.Run("bare point", func(t *testing.T) {
		point, err := unwrapECPoint(bare)
		if err != nil {
			t.Fatalf("unwrapECPoint() error = %v", err)
		}
		if !bytes.Equal(point, bare) {
			t.Error("unwrapECPoint() modified a bare point")
		}
	})

	t.Run("unexpected encodings", func(t *testing.T) {
		cases := [][]byte{
			nil,
			make([]byte, 64),
			make([]byte, 66),
			func() []byte { // right length, wrong leading octet
				b := make([]byte, 65)
				b[0] = 0x02
				return b
			}(),
			func() []byte { // wrapper length mismatch
				b := append([]byte{0x04, 0x42}, bare...)
				return b[:67]
			}(),
		}
		for _, raw := range cases {
			if _, err := unwrapECPoint(raw); err == nil {
				t.Errorf("unwrapECPoint(%d bytes) error = nil, want encoding error", len(raw))
			}
		}
	})
}

// TestObjectIDBytes tests CKA_ID encoding.
func TestObjectIDBytes(t *testing.T) {
	tests := []struct {
		id   hsm.ObjectID
		want []byte
	}{
		{hsm.ObjectID(1), []byte{0x00, 0x01}},
		{hsm.ObjectID(0xf35b), []byte{0xf3, 0x5b}},
		{hsm.ObjectID(0xffff), []byte{0xff, 0xff}},
	}

	for _, tt := range tests {
		if got := objectIDBytes(tt.id); !bytes.Equal(got, tt.want) {
			t.Errorf("objectIDBytes(%s) = %x, want %x", tt.id, got, tt.want)
		}
	}
}

// TestAttrULong tests CK_ULONG attribute decoding.
func TestAttrULong(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		want uint64
	}{
		{"empty", nil, 0},
		{"single byte", []byte{0x2a}, 42},
		{"little endian 4 bytes", []byte{0x03, 0x00, 0x00, 0x00}, 3},
		{"little endian 8 bytes", []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attrULong(tt.b); got != tt.want {
				t.Errorf("attrULong(%x) = %d, want %d", tt.b, got, tt.want)
			}
		})
	}
}

// TestTypeToClass tests the object type to PKCS#11 class mapping.
func TestTypeToClass(t *testing.T) {
	tests := []struct {
		typ     hsm.ObjectType
		want    uint
		wantErr bool
	}{
		{hsm.TypeAsymmetricKey, pkcs11.CKO_PRIVATE_KEY, false},
		{hsm.TypeOpaque, pkcs11.CKO_CERTIFICATE, false},
		{hsm.TypeWrapKey, pkcs11.CKO_SECRET_KEY, false},
		{hsm.TypeHMACKey, pkcs11.CKO_SECRET_KEY, false},
		{hsm.TypeAuthenticationKey, 0, true},
		{hsm.TypeTemplate, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			class, err := typeToClass(tt.typ)
			if tt.wantErr {
				if !errors.Is(err, ErrNotExposed) {
					t.Errorf("typeToClass(%s) error = %v, want ErrNotExposed", tt.typ, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("typeToClass(%s) error = %v", tt.typ, err)
			}
			if class != tt.want {
				t.Errorf("typeToClass(%s) = %d, want %d", tt.typ, class, tt.want)
			}
		})
	}
}

// TestMatchesAll tests filter conjunction.
func TestMatchesAll(t *testing.T) {
	info := hsm.ObjectInfo{
		ID:    hsm.ObjectID(0xf35b),
		Type:  hsm.TypeAsymmetricKey,
		Label: "demo signing key",
	}

	if !matchesAll(info, nil) {
		t.Error("matchesAll() with no filters = false, want true")
	}
	if !matchesAll(info, []hsm.ObjectFilter{{ID: hsm.ObjectID(0xf35b)}, {Type: hsm.TypeAsymmetricKey}}) {
		t.Error("matchesAll() with matching filters = false, want true")
	}
	if matchesAll(info, []hsm.ObjectFilter{{ID: hsm.ObjectID(0xf35b)}, {Type: hsm.TypeOpaque}}) {
		t.Error("matchesAll() with one failing filter = true, want false")
	}
}

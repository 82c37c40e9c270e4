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

package softhsm

import (
	"crypto/ecdsa"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// Config seeds the software device with its initial objects. At least one
// authentication key is required or no session could ever be opened.
type Config struct {
	// AuthKeys are the authentication keys accepted by Open.
	AuthKeys []AuthKeyConfig `yaml:"auth-keys" json:"auth_keys" mapstructure:"auth-keys"`

	// SigningKeys are P-256 signing keys available after authentication.
	SigningKeys []SigningKeyConfig `yaml:"signing-keys" json:"signing_keys" mapstructure:"signing-keys"`
}

// AuthKeyConfig seeds one authentication key. Only the derived session key
// material is retained; the password itself is discarded after derivation.
type AuthKeyConfig struct {
	// ID is the object id, nonzero.
	ID uint16 `yaml:"id" json:"id" mapstructure:"id"`

	// Label is the object label, at most 40 bytes.
	Label string `yaml:"label" json:"label" mapstructure:"label"`

	// Password derives the session authentication key material.
	Password string `yaml:"password" json:"password" mapstructure:"password"`
}

// SigningKeyConfig seeds one P-256 signing key. When PEMFile is empty a
// fresh key is generated; otherwise the file must hold a PKCS#8 private
// key, optionally encrypted with PEMPassword.
type SigningKeyConfig struct {
	// ID is the object id, nonzero.
	ID uint16 `yaml:"id" json:"id" mapstructure:"id"`

	// Label is the object label, at most 40 bytes.
	Label string `yaml:"label" json:"label" mapstructure:"label"`

	// PEMFile is the path to a PEM-encoded PKCS#8 private key.
	PEMFile string `yaml:"pem-file" json:"pem_file" mapstructure:"pem-file"`

	// PEMPassword decrypts PEMFile when it is encrypted.
	PEMPassword string `yaml:"pem-password" json:"pem_password" mapstructure:"pem-password"`
}

// Validate checks the configuration for structural problems before any
// object is created.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("softhsm: configuration cannot be nil")
	}
	if len(c.AuthKeys) == 0 {
		return fmt.Errorf("softhsm: at least one authentication key is required")
	}
	for _, ak := range c.AuthKeys {
		if ak.ID == 0 {
			return fmt.Errorf("softhsm: authentication key id cannot be zero")
		}
		if len(ak.Label) > hsm.LabelSize {
			return fmt.Errorf("softhsm: authentication key %#04x label exceeds %d bytes", ak.ID, hsm.LabelSize)
		}
		if ak.Password == "" {
			return fmt.Errorf("softhsm: authentication key %#04x password cannot be empty", ak.ID)
		}
	}
	for _, sk := range c.SigningKeys {
		if sk.ID == 0 {
			return fmt.Errorf("softhsm: signing key id cannot be zero")
		}
		if len(sk.Label) > hsm.LabelSize {
			return fmt.Errorf("softhsm: signing key %#04x label exceeds %d bytes", sk.ID, hsm.LabelSize)
		}
	}
	return nil
}

// loadSigningKey reads and parses the PKCS#8 private key referenced by the
// seed, or reports that a key should be generated when no file is set.
func loadSigningKey(cfg SigningKeyConfig) (*ecdsa.PrivateKey, error) {
	if cfg.PEMFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(cfg.PEMFile)
	if err != nil {
		return nil, fmt.Errorf("softhsm: read signing key %#04x: %w", cfg.ID, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("softhsm: signing key %#04x: no PEM block in %s", cfg.ID, cfg.PEMFile)
	}

	var parsed interface{}
	if cfg.PEMPassword != "" {
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(cfg.PEMPassword))
	} else {
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("softhsm: signing key %#04x: parse PKCS#8: %w", cfg.ID, err)
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("softhsm: signing key %#04x: not an ECDSA private key", cfg.ID)
	}
	if key.Params().Name != "P-256" {
		return nil, fmt.Errorf("softhsm: signing key %#04x: unsupported curve %s", cfg.ID, key.Params().Name)
	}
	return key, nil
}

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
	"fmt"
	"os"
)

// Config contains configuration for the PKCS#11 connector. It specifies the
// PKCS#11 module to load, token identification, and how the login PIN is
// composed.
type Config struct {
	// Library is the path to the PKCS#11 module.
	// Examples:
	//   - /usr/lib/pkcs11/yubihsm_pkcs11.so (YubiHSM 2)
	//   - /usr/lib/softhsm/libsofthsm2.so (SoftHSM2)
	Library string `yaml:"library" json:"library" mapstructure:"library"`

	// LibraryConfig is the path to the module's own configuration file.
	// For yubihsm_pkcs11 it is exported as YUBIHSM_PKCS11_CONF before the
	// module is loaded.
	LibraryConfig string `yaml:"config,omitempty" json:"config,omitempty" mapstructure:"config"`

	// TokenLabel selects the token by label. Either TokenLabel or Slot
	// must be set.
	TokenLabel string `yaml:"label,omitempty" json:"label,omitempty" mapstructure:"label"`

	// Slot selects the token by physical slot number. Either TokenLabel
	// or Slot must be set.
	Slot *int `yaml:"slot,omitempty" json:"slot,omitempty" mapstructure:"slot"`

	// RawPIN passes the credential password through as the PIN unchanged.
	// By default the PIN is composed the yubihsm_pkcs11 way: the four hex
	// digits of the authentication key id followed by the password.
	// Enable this for modules with plain PINs, such as SoftHSM2.
	RawPIN bool `yaml:"raw-pin,omitempty" json:"raw_pin,omitempty" mapstructure:"raw-pin"`
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.Library == "" {
		return fmt.Errorf("%w: library path is required", ErrInvalidConfig)
	}
	if _, err := os.Stat(c.Library); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrLibraryNotFound, c.Library)
	}
	if c.TokenLabel == "" && c.Slot == nil {
		return fmt.Errorf("%w: token label or slot is required", ErrInvalidConfig)
	}
	return nil
}

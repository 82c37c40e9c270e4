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

package cli

import (
	"fmt"

	"github.com/jeremyhahn/go-hsm/internal/config"
	"github.com/jeremyhahn/go-hsm/pkg/connector/pkcs11"
	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// newPKCS11Connector builds the PKCS#11 connector from the configuration.
func newPKCS11Connector(cfg *config.Config) (hsm.Connector, error) {
	if cfg.PKCS11 == nil {
		return nil, fmt.Errorf("pkcs11 connector requires a pkcs11 config section")
	}

	conn, err := pkcs11.NewConnector(&pkcs11.Config{
		Library:       cfg.PKCS11.Library,
		LibraryConfig: cfg.PKCS11.LibraryConfig,
		TokenLabel:    cfg.PKCS11.TokenLabel,
		Slot:          cfg.PKCS11.Slot,
		RawPIN:        cfg.PKCS11.RawPIN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pkcs11 connector: %w", err)
	}
	return conn, nil
}

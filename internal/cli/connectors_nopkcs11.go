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

//go:build !pkcs11

package cli

import (
	"fmt"

	"github.com/jeremyhahn/go-hsm/internal/config"
	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// newPKCS11Connector reports that PKCS#11 support is not compiled in.
func newPKCS11Connector(cfg *config.Config) (hsm.Connector, error) {
	return nil, fmt.Errorf("pkcs11 support not compiled in; rebuild with -tags pkcs11")
}

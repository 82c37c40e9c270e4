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

package cli

import (
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-hsm/internal/config"
	"github.com/jeremyhahn/go-hsm/internal/password"
	"github.com/jeremyhahn/go-hsm/pkg/audit"
	"github.com/jeremyhahn/go-hsm/pkg/connector/softhsm"
	"github.com/jeremyhahn/go-hsm/pkg/hsm"
	"github.com/jeremyhahn/go-hsm/pkg/logging"
	"github.com/jeremyhahn/go-hsm/pkg/metrics"
)

// PasswordEnvVar names the environment variable consulted when no
// --password flag is given.
const PasswordEnvVar = "HSM_PASSWORD"

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// Connector overrides the configured connector (softhsm, pkcs11)
	Connector string

	// AuthKey overrides the configured authentication key object id
	AuthKey string

	// Password is the authentication password. Prefer the HSM_PASSWORD
	// environment variable or the interactive prompt over this flag.
	Password string

	// OutputFormat controls output formatting (text, json, yaml, table)
	OutputFormat string

	// Verbose enables verbose output
	Verbose bool

	loaded *config.Config
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
	}
}

// Load reads the toolkit configuration, applying flag overrides. The result
// is cached for the lifetime of the command.
func (c *Config) Load() (*config.Config, error) {
	if c.loaded != nil {
		return c.loaded, nil
	}

	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	if c.Connector != "" {
		cfg.Connector = strings.ToLower(c.Connector)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	c.loaded = cfg
	return cfg, nil
}

// CreateConnector creates a connector instance based on the configuration
func (c *Config) CreateConnector(cfg *config.Config) (hsm.Connector, error) {
	switch cfg.Connector {
	case "softhsm":
		return newSoftHSMConnector(cfg)
	case "pkcs11":
		return newPKCS11Connector(cfg)
	default:
		return nil, fmt.Errorf("unknown connector: %s", cfg.Connector)
	}
}

// newSoftHSMConnector builds the in-process software device from the
// configured seeds.
func newSoftHSMConnector(cfg *config.Config) (hsm.Connector, error) {
	if cfg.SoftHSM == nil {
		return nil, fmt.Errorf("softhsm connector requires a softhsm config section")
	}

	sc := &softhsm.Config{}
	for _, ak := range cfg.SoftHSM.AuthKeys {
		sc.AuthKeys = append(sc.AuthKeys, softhsm.AuthKeyConfig{
			ID:       ak.ID,
			Label:    ak.Label,
			Password: ak.Password,
		})
	}
	for _, sk := range cfg.SoftHSM.SigningKeys {
		sc.SigningKeys = append(sc.SigningKeys, softhsm.SigningKeyConfig{
			ID:          sk.ID,
			Label:       sk.Label,
			PEMFile:     sk.PEMFile,
			PEMPassword: sk.PEMPassword,
		})
	}

	conn, err := softhsm.New(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create softhsm connector: %w", err)
	}
	return conn, nil
}

// AuthKeyID resolves the authentication key id, preferring the --auth-key
// flag over the config file.
func (c *Config) AuthKeyID(cfg *config.Config) (hsm.ObjectID, error) {
	if c.AuthKey != "" {
		id, err := hsm.ParseObjectID(c.AuthKey)
		if err != nil {
			return 0, fmt.Errorf("invalid auth key id: %w", err)
		}
		return id, nil
	}
	return hsm.ObjectID(cfg.AuthKeyID), nil
}

// ResolvePassword returns the authentication password, trying the
// --password flag, the HSM_PASSWORD environment variable, and finally an
// interactive prompt. The caller owns the returned bytes.
func (c *Config) ResolvePassword(authKeyID hsm.ObjectID) ([]byte, error) {
	prompt := fmt.Sprintf("Enter password for authentication key %s: ", authKeyID)
	return password.Resolve(c.Password, PasswordEnvVar, prompt)
}

// NewLogger builds the logger from the configured level and format.
// --verbose forces debug level.
func (c *Config) NewLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Logging.Level
	if c.Verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Logging.Format)
}

// NewAuditor builds the audit sink from the configuration.
func (c *Config) NewAuditor(cfg *config.Config) (audit.Auditor, error) {
	if !cfg.Audit.Enabled {
		return audit.NewNopAuditor(), nil
	}
	if cfg.Audit.Path != "" {
		auditor, err := audit.NewFileAuditor(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		return auditor, nil
	}
	return audit.NewMemoryAuditor(), nil
}

// ConnectSession loads the configuration, builds the connector, resolves
// credentials, and opens the authenticated session. One-shot commands call
// this and defer Disconnect; the console reuses it for its connect command.
func (c *Config) ConnectSession() (*hsm.SessionManager, error) {
	cfg, err := c.Load()
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	conn, err := c.CreateConnector(cfg)
	if err != nil {
		return nil, err
	}

	authKeyID, err := c.AuthKeyID(cfg)
	if err != nil {
		return nil, err
	}

	pw, err := c.ResolvePassword(authKeyID)
	if err != nil {
		return nil, err
	}
	defer password.Zero(pw)

	auditor, err := c.NewAuditor(cfg)
	if err != nil {
		return nil, err
	}

	manager := hsm.NewSessionManager(
		hsm.WithLogger(c.NewLogger(cfg)),
		hsm.WithAuditor(auditor),
	)
	if err := manager.Connect(conn, authKeyID, pw); err != nil {
		return nil, err
	}
	return manager, nil
}

// SigningKeyID resolves the signing key id from an optional flag value,
// falling back to the configured default.
func (c *Config) SigningKeyID(cfg *config.Config, flagValue string) (hsm.ObjectID, error) {
	if flagValue != "" {
		id, err := hsm.ParseObjectID(flagValue)
		if err != nil {
			return 0, fmt.Errorf("invalid signing key id: %w", err)
		}
		return id, nil
	}
	return hsm.ObjectID(cfg.SigningKeyID), nil
}

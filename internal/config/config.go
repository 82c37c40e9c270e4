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

// Package config loads and validates the operator toolkit configuration.
//
// Configuration is read from a YAML file with HSM_* environment variable
// overrides layered on top (HSM_LOGGING_LEVEL overrides logging.level and
// so on). Connector sections are mirrored here rather than imported from
// the connector packages so that a config file mentioning the pkcs11
// connector still parses in binaries built without the pkcs11 build tag.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// DefaultSigningKeyID is the demo signing key shipped on factory-provisioned
// devices, used when no signing key is configured.
const DefaultSigningKeyID uint16 = 0xf35b

// Config represents the complete toolkit configuration.
type Config struct {
	Connector    string `mapstructure:"connector" yaml:"connector"`
	AuthKeyID    uint16 `mapstructure:"auth_key_id" yaml:"auth_key_id"`
	SigningKeyID uint16 `mapstructure:"signing_key_id" yaml:"signing_key_id"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`

	PKCS11  *PKCS11Config  `mapstructure:"pkcs11" yaml:"pkcs11,omitempty"`
	SoftHSM *SoftHSMConfig `mapstructure:"softhsm" yaml:"softhsm,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the diagnostics listener serving Prometheus
// metrics and health probes from the console.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// AuditConfig controls the audit trail. An empty path keeps events in
// memory for the lifetime of the process; a path appends JSON lines.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// PKCS11Config contains pkcs11 connector settings.
type PKCS11Config struct {
	Library       string `mapstructure:"library" yaml:"library"`
	LibraryConfig string `mapstructure:"library_config" yaml:"library_config"`
	TokenLabel    string `mapstructure:"token_label" yaml:"token_label"`
	Slot          *int   `mapstructure:"slot" yaml:"slot,omitempty"`
	RawPIN        bool   `mapstructure:"raw_pin" yaml:"raw_pin"`
}

// SoftHSMConfig contains softhsm connector settings: the authentication
// keys and signing keys seeded into the in-process device store.
type SoftHSMConfig struct {
	AuthKeys    []AuthKeyConfig    `mapstructure:"auth_keys" yaml:"auth_keys"`
	SigningKeys []SigningKeyConfig `mapstructure:"signing_keys" yaml:"signing_keys,omitempty"`
}

// AuthKeyConfig seeds one authentication key.
type AuthKeyConfig struct {
	ID       uint16 `mapstructure:"id" yaml:"id"`
	Label    string `mapstructure:"label" yaml:"label"`
	Password string `mapstructure:"password" yaml:"password"`
}

// SigningKeyConfig seeds one P-256 signing key. When PEMFile is empty the
// key is generated at startup.
type SigningKeyConfig struct {
	ID          uint16 `mapstructure:"id" yaml:"id"`
	Label       string `mapstructure:"label" yaml:"label"`
	PEMFile     string `mapstructure:"pem_file" yaml:"pem_file,omitempty"`
	PEMPassword string `mapstructure:"pem_password" yaml:"pem_password,omitempty"`
}

// Default returns the configuration used when no config file exists: the
// softhsm connector with the factory default authentication key and a demo
// signing key generated at startup.
func Default() *Config {
	return &Config{
		Connector:    "softhsm",
		AuthKeyID:    uint16(hsm.DefaultAuthKeyID),
		SigningKeyID: DefaultSigningKeyID,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
			Path:    "/metrics",
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		SoftHSM: &SoftHSMConfig{
			AuthKeys: []AuthKeyConfig{
				{ID: uint16(hsm.DefaultAuthKeyID), Label: "DEFAULT AUTHKEY CHANGE THIS ASAP", Password: "password"},
			},
			SigningKeys: []SigningKeyConfig{
				{ID: DefaultSigningKeyID, Label: "demo signing key"},
			},
		},
	}
}

// Load reads configuration from path with HSM_* environment overrides.
// An empty path searches the working directory, $HOME/.hsm, and /etc/hsm
// for hsm.yaml; if none exists the defaults are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hsm")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.hsm")
		v.AddConfigPath("/etc/hsm")
	}

	v.SetEnvPrefix("HSM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file anywhere: run on defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.SoftHSM == nil && cfg.Connector == "softhsm" {
		cfg.SoftHSM = Default().SoftHSM
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("connector", d.Connector)
	v.SetDefault("auth_key_id", d.AuthKeyID)
	v.SetDefault("signing_key_id", d.SigningKeyID)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.path", d.Audit.Path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Connector {
	case "softhsm", "pkcs11":
	case "":
		return fmt.Errorf("connector must be specified")
	default:
		return fmt.Errorf("unknown connector: %s (must be softhsm or pkcs11)", c.Connector)
	}

	if c.AuthKeyID == 0 {
		return fmt.Errorf("auth_key_id cannot be zero")
	}
	if c.SigningKeyID == 0 {
		return fmt.Errorf("signing_key_id cannot be zero")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return fmt.Errorf("metrics addr is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return fmt.Errorf("metrics path is required when metrics are enabled")
		}
	}

	switch c.Connector {
	case "pkcs11":
		if c.PKCS11 == nil {
			return fmt.Errorf("pkcs11 connector requires a pkcs11 config section")
		}
		if c.PKCS11.Library == "" {
			return fmt.Errorf("pkcs11 library is required")
		}
		if c.PKCS11.TokenLabel == "" && c.PKCS11.Slot == nil {
			return fmt.Errorf("pkcs11 requires token_label or slot")
		}
	case "softhsm":
		if c.SoftHSM == nil || len(c.SoftHSM.AuthKeys) == 0 {
			return fmt.Errorf("softhsm connector requires at least one auth key")
		}
		for i, ak := range c.SoftHSM.AuthKeys {
			if ak.ID == 0 {
				return fmt.Errorf("softhsm auth key %d: id cannot be zero", i)
			}
			if ak.Password == "" {
				return fmt.Errorf("softhsm auth key 0x%04x: password cannot be empty", ak.ID)
			}
		}
		for i, sk := range c.SoftHSM.SigningKeys {
			if sk.ID == 0 {
				return fmt.Errorf("softhsm signing key %d: id cannot be zero", i)
			}
		}
	}

	return nil
}

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
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global configuration
	globalConfig *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hsm",
	Short: "go-hsm CLI - Hardware security module operator toolkit",
	Long: `go-hsm CLI provides a command-line interface for operating an HSM
over a single authenticated session: ECDSA P-256 signing and
verification, object inventory, and guarded object deletion.

Supported connectors:
  - softhsm: in-process software device for development and testing
  - pkcs11:  hardware devices via a PKCS#11 module (build with -tags pkcs11)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize global config
	globalConfig = NewConfig()

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&globalConfig.ConfigFile, "config", "",
		"config file (default searches ., $HOME/.hsm, /etc/hsm for hsm.yaml)")
	rootCmd.PersistentFlags().StringVar(&globalConfig.Connector, "connector", "",
		"connector to use (softhsm, pkcs11); overrides the config file")
	rootCmd.PersistentFlags().StringVar(&globalConfig.AuthKey, "auth-key", "",
		"authentication key object id (decimal or hex); overrides the config file")
	rootCmd.PersistentFlags().StringVar(&globalConfig.Password, "password", "",
		"authentication password (prefer HSM_PASSWORD or the interactive prompt)")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json, yaml, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalConfig.Verbose, "verbose", "v", false,
		"verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(consoleCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	printer := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if globalConfig.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}

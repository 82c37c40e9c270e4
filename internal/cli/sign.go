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
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// signCmd signs a message with a device-resident key
var signCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message with a device key",
	Long: `Sign a message with an ECDSA P-256 key on the device.

The message is hashed with SHA-256 and the digest signed on the device.
The signature is printed base64-encoded in the device's native encoding.
Pass --file to sign file contents instead of a command-line argument.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		keyFlag, _ := cmd.Flags().GetString("key")
		file, _ := cmd.Flags().GetString("file")

		message, err := readMessage(args, file)
		if err != nil {
			handleError(err)
			return
		}

		fileCfg, err := cfg.Load()
		if err != nil {
			handleError(err)
			return
		}
		keyID, err := cfg.SigningKeyID(fileCfg, keyFlag)
		if err != nil {
			handleError(err)
			return
		}

		printVerbose("Signing %d bytes with key: %s", len(message), keyID)

		manager, err := cfg.ConnectSession()
		if err != nil {
			handleError(err)
			return
		}
		defer manager.Disconnect()

		digest := sha256.Sum256(message)
		printVerbose("Message digest (hex): %x", digest)

		signature, err := manager.Sign(keyID, message)
		if err != nil {
			handleError(err)
			return
		}

		printVerbose("Signature size: %d bytes", len(signature))

		sigBase64 := base64.StdEncoding.EncodeToString(signature)
		if err := printer.PrintSignature(sigBase64); err != nil {
			handleError(err)
		}
	},
}

// readMessage returns the message bytes from the positional argument or,
// when --file is set, from the named file.
func readMessage(args []string, file string) ([]byte, error) {
	if file != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("pass a message argument or --file, not both")
		}
		// #nosec G304 - File path is provided by the operator
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read message file: %w", err)
		}
		return data, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("a message argument or --file is required")
	}
	return []byte(args[0]), nil
}

func init() {
	signCmd.Flags().String("key", "", "signing key object id (decimal or hex, default from config)")
	signCmd.Flags().String("file", "", "sign the contents of this file instead of a message argument")
}

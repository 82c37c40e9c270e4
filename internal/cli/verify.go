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
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// verifyCmd verifies a signature against a device-resident public key
var verifyCmd = &cobra.Command{
	Use:   "verify <message> <signature>",
	Short: "Verify a signature against a device key",
	Long: `Verify that a signature is valid for the given message.

The public key is fetched from the device and the verification runs
locally. The signature argument is base64; both raw 64-byte r||s and
DER-encoded ECDSA signatures are accepted. Exits nonzero when the
signature does not verify.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		keyFlag, _ := cmd.Flags().GetString("key")
		file, _ := cmd.Flags().GetString("file")

		var message []byte
		var sigArg string
		var err error
		if file != "" {
			if len(args) != 1 {
				handleError(fmt.Errorf("with --file, pass only the signature argument"))
				return
			}
			message, err = readMessage(nil, file)
			if err != nil {
				handleError(err)
				return
			}
			sigArg = args[0]
		} else {
			if len(args) != 2 {
				handleError(fmt.Errorf("a message and a signature argument are required"))
				return
			}
			message = []byte(args[0])
			sigArg = args[1]
		}

		signature, err := base64.StdEncoding.DecodeString(sigArg)
		if err != nil {
			handleError(fmt.Errorf("failed to decode signature: %w", err))
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

		printVerbose("Verifying signature with key: %s", keyID)
		printVerbose("Signature size: %d bytes", len(signature))

		manager, err := cfg.ConnectSession()
		if err != nil {
			handleError(err)
			return
		}
		defer manager.Disconnect()

		valid, err := manager.Verify(keyID, message, signature)
		if err != nil {
			handleError(err)
			return
		}

		if err := printer.PrintVerification(valid); err != nil {
			handleError(err)
			return
		}
		if !valid {
			manager.Disconnect()
			os.Exit(1)
		}
	},
}

func init() {
	verifyCmd.Flags().String("key", "", "signing key object id (decimal or hex, default from config)")
	verifyCmd.Flags().String("file", "", "verify the contents of this file instead of a message argument")
}

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

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// objectsCmd is the parent command for object inventory operations
var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "Inspect and manage device objects",
	Long:  `List, inspect, and delete objects stored on the device.`,
}

// objectsListCmd lists device objects with their summaries
var objectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List device objects",
	Long: `List every object visible under the session's authentication key.

Asymmetric keys include their public key hex-encoded. Filters narrow the
listing; with no filters every object is returned.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		filter, err := filterFromFlags(cmd)
		if err != nil {
			handleError(err)
			return
		}

		manager, err := cfg.ConnectSession()
		if err != nil {
			handleError(err)
			return
		}
		defer manager.Disconnect()

		summaries, err := manager.ListObjectSummaries(filter)
		if err != nil {
			handleError(err)
			return
		}

		printVerbose("Listed %d objects", len(summaries))

		if err := printer.PrintObjectList(summaries); err != nil {
			handleError(err)
		}
	},
}

// objectsInfoCmd shows detailed metadata for one object
var objectsInfoCmd = &cobra.Command{
	Use:   "info <object-id>",
	Short: "Show object metadata",
	Long:  `Show the detailed metadata of one device object.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		id, err := hsm.ParseObjectID(args[0])
		if err != nil {
			handleError(fmt.Errorf("invalid object id: %w", err))
			return
		}
		typ, err := objectTypeFlag(cmd)
		if err != nil {
			handleError(err)
			return
		}

		manager, err := cfg.ConnectSession()
		if err != nil {
			handleError(err)
			return
		}
		defer manager.Disconnect()

		info, err := manager.GetObjectInfo(id, typ)
		if err != nil {
			handleError(err)
			return
		}

		if err := printer.PrintObjectInfo(info); err != nil {
			handleError(err)
		}
	},
}

// objectsPubKeyCmd prints the public key stored under an object id
var objectsPubKeyCmd = &cobra.Command{
	Use:   "pubkey <object-id>",
	Short: "Print an object's public key",
	Long:  `Print the public key material stored under an object id, hex-encoded.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		id, err := hsm.ParseObjectID(args[0])
		if err != nil {
			handleError(fmt.Errorf("invalid object id: %w", err))
			return
		}

		manager, err := cfg.ConnectSession()
		if err != nil {
			handleError(err)
			return
		}
		defer manager.Disconnect()

		pub, err := manager.GetPublicKey(id)
		if err != nil {
			handleError(err)
			return
		}

		if err := printer.PrintPublicKey(id, pub); err != nil {
			handleError(err)
		}
	},
}

// objectsDeleteCmd deletes an object
var objectsDeleteCmd = &cobra.Command{
	Use:   "delete <object-id>",
	Short: "Delete an object",
	Long: `Delete an object from the device.

Authentication keys cannot be deleted; the request is refused before any
device call to keep the session's credential intact.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		id, err := hsm.ParseObjectID(args[0])
		if err != nil {
			handleError(fmt.Errorf("invalid object id: %w", err))
			return
		}
		typ, err := objectTypeFlag(cmd)
		if err != nil {
			handleError(err)
			return
		}

		printVerbose("Deleting object: %s (%s)", id, typ)

		manager, err := cfg.ConnectSession()
		if err != nil {
			handleError(err)
			return
		}
		defer manager.Disconnect()

		if err := manager.DeleteObject(id, typ); err != nil {
			handleError(err)
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Successfully deleted object: %s", id)); err != nil {
			handleError(err)
		}
	},
}

// filterFromFlags builds an object filter from the list command flags.
func filterFromFlags(cmd *cobra.Command) (hsm.ObjectFilter, error) {
	var filter hsm.ObjectFilter

	if idArg, _ := cmd.Flags().GetString("id"); idArg != "" {
		id, err := hsm.ParseObjectID(idArg)
		if err != nil {
			return filter, fmt.Errorf("invalid --id: %w", err)
		}
		filter.ID = id
	}
	if typArg, _ := cmd.Flags().GetString("type"); typArg != "" {
		typ, err := hsm.ParseObjectType(typArg)
		if err != nil {
			return filter, fmt.Errorf("invalid --type: %w", err)
		}
		filter.Type = typ
	}
	if label, _ := cmd.Flags().GetString("label"); label != "" {
		filter.Label = hsm.Label(label)
	}
	return filter, nil
}

// objectTypeFlag parses the required --type flag.
func objectTypeFlag(cmd *cobra.Command) (hsm.ObjectType, error) {
	typArg, _ := cmd.Flags().GetString("type")
	if typArg == "" {
		return 0, fmt.Errorf("--type is required (e.g. asymmetric-key, opaque, wrap-key, hmac-key)")
	}
	typ, err := hsm.ParseObjectType(typArg)
	if err != nil {
		return 0, fmt.Errorf("invalid --type: %w", err)
	}
	return typ, nil
}

func init() {
	objectsCmd.AddCommand(objectsListCmd)
	objectsCmd.AddCommand(objectsInfoCmd)
	objectsCmd.AddCommand(objectsPubKeyCmd)
	objectsCmd.AddCommand(objectsDeleteCmd)

	objectsListCmd.Flags().String("id", "", "filter by object id (decimal or hex)")
	objectsListCmd.Flags().String("type", "", "filter by object type")
	objectsListCmd.Flags().String("label", "", "filter by exact label")

	objectsInfoCmd.Flags().String("type", "", "object type (required)")
	objectsDeleteCmd.Flags().String("type", "", "object type (required)")
}

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
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-hsm/internal/config"
	"github.com/jeremyhahn/go-hsm/internal/password"
	"github.com/jeremyhahn/go-hsm/pkg/audit"
	"github.com/jeremyhahn/go-hsm/pkg/hsm"
	"github.com/jeremyhahn/go-hsm/pkg/logging"
)

// consoleCmd runs the interactive operator console
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive operator console",
	Long: `Run an interactive console against the device.

The console holds a single authenticated session across commands and
keeps the most recent signature so it can be verified without retyping.
When metrics are enabled in the configuration, a diagnostics listener
serves Prometheus metrics and health probes while the console runs.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConsole(getConfig(), os.Stdin, os.Stdout); err != nil {
			handleError(err)
		}
	},
}

// console holds the state shared by console commands: the session, the
// output printer, and the optional diagnostics listener.
type console struct {
	cfg     *Config
	fileCfg *config.Config
	manager *hsm.SessionManager
	auditor audit.Auditor
	printer *Printer
	log     *logging.Logger
	diag    *diagnostics
	out     io.Writer
}

func runConsole(cfg *Config, in io.Reader, out io.Writer) error {
	fileCfg, err := cfg.Load()
	if err != nil {
		return err
	}

	auditor, err := cfg.NewAuditor(fileCfg)
	if err != nil {
		return err
	}

	c := &console{
		cfg:     cfg,
		fileCfg: fileCfg,
		auditor: auditor,
		printer: NewPrinter(cfg.OutputFormat, out),
		log:     cfg.NewLogger(fileCfg),
		out:     out,
	}
	c.manager = hsm.NewSessionManager(
		hsm.WithLogger(c.log),
		hsm.WithAuditor(auditor),
	)
	defer c.close()

	if err := c.connect(); err != nil {
		// Start disconnected; the operator can retry with the connect command.
		c.printer.PrintError(err)
	}

	if fileCfg.Metrics.Enabled {
		c.diag = startDiagnostics(fileCfg, c.manager, c.log)
	}

	fmt.Fprintln(out, "go-hsm console. Type help for commands, exit to leave.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "hsm> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := c.dispatch(fields[0], fields[1:]); err != nil {
			c.printer.PrintError(err)
		}
	}
}

func (c *console) close() {
	if c.diag != nil {
		c.diag.Stop()
	}
	c.manager.Disconnect()
	if err := c.auditor.Close(); err != nil {
		c.log.Errorf("Failed to close audit sink: %v", err)
	}
}

func (c *console) dispatch(verb string, args []string) error {
	switch verb {
	case "help":
		c.printHelp()
		return nil
	case "connect":
		return c.connect()
	case "disconnect":
		c.manager.Disconnect()
		return c.printer.PrintSuccess("Disconnected")
	case "status":
		return c.status()
	case "sign":
		return c.sign(args)
	case "verify":
		return c.verify(args)
	case "list":
		return c.list(args)
	case "info":
		return c.info(args)
	case "pubkey":
		return c.pubkey(args)
	case "delete":
		return c.delete(args)
	case "signature":
		return c.lastSignature()
	case "clear":
		c.manager.ClearLastSignature()
		return c.printer.PrintSuccess("Cleared last signature")
	default:
		return fmt.Errorf("unknown command: %s (try help)", verb)
	}
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  connect                         open a session (replaces the current one)
  disconnect                      close the session
  status                          show session state
  sign <key-id> <message...>      sign a message, remember the signature
  verify <key-id> <sig|last> <message...>
                                  verify a base64 signature, or the last one
  list [type]                     list objects, optionally by type
  info <object-id> <type>         show object metadata
  pubkey <object-id>              print an object's public key
  delete <object-id> <type>       delete an object (auth keys refused)
  signature                       print the last signature
  clear                           forget the last signature
  exit                            leave the console
`)
}

// connect opens a new session, replacing any current one on success.
func (c *console) connect() error {
	conn, err := c.cfg.CreateConnector(c.fileCfg)
	if err != nil {
		return err
	}
	authKeyID, err := c.cfg.AuthKeyID(c.fileCfg)
	if err != nil {
		return err
	}
	pw, err := c.cfg.ResolvePassword(authKeyID)
	if err != nil {
		return err
	}
	defer password.Zero(pw)

	if err := c.manager.Connect(conn, authKeyID, pw); err != nil {
		return err
	}
	return c.status()
}

func (c *console) status() error {
	sessionID, _ := c.manager.SessionID()
	authKeyID, _ := c.manager.AuthKeyID()
	connector := ""
	if client, err := c.manager.ActiveClient(); err == nil {
		connector = client.Connector()
	}
	return c.printer.PrintSessionStatus(connector, sessionID, authKeyID)
}

func (c *console) sign(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sign <key-id> <message...>")
	}
	keyID, err := hsm.ParseObjectID(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}
	message := strings.Join(args[1:], " ")

	signature, err := c.manager.Sign(keyID, []byte(message))
	if err != nil {
		return err
	}
	return c.printer.PrintSignature(base64.StdEncoding.EncodeToString(signature))
}

func (c *console) verify(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: verify <key-id> <signature|last> <message...>")
	}
	keyID, err := hsm.ParseObjectID(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}

	var signature []byte
	if args[1] == "last" {
		sig, ok := c.manager.LastSignature()
		if !ok {
			return fmt.Errorf("no signature available; sign something first")
		}
		signature = sig
	} else {
		signature, err = base64.StdEncoding.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("failed to decode signature: %w", err)
		}
	}

	message := strings.Join(args[2:], " ")
	valid, err := c.manager.Verify(keyID, []byte(message), signature)
	if err != nil {
		return err
	}
	return c.printer.PrintVerification(valid)
}

func (c *console) list(args []string) error {
	var filter hsm.ObjectFilter
	if len(args) > 0 {
		typ, err := hsm.ParseObjectType(args[0])
		if err != nil {
			return fmt.Errorf("invalid type: %w", err)
		}
		filter.Type = typ
	}

	summaries, err := c.manager.ListObjectSummaries(filter)
	if err != nil {
		return err
	}
	return c.printer.PrintObjectList(summaries)
}

func (c *console) info(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: info <object-id> <type>")
	}
	id, err := hsm.ParseObjectID(args[0])
	if err != nil {
		return fmt.Errorf("invalid object id: %w", err)
	}
	typ, err := hsm.ParseObjectType(args[1])
	if err != nil {
		return fmt.Errorf("invalid type: %w", err)
	}

	info, err := c.manager.GetObjectInfo(id, typ)
	if err != nil {
		return err
	}
	return c.printer.PrintObjectInfo(info)
}

func (c *console) pubkey(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pubkey <object-id>")
	}
	id, err := hsm.ParseObjectID(args[0])
	if err != nil {
		return fmt.Errorf("invalid object id: %w", err)
	}

	pub, err := c.manager.GetPublicKey(id)
	if err != nil {
		return err
	}
	return c.printer.PrintPublicKey(id, pub)
}

func (c *console) delete(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delete <object-id> <type>")
	}
	id, err := hsm.ParseObjectID(args[0])
	if err != nil {
		return fmt.Errorf("invalid object id: %w", err)
	}
	typ, err := hsm.ParseObjectType(args[1])
	if err != nil {
		return fmt.Errorf("invalid type: %w", err)
	}

	if err := c.manager.DeleteObject(id, typ); err != nil {
		return err
	}
	return c.printer.PrintSuccess(fmt.Sprintf("Successfully deleted object: %s", id))
}

func (c *console) lastSignature() error {
	sig, ok := c.manager.LastSignature()
	if !ok {
		return fmt.Errorf("no signature available; sign something first")
	}
	return c.printer.PrintSignature(base64.StdEncoding.EncodeToString(sig))
}

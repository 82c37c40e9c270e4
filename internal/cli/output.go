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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// objectSummaryMap flattens a summary for structured output, rendering ids
// in the 0x%04x form operators use.
func objectSummaryMap(s hsm.ObjectSummary) map[string]interface{} {
	m := map[string]interface{}{
		"id":        s.ID.String(),
		"type":      s.Type.String(),
		"algorithm": s.Algorithm.String(),
		"sequence":  s.Sequence,
		"label":     string(s.Label),
	}
	if s.PublicKey != "" {
		m["public_key"] = s.PublicKey
	}
	return m
}

// PrintObjectList prints the object inventory
func (p *Printer) PrintObjectList(summaries []hsm.ObjectSummary) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		objects := make([]map[string]interface{}, len(summaries))
		for i, s := range summaries {
			objects[i] = objectSummaryMap(s)
		}
		return p.printStructured(map[string]interface{}{
			"objects": objects,
		})
	case OutputFormatTable:
		if len(summaries) == 0 {
			fmt.Fprintln(p.writer, "No objects found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-8s %-20s %-15s %-5s %-20s %s\n", "ID", "TYPE", "ALGORITHM", "SEQ", "LABEL", "PUBLIC KEY")
		fmt.Fprintln(p.writer, strings.Repeat("-", 96))
		for _, s := range summaries {
			fmt.Fprintf(p.writer, "%-8s %-20s %-15s %-5d %-20s %s\n",
				s.ID, s.Type, s.Algorithm, s.Sequence, truncate(string(s.Label), 20), truncate(s.PublicKey, 24))
		}
		return nil
	case OutputFormatText:
		if len(summaries) == 0 {
			fmt.Fprintln(p.writer, "No objects found")
			return nil
		}
		fmt.Fprintln(p.writer, "Objects:")
		for _, s := range summaries {
			fmt.Fprintf(p.writer, "  - %s (%s, %s) seq=%d label=%q\n",
				s.ID, s.Type, s.Algorithm, s.Sequence, string(s.Label))
			if s.PublicKey != "" {
				fmt.Fprintf(p.writer, "    public key: %s\n", s.PublicKey)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintObjectInfo prints detailed object metadata
func (p *Printer) PrintObjectInfo(info hsm.ObjectInfo) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.printStructured(map[string]interface{}{
			"id":        info.ID.String(),
			"type":      info.Type.String(),
			"algorithm": info.Algorithm.String(),
			"sequence":  info.Sequence,
			"label":     string(info.Label),
			"size":      info.Size,
			"domains":   fmt.Sprintf("0x%04x", info.Domains),
			"origin":    info.Origin.String(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Object Information:\n")
		fmt.Fprintf(p.writer, "  ID:        %s\n", info.ID)
		fmt.Fprintf(p.writer, "  Type:      %s\n", info.Type)
		fmt.Fprintf(p.writer, "  Algorithm: %s\n", info.Algorithm)
		fmt.Fprintf(p.writer, "  Sequence:  %d\n", info.Sequence)
		fmt.Fprintf(p.writer, "  Label:     %s\n", string(info.Label))
		fmt.Fprintf(p.writer, "  Size:      %d bytes\n", info.Size)
		fmt.Fprintf(p.writer, "  Domains:   0x%04x\n", info.Domains)
		fmt.Fprintf(p.writer, "  Origin:    %s\n", info.Origin)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintPublicKey prints raw public key material hex-encoded
func (p *Printer) PrintPublicKey(id hsm.ObjectID, pub hsm.PublicKey) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.printStructured(map[string]interface{}{
			"id":         id.String(),
			"algorithm":  pub.Algorithm.String(),
			"public_key": pub.Hex(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, pub.Hex())
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSignature prints a signature (base64 encoded)
func (p *Printer) PrintSignature(signature string) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.printStructured(map[string]interface{}{
			"signature": signature,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, signature)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintVerification prints a verification verdict
func (p *Printer) PrintVerification(valid bool) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.printStructured(map[string]interface{}{
			"valid": valid,
		})
	case OutputFormatTable, OutputFormatText:
		if valid {
			fmt.Fprintln(p.writer, "Signature valid")
		} else {
			fmt.Fprintln(p.writer, "Signature INVALID")
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSessionStatus prints the state of the device session
func (p *Printer) PrintSessionStatus(connector, sessionID string, authKeyID hsm.ObjectID) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.printStructured(map[string]interface{}{
			"connected":   sessionID != "",
			"connector":   connector,
			"session_id":  sessionID,
			"auth_key_id": authKeyID.String(),
		})
	case OutputFormatTable, OutputFormatText:
		if sessionID == "" {
			fmt.Fprintln(p.writer, "Not connected")
			return nil
		}
		fmt.Fprintf(p.writer, "Connected:\n")
		fmt.Fprintf(p.writer, "  Connector: %s\n", connector)
		fmt.Fprintf(p.writer, "  Session:   %s\n", sessionID)
		fmt.Fprintf(p.writer, "  Auth Key:  %s\n", authKeyID)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.printStructured(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.printStructured(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printStructured prints data as JSON or YAML per the active format
func (p *Printer) printStructured(data interface{}) error {
	if p.format == OutputFormatYAML {
		return p.printYAML(data)
	}
	return p.printJSON(data)
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// printYAML prints data as YAML
func (p *Printer) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(p.writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

// truncate shortens s for table cells
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

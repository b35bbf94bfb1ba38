// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format is an output format accepted by -o.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a string into a Format, returning an error if invalid.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Print writes data in the given format. Table output uses table when it is not nil and falls
// back to emptyMsg when isEmpty is set.
func Print(w io.Writer, format Format, data any, table TableRenderer, isEmpty bool, emptyMsg string) error {
	switch format {
	case FormatJSON:
		return PrintJSON(w, data)
	case FormatYAML:
		return PrintYAML(w, data)
	case FormatTable:
		if isEmpty {
			_, err := fmt.Fprintln(w, emptyMsg)

			return err
		}

		if table == nil {
			return PrintJSON(w, data)
		}

		return PrintTable(w, table)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

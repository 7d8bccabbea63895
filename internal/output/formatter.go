// Package output renders volumes as tables, YAML or JSON.
package output

import (
	"fmt"

	"voltrack/internal/volume"
)

// Format represents an output format type.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// Formatter formats volumes for output.
type Formatter interface {
	FormatVolume(v *volume.Volume) (string, error)
	FormatVolumeList(vols []*volume.Volume) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
	// Wide adds identity columns to tables.
	Wide bool
}

// NewFormatter creates a Formatter for the requested format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable, "":
		return &TableFormatter{NoHeaders: opts.NoHeaders, Wide: opts.Wide}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// Encode renders an arbitrary value as YAML or JSON.
func Encode(format Format, v any) (string, error) {
	switch format {
	case FormatYAML:
		return encodeYAML(v)
	case FormatJSON:
		return encodeJSON(v)
	default:
		return "", fmt.Errorf("format %s cannot encode arbitrary values", format)
	}
}

package metadata

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat names an annotate rendering.
type OutputFormat string

// The supported annotate output formats.
const (
	FormatTable  OutputFormat = "table"
	FormatTSV    OutputFormat = "tsv"
	FormatCSV    OutputFormat = "csv"
	FormatJSON   OutputFormat = "json"
	FormatSQLite OutputFormat = "sqlite"
)

// AllOutputFormats returns the formats in canonical order.
func AllOutputFormats() []OutputFormat {
	return []OutputFormat{FormatTable, FormatTSV, FormatCSV, FormatJSON, FormatSQLite}
}

// ParseOutputFormat validates a format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllOutputFormats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (expected one of %s)", s, formatNames())
}

func formatNames() string {
	all := AllOutputFormats()
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// ValidateOutput enforces output-path rules before any network work.
// sqlite writes a database file, so it cannot target stdout.
func ValidateOutput(format OutputFormat, path string) error {
	if format == FormatSQLite && path == "" {
		return fmt.Errorf("output format %s requires -o FILE", format)
	}
	return nil
}

// Render writes the table in the given stream format. FormatSQLite is
// file-based and handled by WriteSQLite instead.
func Render(w io.Writer, format OutputFormat, table *Table) error {
	switch format {
	case FormatTable:
		return renderAligned(w, table)
	case FormatTSV:
		return renderDelimited(w, table, '\t')
	case FormatCSV:
		return renderDelimited(w, table, ',')
	case FormatJSON:
		return renderJSON(w, table)
	case FormatSQLite:
		return fmt.Errorf("format %s is not a stream format", format)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderAligned(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(t.Fields, "\t")); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if _, err := fmt.Fprintln(tw, strings.Join(rowValues(t.Fields, row), "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func renderDelimited(w io.Writer, t *Table, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(t.Fields); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(rowValues(t.Fields, row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderJSON(w io.Writer, t *Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.Rows)
}

func rowValues(fields []string, row map[string]string) []string {
	vals := make([]string, len(fields))
	for i, f := range fields {
		vals[i] = row[f]
	}
	return vals
}

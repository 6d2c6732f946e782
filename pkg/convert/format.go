// Package convert plans and executes the conversion of downloaded
// artifacts into the requested output formats.
//
// The planner (Plan) decides the minimal step sequence for an artifact
// kind and format set; the Pipeline executes those steps through
// external tools, with skip-if-exists and temp-file discipline applied
// per produced file.
package convert

import (
	"errors"
	"fmt"
	"strings"
)

// Format is one requestable output format.
type Format string

// The closed format set. FormatSRA is the container-native passthrough.
const (
	FormatSRA     Format = "sra"
	FormatFastq   Format = "fastq"
	FormatFastqGz Format = "fastq.gz"
	FormatFasta   Format = "fasta"
	FormatFastaGz Format = "fasta.gz"
)

// Format parse errors.
var (
	// ErrUnknownFormat indicates a format name outside the closed set.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrNoFormats indicates an empty format request.
	ErrNoFormats = errors.New("no output formats specified")
)

// AllFormats returns every format in canonical order.
func AllFormats() []Format {
	return []Format{FormatSRA, FormatFastq, FormatFastqGz, FormatFasta, FormatFastaGz}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFormats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Ext returns the filename extension for the format. Extensions equal
// the format names, which keeps output paths self-describing.
func (f Format) Ext() string { return string(f) }

// String returns the format name.
func (f Format) String() string { return string(f) }

// compressed reports whether the format is a gzip variant.
func (f Format) compressed() bool {
	return f == FormatFastqGz || f == FormatFastaGz
}

// uncompressed returns the base of a gzip variant.
func (f Format) uncompressed() Format {
	switch f {
	case FormatFastqGz:
		return FormatFastq
	case FormatFastaGz:
		return FormatFasta
	default:
		return f
	}
}

// FormatSet is a deduplicated, canonically ordered set of formats.
type FormatSet []Format

// ParseFormatSet validates format names into a set. Order of the input
// is irrelevant; the set is stored in canonical order so planning and
// reporting are deterministic.
func ParseFormatSet(names []string) (FormatSet, error) {
	if len(names) == 0 {
		return nil, ErrNoFormats
	}
	want := make(map[Format]bool, len(names))
	for _, name := range names {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		want[f] = true
	}

	var set FormatSet
	for _, f := range AllFormats() {
		if want[f] {
			set = append(set, f)
		}
	}
	return set, nil
}

// Contains reports set membership.
func (s FormatSet) Contains(f Format) bool {
	for _, have := range s {
		if have == f {
			return true
		}
	}
	return false
}

// Without returns the set minus the given formats.
func (s FormatSet) Without(drop ...Format) FormatSet {
	var out FormatSet
	for _, f := range s {
		skip := false
		for _, d := range drop {
			if f == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, f)
		}
	}
	return out
}

// String renders the set as a comma list.
func (s FormatSet) String() string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

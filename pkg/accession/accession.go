// Package accession validates sequencing-archive accessions and derives
// the deterministic filesystem layout for per-run artifacts and outputs.
package accession

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Accession format errors.
var (
	// ErrInvalidRun is returned when a string is not a run accession.
	ErrInvalidRun = errors.New("invalid run accession")

	// ErrInvalidProject is returned when a string is not a project accession.
	ErrInvalidProject = errors.New("invalid project accession")
)

var (
	runPattern     = regexp.MustCompile(`^[SED]RR[0-9]{1,12}$`)
	projectPattern = regexp.MustCompile(`^PRJ(NA|EB|DB)[0-9]{1,12}$`)
	studyPattern   = regexp.MustCompile(`^[SED]RP[0-9]{1,12}$`)
)

// Run is a validated sequencing-run accession (SRR/ERR/DRR prefix).
type Run string

// ParseRun validates and returns a run accession.
//
// Accepted prefixes are SRR (NCBI), ERR (ENA), and DRR (DDBJ), followed
// by digits. Surrounding whitespace is trimmed; case is normalized to
// upper since archives treat accessions case-insensitively.
func ParseRun(s string) (Run, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !runPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRun, s)
	}
	return Run(s), nil
}

// String returns the accession string.
func (r Run) String() string { return string(r) }

// IsRun reports whether s looks like a run accession.
func IsRun(s string) bool {
	_, err := ParseRun(s)
	return err == nil
}

// Project is a validated project-level accession (BioProject or study).
type Project string

// ParseProject validates a BioProject (PRJNA/PRJEB/PRJDB) or SRA study
// (SRP/ERP/DRP) accession. Both group multiple runs and resolve the same
// way through the archive portals.
func ParseProject(s string) (Project, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !projectPattern.MatchString(s) && !studyPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProject, s)
	}
	return Project(s), nil
}

// String returns the accession string.
func (p Project) String() string { return string(p) }

// IsProject reports whether s looks like a project or study accession.
func IsProject(s string) bool {
	_, err := ParseProject(s)
	return err == nil
}

// Package workspace inspects and maintains the output directory: which
// targets already exist, which containers are available for extraction,
// and which stale temporaries need sweeping.
//
// Existence checks are the basis of skip-if-exists semantics, so the
// rules here are deliberately strict: only non-empty regular files
// without the in-flight suffix count as produced.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/seqport/sracatch/pkg/accession"
)

// ExistingOutputs returns the already-produced files satisfying a
// (run, format-extension) target in dir. A paired layout returns the
// mate files; a single layout returns one path. Empty means the target
// is not yet produced.
func ExistingOutputs(dir string, run accession.Run, ext string) []string {
	var found []string
	for _, cand := range accession.OutputCandidates(dir, run, ext) {
		if nonEmptyFile(cand) {
			found = append(found, cand)
		}
	}
	return found
}

// ExistingContainer returns the run's SRA container in dir, if present
// and non-empty.
func ExistingContainer(dir string, run accession.Run) (string, bool) {
	path := accession.ContainerPath(dir, run)
	if nonEmptyFile(path) {
		return path, true
	}
	return "", false
}

// FindContainers globs dir for SRA containers. Patterns use doublestar
// semantics relative to dir; nil patterns default to "*.sra". In-flight
// temporaries and hidden paths (the state dir included) never match.
func FindContainers(dir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"*.sra"}
	}

	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var out []string

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid container pattern %q: %w", pattern, err)
		}
		for _, rel := range matches {
			if accession.IsTemp(rel) || hiddenPath(rel) {
				continue
			}
			full := filepath.Join(dir, rel)
			if !nonEmptyFile(full) || seen[full] {
				continue
			}
			seen[full] = true
			out = append(out, full)
		}
	}

	sort.Strings(out)
	return out, nil
}

// SweepRunTemps removes stale in-flight files for a run in dir and
// returns the removed paths. Called before an attempt so a previously
// interrupted transfer cannot confuse resumption, and after a failed
// attempt so the next method starts clean.
func SweepRunTemps(dir string, run accession.Run) ([]string, error) {
	pattern := run.String() + "*" + accession.TempSuffix
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid temp pattern %q: %w", pattern, err)
	}

	var removed []string
	for _, rel := range matches {
		full := filepath.Join(dir, rel)
		if err := os.Remove(full); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("remove %s: %w", full, err)
		}
		removed = append(removed, full)
	}
	return removed, nil
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// ProbeWritable verifies dir accepts writes by creating and removing a
// probe file. Run during eager validation so permission problems
// surface before any download starts.
func ProbeWritable(dir string) error {
	if err := EnsureDir(dir); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writecheck-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("remove write probe %s: %w", name, err)
	}
	return nil
}

func nonEmptyFile(path string) bool {
	if accession.IsTemp(path) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

func hiddenPath(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

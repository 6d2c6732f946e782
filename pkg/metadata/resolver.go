// Package metadata turns accession inputs into concrete run lists and
// fetches annotation fields for them from the archive portals.
package metadata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
)

// ErrNoRuns indicates the combined sources named no run accessions.
var ErrNoRuns = errors.New("no run accessions to process")

// Source is the set of accession inputs a command accepts.
type Source struct {
	// Runs are direct run accessions.
	Runs []string

	// RunList is a path to a file of accessions, one per line. Blank
	// lines and #-comments are ignored.
	RunList string

	// Project is a BioProject or study accession to expand.
	Project string
}

// Resolver expands Sources into run lists.
type Resolver struct {
	client *ena.Client
}

// NewResolver creates a resolver. A nil client gets the default one.
func NewResolver(client *ena.Client) *Resolver {
	if client == nil {
		client = ena.New(ena.Config{})
	}
	return &Resolver{client: client}
}

// Resolve expands src into a deduplicated run list preserving first
// occurrence order: direct accessions, then the run-list file, then the
// project expansion. Invalid accessions fail the whole resolution; a
// batch built from a typo should not silently shrink.
func (r *Resolver) Resolve(ctx context.Context, src Source) ([]accession.Run, error) {
	var out []accession.Run
	seen := make(map[accession.Run]bool)
	add := func(run accession.Run) {
		if !seen[run] {
			seen[run] = true
			out = append(out, run)
		}
	}

	for _, s := range src.Runs {
		run, err := accession.ParseRun(s)
		if err != nil {
			return nil, err
		}
		add(run)
	}

	if src.RunList != "" {
		runs, err := ReadRunList(src.RunList)
		if err != nil {
			return nil, err
		}
		for _, run := range runs {
			add(run)
		}
	}

	if src.Project != "" {
		project, err := accession.ParseProject(src.Project)
		if err != nil {
			return nil, err
		}
		runs, err := r.expandProject(ctx, project)
		if err != nil {
			return nil, err
		}
		for _, run := range runs {
			add(run)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRuns
	}
	return out, nil
}

// expandProject asks the ENA portal first and falls back to NCBI
// eutils, since the two archives mirror each other's projects with
// different availability.
func (r *Resolver) expandProject(ctx context.Context, project accession.Project) ([]accession.Run, error) {
	runs, portalErr := r.client.ProjectRuns(ctx, project)
	if portalErr == nil {
		return runs, nil
	}
	if ctx.Err() != nil {
		return nil, portalErr
	}

	runs, eutilsErr := r.client.ProjectRunsEutils(ctx, project)
	if eutilsErr != nil {
		return nil, fmt.Errorf("expand %s: portal: %v; eutils: %w", project, portalErr, eutilsErr)
	}
	return runs, nil
}

// ReadRunList parses a run-list file: one accession per line, blank
// lines and #-comments ignored. Parse failures report the offending
// line number.
func ReadRunList(path string) ([]accession.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var runs []accession.Run
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		run, err := accession.ParseRun(s)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		runs = append(runs, run)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read run list: %w", err)
	}
	return runs, nil
}

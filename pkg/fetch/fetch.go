// Package fetch walks a run's download method chain until one method
// delivers an artifact.
//
// The chain is caller-ordered and failures never abort it: each failed
// method is recorded as an attempt and the next one is tried. Only a
// cancelled context stops the walk early. A run that exhausts every
// method fails with ExhaustedError carrying the full attempt history.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/report"
	"github.com/seqport/sracatch/pkg/workspace"
)

// Request describes one run's download.
type Request struct {
	// Run is the accession to fetch.
	Run accession.Run

	// Dir is the output directory. It must exist.
	Dir string

	// Methods is the ordered fallback chain.
	Methods []backend.Method

	// Threads bounds per-method transfer parallelism.
	Threads int

	// Force re-downloads even when the artifact is already on disk.
	Force bool

	// Unsorted marks the batch for single-pass extraction; chains
	// containing direct-FASTQ methods are rejected before any attempt.
	Unsorted bool

	// Quiet suppresses transfer progress output.
	Quiet bool

	// Progress, when non-nil, receives cumulative byte counts from
	// adapters that transfer in-process.
	Progress func(written, total int64)

	// PaymentAllowed permits methods that bill the caller.
	PaymentAllowed bool

	// Method-specific settings passed through to adapters.
	AscpKey            string
	AscpArgs           []string
	GCPProject         string
	AWSProfile         string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Attempt records one method's try, in chain order.
type Attempt struct {
	Method   backend.Method
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Result is a successful fetch: the winning method and its artifact,
// plus every attempt that led there.
type Result struct {
	Run      accession.Run
	Method   backend.Method
	Artifact *backend.Artifact
	Attempts []Attempt
}

// ExhaustedError reports a chain where every method failed.
type ExhaustedError struct {
	Run      accession.Run
	Attempts []Attempt
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", a.Method, a.Err))
		}
	}
	return fmt.Sprintf("no download method succeeded for %s: %s", e.Run, strings.Join(parts, "; "))
}

// Unwrap exposes each attempt's error so errors.Is can see through the
// chain, e.g. to detect that every failure was payment gating.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// IsExhausted returns true if the error reports a fully failed chain.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// ValidateChain rejects method chains that can never serve the request
// shape. This runs before any network or tool work so misconfiguration
// surfaces immediately, not after the first method has downloaded.
func ValidateChain(methods []backend.Method, unsorted bool) error {
	if len(methods) == 0 {
		return backend.ErrNoMethods
	}
	for _, m := range methods {
		if _, ok := backend.Capabilities(m); !ok {
			return fmt.Errorf("%w: %q", backend.ErrUnknownMethod, m)
		}
	}
	if unsorted {
		if bad := backend.UnsortedIncompatible(methods); len(bad) > 0 {
			names := make([]string, len(bad))
			for i, m := range bad {
				names[i] = string(m)
			}
			return fmt.Errorf("unsorted extraction needs a container artifact, incompatible methods: %s", strings.Join(names, ", "))
		}
	}
	return nil
}

// Fetcher walks download chains against a method registry.
type Fetcher struct {
	registry *backend.Registry
	writer   report.Writer
}

// New creates a Fetcher. A nil writer discards attempt records.
func New(reg *backend.Registry, w report.Writer) *Fetcher {
	if w == nil {
		w = report.Discard{}
	}
	return &Fetcher{registry: reg, writer: w}
}

// Fetch tries the request's methods in order and returns the first
// artifact delivered.
//
// Before the first attempt, and again after each failed one, temp files
// belonging to the run are swept so a crashed or failed transfer never
// leaves debris that a later existence check could mistake for output.
// When the artifact is already on disk and Force is unset, the first
// method producing that artifact kind succeeds without being invoked.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := ValidateChain(req.Methods, req.Unsorted); err != nil {
		return nil, err
	}

	_, _ = workspace.SweepRunTemps(req.Dir, req.Run)

	res := &Result{Run: req.Run}
	for _, m := range req.Methods {
		att, artifact := f.tryMethod(ctx, m, req)
		res.Attempts = append(res.Attempts, att)
		f.recordAttempt(ctx, req.Run, att, artifact)

		if att.Err == nil {
			res.Method = m
			res.Artifact = artifact
			return res, nil
		}

		_, _ = workspace.SweepRunTemps(req.Dir, req.Run)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.Run, ctx.Err())
		}
	}

	return nil, &ExhaustedError{Run: req.Run, Attempts: res.Attempts}
}

// tryMethod runs a single method: skip check, payment gate, then the
// adapter itself.
func (f *Fetcher) tryMethod(ctx context.Context, m backend.Method, req Request) (Attempt, *backend.Artifact) {
	start := time.Now()
	att := Attempt{Method: m}
	finish := func() { att.Duration = time.Since(start) }

	if !req.Force {
		if artifact := existingArtifact(m, req); artifact != nil {
			att.Skipped = true
			finish()
			return att, artifact
		}
	}

	// Always-billing methods are gated here so the adapter is never
	// invoked, let alone starts a transfer, without consent.
	if c, _ := backend.Capabilities(m); c.Payment == backend.PaymentRequired && !req.PaymentAllowed {
		att.Err = &backend.MethodError{Op: "fetch", Method: m, Run: req.Run, Err: backend.ErrPaymentNotAllowed}
		finish()
		return att, nil
	}

	adapter, err := f.registry.Get(m)
	if err != nil {
		att.Err = &backend.MethodError{Op: "fetch", Method: m, Run: req.Run, Err: err}
		finish()
		return att, nil
	}

	artifact, err := adapter.Fetch(ctx, backend.Request{
		Run:                req.Run,
		Dir:                req.Dir,
		Threads:            req.Threads,
		Quiet:              req.Quiet,
		Progress:           req.Progress,
		PaymentAllowed:     req.PaymentAllowed,
		AscpKey:            req.AscpKey,
		AscpArgs:           req.AscpArgs,
		GCPProject:         req.GCPProject,
		AWSProfile:         req.AWSProfile,
		AWSAccessKeyID:     req.AWSAccessKeyID,
		AWSSecretAccessKey: req.AWSSecretAccessKey,
	})
	finish()
	if err != nil {
		att.Err = err
		return att, nil
	}
	return att, artifact
}

// recordAttempt emits the attempt to the report writer. Report output
// is auxiliary, so write failures are dropped, and emission survives
// cancellation so an interrupted chain still shows its last attempt.
func (f *Fetcher) recordAttempt(ctx context.Context, run accession.Run, att Attempt, artifact *backend.Artifact) {
	rec := &report.AttemptRecord{
		Run:      run,
		Method:   att.Method,
		Duration: att.Duration,
	}
	switch {
	case att.Skipped:
		rec.Outcome = report.OutcomeSkipped
		rec.Files = artifact.Files
	case att.Err != nil:
		rec.Outcome = report.OutcomeFailed
		rec.Error = att.Err.Error()
		rec.ErrorCode = report.Classify(att.Err)
	default:
		rec.Outcome = report.OutcomeSuccess
		rec.Files = artifact.Files
	}
	_ = f.writer.WriteAttempt(context.WithoutCancel(ctx), rec)
}

// existingArtifact checks whether the method's deterministic output is
// already on disk, returning it as a ready artifact if so.
func existingArtifact(m backend.Method, req Request) *backend.Artifact {
	c, ok := backend.Capabilities(m)
	if !ok {
		return nil
	}
	switch c.Artifact {
	case backend.KindRawContainer:
		if path, ok := workspace.ExistingContainer(req.Dir, req.Run); ok {
			return &backend.Artifact{Kind: c.Artifact, Files: []string{path}}
		}
	case backend.KindFastqGz:
		if files := workspace.ExistingOutputs(req.Dir, req.Run, string(c.Artifact)); len(files) > 0 {
			return &backend.Artifact{Kind: c.Artifact, Files: files}
		}
	}
	return nil
}

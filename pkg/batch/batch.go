// Package batch drives multi-run jobs through download and extraction.
//
// The controller applies the fallback download chain and the format
// pipeline to each run, bounded by a worker pool. A run's terminal
// failure never aborts its siblings: the failure is recorded in the
// run's outcome and the batch moves on, so a multi-run invocation
// degrades gracefully instead of failing atomically.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/convert"
	"github.com/seqport/sracatch/pkg/fetch"
	"github.com/seqport/sracatch/pkg/ledger"
	"github.com/seqport/sracatch/pkg/report"
)

// ErrNoRuns indicates a batch with nothing to do.
var ErrNoRuns = errors.New("no runs to process")

// Options configures one batch invocation. The struct travels
// explicitly from the controller into fetch requests and conversion
// jobs; no orchestration state lives in package globals.
type Options struct {
	// Methods is the ordered download fallback chain.
	Methods []backend.Method

	// Formats is the requested output format set.
	Formats convert.FormatSet

	// Dir is the output directory. It must exist.
	Dir string

	// Threads bounds per-run tool parallelism (conversion and
	// multi-connection transfers), not the across-run pool.
	Threads int

	// Concurrency is the number of runs processed in parallel.
	// Default 1: archives rate-limit aggressively, and sequential
	// runs keep shared bandwidth predictable.
	Concurrency int

	// Force re-downloads and re-converts existing outputs.
	Force bool

	// Unsorted selects single-pass arbitrary-order extraction.
	Unsorted bool

	// Quiet suppresses transfer progress output.
	Quiet bool

	// Stdout streams each run's single requested format to the
	// controller's output writer instead of the filesystem.
	Stdout bool

	// Resume skips runs the ledger already marks complete for the
	// same format set.
	Resume bool

	// PaymentAllowed permits download methods that bill the caller.
	PaymentAllowed bool

	// Progress, when non-nil, receives cumulative byte counts from
	// in-process transfers, tagged with the run they belong to.
	Progress func(run accession.Run, written, total int64)

	// Method-specific settings passed through to adapters.
	AscpKey            string
	AscpArgs           []string
	GCPProject         string
	AWSProfile         string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Outcome is one run's terminal result.
type Outcome struct {
	Run      accession.Run
	State    string
	Method   backend.Method
	Outputs  []string
	Attempts []fetch.Attempt

	// Skipped marks a run the resume prefilter never started.
	Skipped bool

	Err      error
	Duration time.Duration
}

// Failed reports whether the run ended in a terminal failure state.
func (o Outcome) Failed() bool {
	return o.State == report.StateDownloadFailed || o.State == report.StateExtractionFailed
}

// Summary contains aggregate statistics from a completed batch.
type Summary struct {
	// RunsTotal is the number of runs in the batch.
	RunsTotal int

	// RunsComplete is the number of runs that produced every
	// requested format, resumed runs included.
	RunsComplete int

	// RunsResumed is the number of runs skipped by the resume
	// prefilter.
	RunsResumed int

	// DownloadFailures is the number of runs where every download
	// method failed.
	DownloadFailures int

	// ExtractionFailures is the number of runs that downloaded but
	// failed conversion.
	ExtractionFailures int

	// BytesTotal is the cumulative size of final outputs in bytes.
	BytesTotal int64

	// Duration is the total batch duration.
	Duration time.Duration
}

// String renders the summary as a one-line status message.
func (s Summary) String() string {
	msg := fmt.Sprintf("%d runs: %d complete", s.RunsTotal, s.RunsComplete)
	if s.RunsResumed > 0 {
		msg += fmt.Sprintf(" (%d resumed)", s.RunsResumed)
	}
	if s.DownloadFailures > 0 {
		msg += fmt.Sprintf(", %d download failures", s.DownloadFailures)
	}
	if s.ExtractionFailures > 0 {
		msg += fmt.Sprintf(", %d extraction failures", s.ExtractionFailures)
	}
	return fmt.Sprintf("%s, %s in %s", msg,
		humanize.Bytes(uint64(s.BytesTotal)),
		s.Duration.Round(time.Millisecond))
}

// Result is the aggregate report for a batch.
type Result struct {
	// Outcomes holds one entry per started or skipped run, in input
	// order. Runs never started before cancellation are absent.
	Outcomes []Outcome

	Summary Summary
}

// Failed reports whether any run ended in a terminal failure state.
// The process exit code keys off this.
func (r *Result) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Failed() {
			return true
		}
	}
	return false
}

// Controller executes a batch of runs.
//
// Controller is safe for single use only. Create a new Controller for
// each batch.
type Controller struct {
	fetcher  *fetch.Fetcher
	pipeline *convert.Pipeline
	writer   report.Writer
	store    *ledger.Store
	out      io.Writer

	runsTotal  int
	runsDone   atomic.Int64
	runsFailed atomic.Int64
}

// New creates a batch controller. A nil writer discards records; a nil
// store disables the ledger.
func New(f *fetch.Fetcher, p *convert.Pipeline, w report.Writer, store *ledger.Store) *Controller {
	if w == nil {
		w = report.Discard{}
	}
	return &Controller{
		fetcher:  f,
		pipeline: p,
		writer:   w,
		store:    store,
		out:      os.Stdout,
	}
}

// WithOutput overrides the stream target for stdout mode.
// Returns the controller for method chaining.
func (c *Controller) WithOutput(w io.Writer) *Controller {
	c.out = w
	return c
}

// Run processes every run through download and extraction and returns
// the aggregate result.
//
// Run blocks until the batch completes or the context is cancelled.
// Cancellation is graceful: in-flight runs finish their cleanup, a
// partial result is returned alongside the context error, and the
// final records still reach the report writer.
func (c *Controller) Run(ctx context.Context, runs []accession.Run, opts Options) (*Result, error) {
	start := time.Now()
	if err := validate(runs, opts); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Stdout {
		// Parallel runs would interleave on one stream, and streamed
		// bytes are not resumable artifacts.
		opts.Concurrency = 1
		opts.Resume = false
	}
	c.runsTotal = len(runs)

	done := make(map[accession.Run]bool)
	if opts.Resume && c.store != nil {
		var err error
		done, err = c.store.Completed(ctx, opts.Formats.String())
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
	}

	_ = c.writer.WriteProgress(ctx, &report.ProgressRecord{
		Phase:     report.PhaseStarting,
		RunsTotal: c.runsTotal,
	})

	outcomes := make([]Outcome, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, opts.Concurrency)
	for i, run := range runs {
		if done[run] {
			outcomes[i] = Outcome{Run: run, State: report.StateComplete, Skipped: true}
			c.runsDone.Add(1)
			continue
		}

		select {
		case <-gctx.Done():
		case sem <- struct{}{}:
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			defer func() { <-sem }()

			out := c.processRun(gctx, run, opts)
			outcomes[i] = out
			c.runsDone.Add(1)
			if out.Failed() {
				c.runsFailed.Add(1)
			}
			c.finishRun(gctx, out, opts)
			return gctx.Err()
		})
	}
	runErr := g.Wait()

	res := &Result{}
	for _, o := range outcomes {
		if o.Run != "" {
			res.Outcomes = append(res.Outcomes, o)
		}
	}
	res.Summary = buildSummary(res.Outcomes, len(runs), time.Since(start))

	// Final records flush even when the batch was interrupted.
	flushCtx := context.WithoutCancel(ctx)
	_ = c.writer.WriteProgress(flushCtx, &report.ProgressRecord{
		Phase:      report.PhaseComplete,
		RunsTotal:  c.runsTotal,
		RunsDone:   int(c.runsDone.Load()),
		RunsFailed: int(c.runsFailed.Load()),
	})
	_ = c.writer.WriteSummary(flushCtx, summaryRecord(res.Summary))

	if runErr != nil {
		return res, fmt.Errorf("batch interrupted: %w", runErr)
	}
	return res, nil
}

// validate rejects impossible jobs before any run starts work.
func validate(runs []accession.Run, opts Options) error {
	if len(runs) == 0 {
		return ErrNoRuns
	}
	if err := fetch.ValidateChain(opts.Methods, opts.Unsorted); err != nil {
		return err
	}
	if len(opts.Formats) == 0 {
		return convert.ErrNoFormats
	}
	if opts.Stdout {
		if len(opts.Formats) != 1 {
			return fmt.Errorf("stdout streaming takes exactly one format, got %s", opts.Formats)
		}
		if opts.Formats.Contains(convert.FormatSRA) {
			return errors.New("stdout streaming needs a read format, container bytes are not a read stream")
		}
	}
	return nil
}

// processRun walks one run through its download chain and extraction.
// The returned outcome carries a terminal state unless the context was
// cancelled mid-run.
func (c *Controller) processRun(ctx context.Context, run accession.Run, opts Options) Outcome {
	start := time.Now()
	out := Outcome{Run: run}

	c.writePhase(ctx, report.PhaseDownloading, run)

	var progress func(written, total int64)
	if opts.Progress != nil {
		progress = func(written, total int64) { opts.Progress(run, written, total) }
	}

	res, err := c.fetcher.Fetch(ctx, fetch.Request{
		Run:                run,
		Dir:                opts.Dir,
		Methods:            opts.Methods,
		Threads:            opts.Threads,
		Force:              opts.Force,
		Unsorted:           opts.Unsorted,
		Quiet:              opts.Quiet,
		Progress:           progress,
		PaymentAllowed:     opts.PaymentAllowed,
		AscpKey:            opts.AscpKey,
		AscpArgs:           opts.AscpArgs,
		GCPProject:         opts.GCPProject,
		AWSProfile:         opts.AWSProfile,
		AWSAccessKeyID:     opts.AWSAccessKeyID,
		AWSSecretAccessKey: opts.AWSSecretAccessKey,
	})
	if err != nil {
		var ee *fetch.ExhaustedError
		if errors.As(err, &ee) {
			out.Attempts = ee.Attempts
		}
		out.Err = err
		out.Duration = time.Since(start)
		if ctx.Err() == nil {
			out.State = report.StateDownloadFailed
		}
		return out
	}
	out.Method = res.Method
	out.Attempts = res.Attempts

	c.writePhase(ctx, report.PhaseExtracting, run)

	job := convert.Job{
		Run:      run,
		Artifact: res.Artifact,
		Formats:  opts.Formats,
		Dir:      opts.Dir,
		Threads:  opts.Threads,
		Force:    opts.Force,
		Unsorted: opts.Unsorted,
	}
	if opts.Stdout {
		err = c.pipeline.Stream(ctx, job, c.out)
	} else {
		out.Outputs, _, err = c.pipeline.Extract(ctx, job)
	}
	out.Duration = time.Since(start)
	if err != nil {
		// Outputs produced before the failing step are kept and
		// reported; partial results are surfaced, not hidden.
		out.Err = err
		if ctx.Err() == nil {
			out.State = report.StateExtractionFailed
		}
		return out
	}

	out.State = report.StateComplete
	return out
}

// finishRun emits the run record and persists the outcome to the
// ledger. Interrupted runs reached no terminal state and record
// nothing; a rerun picks them up from scratch.
func (c *Controller) finishRun(ctx context.Context, o Outcome, opts Options) {
	if o.State == "" {
		return
	}
	flushCtx := context.WithoutCancel(ctx)

	rec := &report.RunRecord{
		Run:      o.Run,
		State:    o.State,
		Method:   o.Method,
		Outputs:  o.Outputs,
		Duration: o.Duration,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
		rec.ErrorCode = classifyOutcome(o)
	}
	_ = c.writer.WriteRun(flushCtx, rec)

	if c.store == nil || opts.Stdout {
		return
	}
	entry := ledger.Entry{
		Run:     o.Run,
		Formats: opts.Formats.String(),
		State:   o.State,
		Method:  string(o.Method),
		Outputs: o.Outputs,
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	if err := c.store.Record(flushCtx, entry); err != nil {
		// Best effort: a ledger write failure must not fail the run.
		_ = c.writer.WriteError(flushCtx, &report.ErrorRecord{
			Code:    report.ErrCodeInternal,
			Message: fmt.Sprintf("record ledger entry: %v", err),
			Run:     o.Run,
		})
	}
}

// writePhase emits a run state transition.
func (c *Controller) writePhase(ctx context.Context, phase string, run accession.Run) {
	_ = c.writer.WriteProgress(ctx, &report.ProgressRecord{
		Phase:      phase,
		Run:        run,
		RunsTotal:  c.runsTotal,
		RunsDone:   int(c.runsDone.Load()),
		RunsFailed: int(c.runsFailed.Load()),
	})
}

// classifyOutcome maps a failed outcome to its report error code.
func classifyOutcome(o Outcome) string {
	if o.State == report.StateDownloadFailed && fetch.IsExhausted(o.Err) {
		return report.ErrCodeExhausted
	}
	return report.Classify(o.Err)
}

// buildSummary aggregates outcomes into batch statistics.
func buildSummary(outcomes []Outcome, total int, duration time.Duration) Summary {
	s := Summary{RunsTotal: total, Duration: duration}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			s.RunsComplete++
			s.RunsResumed++
		case o.State == report.StateComplete:
			s.RunsComplete++
			s.BytesTotal += outputBytes(o.Outputs)
		case o.State == report.StateDownloadFailed:
			s.DownloadFailures++
		case o.State == report.StateExtractionFailed:
			s.ExtractionFailures++
		}
	}
	return s
}

// summaryRecord converts a Summary into its report payload.
func summaryRecord(s Summary) *report.SummaryRecord {
	return &report.SummaryRecord{
		RunsTotal:          s.RunsTotal,
		RunsComplete:       s.RunsComplete,
		RunsResumed:        s.RunsResumed,
		DownloadFailures:   s.DownloadFailures,
		ExtractionFailures: s.ExtractionFailures,
		BytesTotal:         s.BytesTotal,
		Duration:           s.Duration,
		DurationHuman:      s.Duration.Round(time.Millisecond).String(),
	}
}

// outputBytes sums the on-disk sizes of final outputs. Missing files
// contribute nothing.
func outputBytes(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Package report provides JSONL output for fetch results.
//
// Output is structured as typed record envelopes containing download
// attempts, per-run outcomes, progress updates, and batch summaries.
// Each line is a self-contained JSON object that can be parsed
// independently, so reports survive partial batches and interrupts.
package report

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/convert"
	"github.com/seqport/sracatch/pkg/ena"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: sracatch.<type>.v<version>
const (
	// TypeAttempt identifies per-method download attempt records.
	TypeAttempt = "sracatch.attempt.v1"

	// TypeRun identifies per-run outcome records.
	TypeRun = "sracatch.run.v1"

	// TypeError identifies error records.
	TypeError = "sracatch.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "sracatch.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "sracatch.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "sracatch.attempt.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this batch.
	JobID string `json:"job_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// Attempt outcome constants.
const (
	// OutcomeSuccess means the method produced its artifact.
	OutcomeSuccess = "success"

	// OutcomeFailed means the method failed and the chain moved on.
	OutcomeFailed = "failed"

	// OutcomeSkipped means the method's artifact was already on disk.
	OutcomeSkipped = "skipped"
)

// AttemptRecord is the data payload for one download method attempt.
//
// A run emits one attempt record per method tried, in chain order, so
// the report shows exactly how far the fallback walked.
type AttemptRecord struct {
	// Run is the run accession being fetched.
	Run accession.Run `json:"run"`

	// Method is the download method attempted.
	Method backend.Method `json:"method"`

	// Outcome is one of the Outcome* constants.
	Outcome string `json:"outcome"`

	// Error describes the failure when Outcome is "failed".
	Error string `json:"error,omitempty"`

	// ErrorCode classifies the failure (see ErrCode* constants).
	ErrorCode string `json:"error_code,omitempty"`

	// Files lists the artifact paths on success or skip.
	Files []string `json:"files,omitempty"`

	// Duration is how long the attempt took.
	Duration time.Duration `json:"duration_ns"`
}

// Run state constants for RunRecord.
const (
	StateComplete         = "complete"
	StateDownloadFailed   = "download_failed"
	StateExtractionFailed = "extraction_failed"
)

// RunRecord is the data payload for a finished run, successful or not.
type RunRecord struct {
	// Run is the run accession.
	Run accession.Run `json:"run"`

	// State is one of the State* constants.
	State string `json:"state"`

	// Method is the download method that won, if any did.
	Method backend.Method `json:"method,omitempty"`

	// Outputs lists the final output paths satisfying the requested
	// formats.
	Outputs []string `json:"outputs,omitempty"`

	// Error describes the failure for non-complete states.
	Error string `json:"error,omitempty"`

	// ErrorCode classifies the failure (see ErrCode* constants).
	ErrorCode string `json:"error_code,omitempty"`

	// Duration covers download and extraction together.
	Duration time.Duration `json:"duration_ns"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire batch,
// allowing partial results when some runs fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Run is the run accession related to this error, if applicable.
	Run accession.Run `json:"run,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord, AttemptRecord, and RunRecord.
const (
	// ErrCodeConfig indicates an invalid flag or option combination.
	ErrCodeConfig = "CONFIG"

	// ErrCodePrecondition indicates a method's requirements were not
	// met before it could start transferring.
	ErrCodePrecondition = "PRECONDITION"

	// ErrCodeExecution indicates a transfer started and then failed.
	ErrCodeExecution = "EXECUTION"

	// ErrCodeExhausted indicates every method in the chain failed.
	ErrCodeExhausted = "EXHAUSTED"

	// ErrCodeConversion indicates a format conversion step failed.
	ErrCodeConversion = "CONVERSION"

	// ErrCodeNotFound indicates the accession is unknown upstream.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates.
//
// Progress records are emitted on run state transitions to provide
// visibility into long-running batches.
type ProgressRecord struct {
	// Phase indicates what the run is doing (see Phase* constants).
	Phase string `json:"phase"`

	// Run is the run transitioning, empty for batch-level records.
	Run accession.Run `json:"run,omitempty"`

	// RunsTotal is the number of runs in the batch.
	RunsTotal int `json:"runs_total"`

	// RunsDone is the number of runs finished so far, in any state.
	RunsDone int `json:"runs_done"`

	// RunsFailed is the number of runs finished in a failed state.
	RunsFailed int `json:"runs_failed"`
}

// Progress phase constants.
const (
	// PhaseStarting indicates the batch is initializing.
	PhaseStarting = "starting"

	// PhaseDownloading indicates a run entered its download chain.
	PhaseDownloading = "downloading"

	// PhaseExtracting indicates a run entered format conversion.
	PhaseExtracting = "extracting"

	// PhaseComplete indicates the batch has finished.
	PhaseComplete = "complete"
)

// SummaryRecord is the data payload for final summaries.
//
// A summary record is emitted at the end of a batch with aggregate
// statistics.
type SummaryRecord struct {
	// RunsTotal is the number of runs attempted.
	RunsTotal int `json:"runs_total"`

	// RunsComplete is the number of runs that produced every
	// requested format.
	RunsComplete int `json:"runs_complete"`

	// RunsResumed is the number of runs skipped because the ledger
	// already marked them complete.
	RunsResumed int `json:"runs_resumed,omitempty"`

	// DownloadFailures is the number of runs where every download
	// method failed.
	DownloadFailures int `json:"download_failures"`

	// ExtractionFailures is the number of runs that downloaded but
	// failed conversion.
	ExtractionFailures int `json:"extraction_failures"`

	// BytesTotal is the cumulative size of final outputs in bytes.
	BytesTotal int64 `json:"bytes_total"`

	// Duration is the total batch duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Classify maps an error to the ErrCode* constant describing it.
//
// Precondition failures are checked before execution failures because
// payment gating wraps the precondition sentinel.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case ena.IsNotFound(err):
		return ErrCodeNotFound
	case backend.IsPrecondition(err):
		return ErrCodePrecondition
	case backend.IsExecution(err):
		return ErrCodeExecution
	case convert.IsConversion(err):
		return ErrCodeConversion
	default:
		return ErrCodeInternal
	}
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "report: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

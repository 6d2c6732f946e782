package jobs

import "time"

// State is the lifecycle state of a detached fetch job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateSuccess  State = "success"
	StatePartial  State = "partial"
	StateFailed   State = "failed"
	StateUnknown  State = "unknown"
)

// Terminal reports whether the state is final. Non-terminal jobs own a
// live process (or believe they do).
func (s State) Terminal() bool {
	switch s {
	case StateStopped, StateSuccess, StatePartial, StateFailed, StateUnknown:
		return true
	}
	return false
}

// SpecSummary is a minimal description of what the job fetches,
// captured for operator clarity in listings.
//
// This is intentionally shallow so the registry stays stable even as
// the manifest schema evolves.
type SpecSummary struct {
	RunCount int    `json:"run_count,omitempty"`
	Methods  string `json:"methods,omitempty"`
	Formats  string `json:"formats,omitempty"`
	OutDir   string `json:"out_dir,omitempty"`
}

// Record is the persistent record written to job.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type Record struct {
	JobID        string `json:"job_id"`
	Name         string `json:"name,omitempty"`
	State        State  `json:"state"`
	ManifestPath string `json:"manifest_path,omitempty"`

	// Fingerprint is the canonical job hash; two jobs with the same
	// fingerprint describe the same work.
	Fingerprint string `json:"fingerprint,omitempty"`

	Spec      *SpecSummary `json:"spec,omitempty"`
	PID       int          `json:"pid,omitempty"`
	CreatedAt time.Time    `json:"created_at"`

	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	StdoutPath    string     `json:"stdout_path,omitempty"`
	StderrPath    string     `json:"stderr_path,omitempty"`
}

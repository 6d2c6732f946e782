package jobs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ManagedIDFlag is appended to the child's argv, followed by the job
// id, so the child can locate and maintain its own record. Commands
// that support detaching must register the matching hidden flag.
const ManagedIDFlag = "--_managed-job-id"

// Executor spawns detached fetch jobs.
//
// A detached job re-runs the current executable with the arguments the
// caller supplies, capturing stdout/stderr to per-job log files. The
// caller strips its own detach flag from the argv; the executor appends
// ManagedIDFlag with the new job id.
type Executor struct {
	store *Store
}

func NewExecutor(root string) *Executor {
	return &Executor{store: NewStore(root)}
}

func (e *Executor) Store() *Store {
	return e.store
}

func (e *Executor) StdoutPath(jobID string) string {
	return filepath.Join(e.store.JobDir(jobID), "stdout.log")
}

func (e *Executor) StderrPath(jobID string) string {
	return filepath.Join(e.store.JobDir(jobID), "stderr.log")
}

// StartOptions customizes a detached launch.
type StartOptions struct {
	// Name is an optional operator-facing label.
	Name string

	// Fingerprint is the canonical job hash used for dedupe.
	Fingerprint string

	// Spec summarizes the work for listings.
	Spec *SpecSummary

	// ManifestPath records the manifest the job loads, if any.
	ManifestPath string

	// Dedupe refuses to start when a running job carries the same
	// fingerprint.
	Dedupe bool
}

// Start spawns the current executable with the given arguments as a
// detached child and records it as running. It returns after the child
// successfully starts; the child's exit state is written by the child
// itself.
func (e *Executor) Start(args []string, opts StartOptions) (*Record, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("executor is not initialized")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("detached job needs arguments")
	}

	if opts.Dedupe {
		if existing, err := e.store.FindRunning(opts.Fingerprint); err == nil && existing != nil {
			return nil, fmt.Errorf("duplicate running job exists: %s", existing.JobID)
		}
	}

	jobID := uuid.New().String()
	jobDir := e.store.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}

	stdoutFile, err := os.Create(e.StdoutPath(jobID))
	if err != nil {
		return nil, fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(e.StderrPath(jobID))
	if err != nil {
		_ = stdoutFile.Close()
		return nil, fmt.Errorf("create stderr log: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	argv := make([]string, 0, len(args)+2)
	argv = append(argv, args...)
	argv = append(argv, ManagedIDFlag, jobID)

	cmd := exec.Command(exe, argv...)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
		return nil, fmt.Errorf("start detached fetch: %w", err)
	}

	now := time.Now().UTC()
	rec := &Record{
		JobID:         jobID,
		Name:          strings.TrimSpace(opts.Name),
		State:         StateRunning,
		ManifestPath:  strings.TrimSpace(opts.ManifestPath),
		Fingerprint:   strings.TrimSpace(opts.Fingerprint),
		Spec:          opts.Spec,
		PID:           cmd.Process.Pid,
		CreatedAt:     now,
		StartedAt:     &now,
		LastHeartbeat: func() *time.Time { t := now; return &t }(),
		StdoutPath:    e.StdoutPath(jobID),
		StderrPath:    e.StderrPath(jobID),
	}
	if err := e.store.Write(rec); err != nil {
		return nil, err
	}

	_ = stdoutFile.Close()
	_ = stderrFile.Close()

	return rec, nil
}

// Package toolrun executes external bioinformatics tools as blocking
// calls with captured diagnostics.
//
// Adapters and the extraction pipeline never shell out directly; they go
// through a Runner so tests can substitute a fake and assert on the
// exact invocations without spawning processes.
package toolrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// stderrTailMax bounds captured stderr so a chatty tool cannot balloon
// error messages. The tail is kept because tools print the actual
// failure reason last.
const stderrTailMax = 8 * 1024

// Sentinel errors.
var (
	// ErrToolNotFound indicates the binary is not on PATH.
	ErrToolNotFound = errors.New("tool not found in PATH")
)

// Spec describes one tool invocation.
type Spec struct {
	// Name is the binary name (resolved via PATH) or an absolute path.
	Name string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Stdout receives the tool's standard output. Nil discards it.
	// Tools that write their product to stdout (streaming extraction)
	// set this to the destination.
	Stdout io.Writer

	// Stdin feeds the tool's standard input. Nil connects /dev/null.
	Stdin io.Reader

	// Env are extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// Result reports a completed invocation.
type Result struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// ToolError wraps a failed invocation with its diagnostics. The stderr
// tail is preserved so fallback decisions upstream keep the tool's own
// explanation.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + lastLine(tail)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Runner executes tool invocations.
type Runner interface {
	// LookPath reports where the named tool resolves, or ErrToolNotFound.
	LookPath(name string) (string, error)

	// Run executes the spec and blocks until exit or ctx cancellation.
	// A non-zero exit returns a *ToolError (with the partial Result); a
	// cancelled ctx returns the ctx error after the process is killed.
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

// NewExecRunner returns a process-spawning Runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	path, err := r.LookPath(spec.Name)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin

	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	} else {
		cmd.Stdout = io.Discard
	}

	tail := &tailBuffer{max: stderrTailMax}
	cmd.Stderr = tail

	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	// Give the tool a moment to exit after SIGKILL-on-cancel before Wait
	// gives up on its pipes.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stderr:   tail.String(),
		Duration: time.Since(start),
	}

	if runErr == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return res, &ToolError{
			Tool:     spec.Name,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      runErr,
		}
	}

	return res, fmt.Errorf("run %s: %w", spec.Name, runErr)
}

// tailBuffer keeps the last max bytes written.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

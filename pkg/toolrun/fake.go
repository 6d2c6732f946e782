package toolrun

import (
	"context"
	"fmt"
	"sync"
)

// Call records one Run invocation against a FakeRunner.
type Call struct {
	Name string
	Args []string
	Dir  string
}

// FakeRunner is a scripted Runner for tests. Tools listed in Missing
// fail LookPath; Fail maps tool names to scripted failures; OnRun, when
// set, is invoked for every successful Run so tests can materialize the
// files a real tool would have produced.
type FakeRunner struct {
	mu sync.Mutex

	// Missing tools fail LookPath with ErrToolNotFound.
	Missing map[string]bool

	// Fail maps a tool name to the error its Run returns.
	Fail map[string]error

	// OnRun is called for each Run that is not scripted to fail.
	OnRun func(spec Spec) error

	calls []Call
}

// NewFakeRunner returns an empty fake where every tool exists and
// succeeds.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Missing: make(map[string]bool),
		Fail:    make(map[string]error),
	}
}

// LookPath implements Runner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[name] {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return "/usr/bin/" + name, nil
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.Missing[spec.Name] {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, spec.Name)
	}
	f.calls = append(f.calls, Call{Name: spec.Name, Args: append([]string(nil), spec.Args...), Dir: spec.Dir})
	failErr := f.Fail[spec.Name]
	onRun := f.OnRun
	f.mu.Unlock()

	if failErr != nil {
		return &Result{ExitCode: 1, Stderr: failErr.Error()}, failErr
	}
	if onRun != nil {
		if err := onRun(spec); err != nil {
			return &Result{ExitCode: 1, Stderr: err.Error()}, err
		}
	}
	return &Result{ExitCode: 0}, nil
}

// Calls returns the recorded invocations in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallNames returns just the tool names invoked, in order.
func (f *FakeRunner) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.Name
	}
	return names
}

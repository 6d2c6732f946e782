package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/toolrun"
)

const prefetchTool = "prefetch"

// PrefetchAdapter downloads a run's SRA container through the sra-tools
// prefetch utility, which resolves mirrors and retries internally.
type PrefetchAdapter struct {
	runner toolrun.Runner
}

// NewPrefetch creates the adapter. A nil runner gets the real process
// runner.
func NewPrefetch(runner toolrun.Runner) *PrefetchAdapter {
	if runner == nil {
		runner = toolrun.NewExecRunner()
	}
	return &PrefetchAdapter{runner: runner}
}

// Method implements Adapter.
func (a *PrefetchAdapter) Method() Method { return MethodPrefetch }

// Fetch implements Adapter. prefetch writes to a temp path promoted
// only when the tool exits cleanly and produced bytes, so an
// interrupted download never looks like a finished container.
func (a *PrefetchAdapter) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	if _, err := a.runner.LookPath(prefetchTool); err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}

	dest := accession.ContainerPath(req.Dir, req.Run)
	tmp := accession.TempPath(dest)

	// --max-size u lifts the 20G default cap; large runs are routine.
	args := []string{"--max-size", "u", "--output-file", tmp, req.Run.String()}

	if _, err := a.runner.Run(ctx, toolrun.Spec{Name: prefetchTool, Args: args, Dir: req.Dir}); err != nil {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, fmt.Errorf("%w: %s exited cleanly but wrote no container", ErrExecution, prefetchTool))
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, fmt.Errorf("promote %s: %w", tmp, err))
	}

	return &Artifact{Kind: KindRawContainer, Files: []string{dest}}, nil
}

func (a *PrefetchAdapter) wrap(req Request, err error) error {
	return &MethodError{Op: "fetch", Method: MethodPrefetch, Run: req.Run, Err: err}
}

var _ Adapter = (*PrefetchAdapter)(nil)

package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
	"github.com/seqport/sracatch/pkg/toolrun"
)

const gcloudTool = "gcloud"

// GCPCPAdapter downloads a run's SRA container from its GCS placement
// using the gcloud CLI. SRA placements on GCS are requester-pays, so
// the copy always bills the configured project.
type GCPCPAdapter struct {
	locator *ena.Client
	runner  toolrun.Runner
}

// NewGCPCP creates the adapter. A nil runner gets the real process
// runner.
func NewGCPCP(locator *ena.Client, runner toolrun.Runner) *GCPCPAdapter {
	if runner == nil {
		runner = toolrun.NewExecRunner()
	}
	return &GCPCPAdapter{locator: locator, runner: runner}
}

// Method implements Adapter.
func (a *GCPCPAdapter) Method() Method { return MethodGCPCP }

// Fetch implements Adapter.
func (a *GCPCPAdapter) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	if _, err := a.runner.LookPath(gcloudTool); err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}
	if req.GCPProject == "" {
		return nil, a.wrap(req, fmt.Errorf("%w: no billing project set for requester-pays copy", ErrPrecondition))
	}

	locs, err := a.locator.LocateContainer(ctx, req.Run, "gs")
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}
	loc := locs[0]

	bucket, key, err := loc.ObjectRef()
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}
	src := fmt.Sprintf("gs://%s/%s", bucket, key)

	dest := accession.ContainerPath(req.Dir, req.Run)
	tmp := accession.TempPath(dest)

	args := []string{"storage", "cp"}
	if req.Quiet {
		args = append(args, "--no-user-output-enabled")
	}
	args = append(args, "--billing-project", req.GCPProject, src, tmp)

	if _, err := a.runner.Run(ctx, toolrun.Spec{Name: gcloudTool, Args: args, Dir: req.Dir}); err != nil {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}

	if err := (expectation{MD5: loc.MD5, Bytes: loc.Size}).verify(tmp); err != nil {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return nil, a.wrap(req, fmt.Errorf("promote %s: %w", tmp, err))
	}

	return &Artifact{Kind: KindRawContainer, Files: []string{dest}}, nil
}

func (a *GCPCPAdapter) wrap(req Request, err error) error {
	return &MethodError{Op: "fetch", Method: MethodGCPCP, Run: req.Run, Err: err}
}

var _ Adapter = (*GCPCPAdapter)(nil)

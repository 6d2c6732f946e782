package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
	"github.com/seqport/sracatch/pkg/toolrun"
)

const ascpTool = "ascp"

// ascpKeyCandidates are checked relative to the home directory, in
// order, when no key is configured. These cover the Aspera Connect and
// IBM Aspera CLI install layouts plus the conda aspera package.
var ascpKeyCandidates = []string{
	".aspera/connect/etc/asperaweb_id_dsa.openssh",
	".aspera/cli/etc/asperaweb_id_dsa.openssh",
	"miniconda3/etc/asperaweb_id_dsa.openssh",
}

// ENAAscpAdapter downloads a run's FASTQ files from ENA over the Aspera
// fasp protocol via the external ascp tool.
type ENAAscpAdapter struct {
	client *ena.Client
	runner toolrun.Runner
}

// NewENAAscp creates the adapter. A nil runner gets the real process
// runner.
func NewENAAscp(client *ena.Client, runner toolrun.Runner) *ENAAscpAdapter {
	if runner == nil {
		runner = toolrun.NewExecRunner()
	}
	return &ENAAscpAdapter{client: client, runner: runner}
}

// Method implements Adapter.
func (a *ENAAscpAdapter) Method() Method { return MethodENAAscp }

// Fetch implements Adapter. ascp writes each file to a temp path; the
// file is verified against ENA's md5 and size before promotion, exactly
// as the https adapter does, since fasp transfers corrupt the same way
// interrupted https ones do.
func (a *ENAAscpAdapter) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	if _, err := a.runner.LookPath(ascpTool); err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}

	key, err := resolveAscpKey(req.AscpKey)
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}

	files, err := a.client.RunFastqs(ctx, req.Run)
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}

	var written []string
	for _, fi := range files {
		if fi.FaspPath == "" {
			removePaths(written)
			return nil, a.wrap(req, fmt.Errorf("%w: no fasp path reported for %s", ErrExecution, fi.Name()))
		}

		dest := filepath.Join(req.Dir, fi.Name())
		tmp := accession.TempPath(dest)

		args := []string{"-T", "-l", "300m", "-P33001", "-i", key}
		if req.Quiet {
			args = append(args, "-q")
		}
		args = append(args, req.AscpArgs...)
		args = append(args, fi.FaspPath, tmp)

		if _, err := a.runner.Run(ctx, toolrun.Spec{Name: ascpTool, Args: args, Dir: req.Dir}); err != nil {
			_ = os.Remove(tmp)
			removePaths(written)
			return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
		}

		if err := (expectation{MD5: fi.MD5, Bytes: fi.Bytes}).verify(tmp); err != nil {
			_ = os.Remove(tmp)
			removePaths(written)
			return nil, a.wrap(req, err)
		}
		if err := os.Rename(tmp, dest); err != nil {
			_ = os.Remove(tmp)
			removePaths(written)
			return nil, a.wrap(req, fmt.Errorf("promote %s: %w", tmp, err))
		}
		written = append(written, dest)
	}

	return &Artifact{Kind: KindFastqGz, Files: written}, nil
}

func (a *ENAAscpAdapter) wrap(req Request, err error) error {
	return &MethodError{Op: "fetch", Method: MethodENAAscp, Run: req.Run, Err: err}
}

// resolveAscpKey returns the transfer key path: the configured one if
// set (it must exist), otherwise the first well-known install location
// that does.
func resolveAscpKey(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("aspera key %s: %w", configured, err)
		}
		return configured, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate aspera key: %w", err)
	}
	for _, rel := range ascpKeyCandidates {
		path := filepath.Join(home, rel)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no aspera key found under %s, set one explicitly", home)
}

var _ Adapter = (*ENAAscpAdapter)(nil)

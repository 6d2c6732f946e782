package backend

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/seqport/sracatch/pkg/ena"
)

// ENAFTPAdapter downloads a run's FASTQ files from ENA's HTTPS mirror.
// Despite the historical method name, transfers run over https; the
// "ftp" refers to ENA's ftp.sra.ebi.ac.uk host, which serves both.
type ENAFTPAdapter struct {
	client *ena.Client
	http   *http.Client
}

// NewENAFTP creates the adapter. A nil httpClient gets a default client
// with no overall timeout, since read archives serve multi-gigabyte
// files; cancellation comes from the request context.
func NewENAFTP(client *ena.Client, httpClient *http.Client) *ENAFTPAdapter {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ENAFTPAdapter{client: client, http: httpClient}
}

// Method implements Adapter.
func (a *ENAFTPAdapter) Method() Method { return MethodENAFTP }

// Fetch implements Adapter. Each reported file is downloaded through a
// temp path and verified against ENA's md5 and size before promotion.
// If a later file of a paired set fails, files already promoted by this
// attempt are removed so no partial pair remains.
func (a *ENAFTPAdapter) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	files, err := a.client.RunFastqs(ctx, req.Run)
	if err != nil {
		return nil, a.wrap(req, fmt.Errorf("%w: %w", ErrExecution, err))
	}

	var written []string
	for _, fi := range files {
		dest := filepath.Join(req.Dir, fi.Name())
		if _, err := fetchURL(ctx, a.http, fi.URL, dest, expectation{MD5: fi.MD5, Bytes: fi.Bytes}, req.Progress); err != nil {
			removePaths(written)
			return nil, a.wrap(req, err)
		}
		written = append(written, dest)
	}

	return &Artifact{Kind: KindFastqGz, Files: written}, nil
}

func (a *ENAFTPAdapter) wrap(req Request, err error) error {
	return &MethodError{Op: "fetch", Method: MethodENAFTP, Run: req.Run, Err: err}
}

var _ Adapter = (*ENAFTPAdapter)(nil)

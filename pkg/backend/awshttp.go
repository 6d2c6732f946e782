package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/seqport/sracatch/pkg/accession"
)

// DefaultODPBase is the AWS Open Data Program mirror of the SRA. Objects
// there are public, so this method needs no credentials and no tools.
const DefaultODPBase = "https://sra-pub-run-odp.s3.amazonaws.com/sra"

// AWSHTTPAdapter downloads a run's SRA container from the public ODP
// bucket over plain HTTPS.
type AWSHTTPAdapter struct {
	base string
	http *http.Client
}

// NewAWSHTTP creates the adapter. An empty base selects DefaultODPBase;
// a nil client gets a default one with no overall timeout, leaving
// cancellation to the request context.
func NewAWSHTTP(base string, httpClient *http.Client) *AWSHTTPAdapter {
	if base == "" {
		base = DefaultODPBase
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AWSHTTPAdapter{base: base, http: httpClient}
}

// Method implements Adapter.
func (a *AWSHTTPAdapter) Method() Method { return MethodAWSHTTP }

// Fetch implements Adapter. The bucket publishes no checksums, so the
// only integrity signal is the Content-Length carried by the response.
func (a *AWSHTTPAdapter) Fetch(ctx context.Context, req Request) (*Artifact, error) {
	dest := accession.ContainerPath(req.Dir, req.Run)
	url := fmt.Sprintf("%s/%s/%s", a.base, req.Run, req.Run)

	if _, err := fetchURL(ctx, a.http, url, dest, expectation{}, req.Progress); err != nil {
		return nil, &MethodError{Op: "fetch", Method: MethodAWSHTTP, Run: req.Run, Err: err}
	}

	return &Artifact{Kind: KindRawContainer, Files: []string{dest}}, nil
}

var _ Adapter = (*AWSHTTPAdapter)(nil)

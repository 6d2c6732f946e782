package ena

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/seqport/sracatch/pkg/accession"
)

// Location is one cloud placement of a run's SRA container as reported
// by the SDL service.
type Location struct {
	// Service is the hosting service ("s3", "gs", "sra-ncbi").
	Service string

	// Region is the cloud region, when reported.
	Region string

	// Link is the service URL for the object.
	Link string

	// PayRequired marks requester-pays placements. Fetching one without
	// accepting charges fails at the bucket, so callers gate on this
	// before attempting.
	PayRequired bool

	// Size is the container size in bytes, zero when unreported.
	Size int64

	// MD5 is the container digest, when reported.
	MD5 string
}

// ObjectRef splits the location link into bucket and key for SDK-level
// copies. Supported link shapes: s3://b/k, gs://b/k, virtual-hosted S3
// https URLs, and storage.googleapis.com paths.
func (l Location) ObjectRef() (bucket, key string, err error) {
	link := l.Link
	switch {
	case strings.HasPrefix(link, "s3://"):
		return splitBucketKey(strings.TrimPrefix(link, "s3://"))
	case strings.HasPrefix(link, "gs://"):
		return splitBucketKey(strings.TrimPrefix(link, "gs://"))
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", "", fmt.Errorf("parse location link: %w", err)
	}
	host := u.Hostname()
	path := strings.TrimPrefix(u.Path, "/")

	switch {
	case host == "storage.googleapis.com":
		return splitBucketKey(path)
	case strings.Contains(host, ".s3.") || strings.HasSuffix(host, ".s3.amazonaws.com"):
		bucket = strings.SplitN(host, ".", 2)[0]
		return bucket, path, nil
	case host == "s3.amazonaws.com":
		return splitBucketKey(path)
	}
	return "", "", fmt.Errorf("unrecognized object link: %s", link)
}

func splitBucketKey(s string) (string, string, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("link missing bucket or key: %q", s)
	}
	return parts[0], parts[1], nil
}

// sdlResponse mirrors the SDL v2 retrieve payload.
type sdlResponse struct {
	Version string      `json:"version"`
	Result  []sdlBundle `json:"result"`
}

type sdlBundle struct {
	Bundle string    `json:"bundle"`
	Status int       `json:"status"`
	Msg    string    `json:"msg"`
	Files  []sdlFile `json:"files"`
}

type sdlFile struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Size      int64         `json:"size"`
	MD5       string        `json:"md5"`
	Locations []sdlLocation `json:"locations"`
}

type sdlLocation struct {
	Service     string `json:"service"`
	Region      string `json:"region"`
	Link        string `json:"link"`
	PayRequired bool   `json:"payRequired"`
}

// LocateContainer asks SDL where the run's SRA container lives. The
// returned locations preserve SDL's order, filtered to the requested
// service when service is non-empty.
func (c *Client) LocateContainer(ctx context.Context, run accession.Run, service string) ([]Location, error) {
	q := url.Values{}
	q.Set("acc", run.String())

	body, err := c.get(ctx, c.sdlBase+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp sdlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode SDL response: %w", err)
	}

	var locs []Location
	for _, bundle := range resp.Result {
		if bundle.Bundle != run.String() {
			continue
		}
		if bundle.Status != 200 {
			return nil, fmt.Errorf("%w: SDL status %d for %s: %s", ErrNotFound, bundle.Status, run, bundle.Msg)
		}
		for _, f := range bundle.Files {
			if f.Type != "" && f.Type != "sra" {
				continue
			}
			for _, l := range f.Locations {
				if service != "" && l.Service != service {
					continue
				}
				locs = append(locs, Location{
					Service:     l.Service,
					Region:      l.Region,
					Link:        l.Link,
					PayRequired: l.PayRequired,
					Size:        f.Size,
					MD5:         f.MD5,
				})
			}
		}
	}

	if len(locs) == 0 {
		if service != "" {
			return nil, fmt.Errorf("%w: no %s location for %s", ErrNoFiles, service, run)
		}
		return nil, fmt.Errorf("%w: no locations for %s", ErrNoFiles, run)
	}
	return locs, nil
}

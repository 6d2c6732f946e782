// Package ena queries the archive metadata services: the EBI ENA portal
// API (per-run file listings and annotation fields) and the NCBI SDL
// locator (cloud object locations for SRA containers).
//
// All requests go through a shared client-side rate limiter so batch
// resolution over many runs cannot hammer the portals.
package ena

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Default service endpoints.
const (
	DefaultPortalBase = "https://www.ebi.ac.uk/ena/portal/api"
	DefaultSDLBase    = "https://locate.ncbi.nlm.nih.gov/sdl/2/retrieve"
	DefaultEutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
)

// Sentinel errors for portal operations.
var (
	// ErrNotFound indicates the accession is unknown to the service.
	ErrNotFound = errors.New("accession not found")

	// ErrNoFiles indicates the accession exists but lists no files of
	// the requested class.
	ErrNoFiles = errors.New("no files reported for accession")

	// ErrThrottled indicates the service rate-limited the request.
	ErrThrottled = errors.New("request throttled by service")

	// ErrUnavailable indicates the service returned a server error.
	ErrUnavailable = errors.New("metadata service unavailable")
)

// Config configures a Client.
type Config struct {
	// PortalBase overrides the ENA portal API base URL.
	PortalBase string

	// SDLBase overrides the NCBI SDL retrieve URL.
	SDLBase string

	// EutilsBase overrides the NCBI eutils base URL.
	EutilsBase string

	// HTTPClient overrides the HTTP client (tests, proxies).
	HTTPClient *http.Client

	// RequestsPerSecond bounds the client-side request rate across all
	// operations. Zero applies the default (2/s).
	RequestsPerSecond float64

	// UserAgent overrides the User-Agent header.
	UserAgent string
}

// Client talks to the metadata services.
type Client struct {
	portalBase string
	sdlBase    string
	eutilsBase string
	httpc      *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// New creates a Client from cfg, applying defaults for zero fields.
func New(cfg Config) *Client {
	if cfg.PortalBase == "" {
		cfg.PortalBase = DefaultPortalBase
	}
	if cfg.SDLBase == "" {
		cfg.SDLBase = DefaultSDLBase
	}
	if cfg.EutilsBase == "" {
		cfg.EutilsBase = DefaultEutilsBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sracatch"
	}
	return &Client{
		portalBase: cfg.PortalBase,
		sdlBase:    cfg.SDLBase,
		eutilsBase: cfg.EutilsBase,
		httpc:      cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		userAgent:  cfg.UserAgent,
	}
}

// maxAttempts bounds retries for transient failures (5xx, 429).
const maxAttempts = 3

// get performs a rate-limited GET with bounded retry on transient
// statuses, returning the response body.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Network-level failures are worth one more try.
		return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("read response: %w", err)
		}
		return b, false, nil
	case resp.StatusCode == http.StatusNoContent:
		return nil, false, ErrNotFound
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, ErrThrottled
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
}

// IsNotFound returns true if the error indicates an unknown accession.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

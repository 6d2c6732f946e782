package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
)

// newPortalClient serves filereport rows for any accession query.
func newPortalClient(t *testing.T, rows []map[string]string) *ena.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rows)
	}))
	t.Cleanup(srv.Close)
	return ena.New(ena.Config{
		PortalBase:        srv.URL,
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
	})
}

func writeRunList(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestReadRunList(t *testing.T) {
	path := writeRunList(t, "# header comment\nSRR1\n\n  ERR2  \ndrr3\n")
	runs, err := ReadRunList(path)
	require.NoError(t, err)
	assert.Equal(t, []accession.Run{"SRR1", "ERR2", "DRR3"}, runs)
}

func TestReadRunList_BadLine(t *testing.T) {
	path := writeRunList(t, "SRR1\nnot-an-accession\n")
	_, err := ReadRunList(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, accession.ErrInvalidRun)
	assert.Contains(t, err.Error(), ":2:")
}

func TestReadRunList_MissingFile(t *testing.T) {
	_, err := ReadRunList(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestResolve_DedupePreservesOrder(t *testing.T) {
	path := writeRunList(t, "SRR2\nSRR1\nSRR3\n")
	r := NewResolver(nil)

	runs, err := r.Resolve(context.Background(), Source{
		Runs:    []string{"SRR1", "SRR2"},
		RunList: path,
	})
	require.NoError(t, err)
	assert.Equal(t, []accession.Run{"SRR1", "SRR2", "SRR3"}, runs)
}

func TestResolve_InvalidDirectRun(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), Source{Runs: []string{"PRJNA1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, accession.ErrInvalidRun)
}

func TestResolve_Empty(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), Source{})
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestResolve_Project(t *testing.T) {
	client := newPortalClient(t, []map[string]string{
		{"run_accession": "SRR2"},
		{"run_accession": "SRR3"},
	})
	r := NewResolver(client)

	runs, err := r.Resolve(context.Background(), Source{
		Runs:    []string{"SRR1"},
		Project: "PRJNA100",
	})
	require.NoError(t, err)
	assert.Equal(t, []accession.Run{"SRR1", "SRR2", "SRR3"}, runs)
}

func TestResolve_InvalidProject(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), Source{Project: "SRR1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, accession.ErrInvalidProject)
}

// When the portal cannot resolve a project the resolver retries through
// NCBI eutils before giving up.
func TestResolve_ProjectEutilsFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/filereport", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<eSearchResult><Count>2</Count><IdList><Id>100</Id><Id>200</Id></IdList></eSearchResult>`)
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Run,spots\nSRR7,10\nSRR8,20\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := ena.New(ena.Config{
		PortalBase:        srv.URL,
		EutilsBase:        srv.URL,
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
	})
	r := NewResolver(client)

	runs, err := r.Resolve(context.Background(), Source{Project: "PRJNA100"})
	require.NoError(t, err)
	assert.Equal(t, []accession.Run{"SRR7", "SRR8"}, runs)
}

func TestResolve_ProjectBothSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	client := ena.New(ena.Config{
		PortalBase:        srv.URL,
		EutilsBase:        srv.URL,
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
	})
	r := NewResolver(client)

	_, err := r.Resolve(context.Background(), Source{Project: "PRJNA100"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ena.ErrNotFound)
	assert.Contains(t, err.Error(), "portal")
	assert.Contains(t, err.Error(), "eutils")
}

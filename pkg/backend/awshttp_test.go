package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAWSHTTP_Fetch(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/SRR1/SRR1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "odp-container")
	}))
	t.Cleanup(srv.Close)

	a := NewAWSHTTP(srv.URL, srv.Client())
	art, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, KindRawContainer, art.Kind)

	dest := filepath.Join(dir, "SRR1.sra")
	require.Equal(t, []string{dest}, art.Files)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "odp-container", string(got))
	assertNoTemps(t, dir)
}

func TestAWSHTTP_NotFound(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	a := NewAWSHTTP(srv.URL, srv.Client())
	_, err := a.Fetch(context.Background(), Request{Run: "SRR404", Dir: dir})
	require.Error(t, err)
	assert.True(t, IsExecution(err))

	var me *MethodError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, MethodAWSHTTP, me.Method)
	assert.NoFileExists(t, filepath.Join(dir, "SRR404.sra"))
	assertNoTemps(t, dir)
}

func TestAWSHTTP_Defaults(t *testing.T) {
	a := NewAWSHTTP("", nil)
	assert.Equal(t, DefaultODPBase, a.base)
	assert.NotNil(t, a.http)
}

func TestAWSHTTP_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "odp-container")
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAWSHTTP(srv.URL, srv.Client())
	_, err := a.Fetch(ctx, Request{Run: "SRR1", Dir: dir})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assertNoTemps(t, dir)
}

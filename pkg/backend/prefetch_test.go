package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/pkg/toolrun"
)

// outputFileArg extracts the value following --output-file.
func outputFileArg(t *testing.T, args []string) string {
	t.Helper()
	for i, a := range args {
		if a == "--output-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("no --output-file in %v", args)
	return ""
}

func TestPrefetch_MissingTool(t *testing.T) {
	runner := toolrun.NewFakeRunner()
	runner.Missing[prefetchTool] = true
	a := NewPrefetch(runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))
	assert.Empty(t, runner.Calls())
}

func TestPrefetch_Fetch(t *testing.T) {
	dir := t.TempDir()
	runner := toolrun.NewFakeRunner()
	runner.OnRun = func(spec toolrun.Spec) error {
		return os.WriteFile(outputFileArg(t, spec.Args), []byte("sra-container"), 0o644)
	}
	a := NewPrefetch(runner)

	art, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, KindRawContainer, art.Kind)

	dest := filepath.Join(dir, "SRR1.sra")
	require.Equal(t, []string{dest}, art.Files)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "sra-container", string(got))
	assertNoTemps(t, dir)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, prefetchTool, calls[0].Name)
	// The size cap is lifted; large runs are routine.
	assert.Equal(t, []string{"--max-size", "u"}, calls[0].Args[:2])
	assert.Equal(t, "SRR1", calls[0].Args[len(calls[0].Args)-1])
}

func TestPrefetch_ToolFailure(t *testing.T) {
	dir := t.TempDir()
	runner := toolrun.NewFakeRunner()
	runner.Fail[prefetchTool] = errors.New("transfer incomplete")
	a := NewPrefetch(runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir})
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.NoFileExists(t, filepath.Join(dir, "SRR1.sra"))
	assertNoTemps(t, dir)
}

// A clean exit that produced nothing is still a failure; promoting an
// empty container would poison later extraction.
func TestPrefetch_EmptyOutput(t *testing.T) {
	dir := t.TempDir()
	runner := toolrun.NewFakeRunner()
	runner.OnRun = func(spec toolrun.Spec) error {
		return os.WriteFile(outputFileArg(t, spec.Args), nil, 0o644)
	}
	a := NewPrefetch(runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir})
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.NoFileExists(t, filepath.Join(dir, "SRR1.sra"))
	assertNoTemps(t, dir)
}

func TestPrefetch_NoOutputWritten(t *testing.T) {
	dir := t.TempDir()
	runner := toolrun.NewFakeRunner()
	a := NewPrefetch(runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir})
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.NoFileExists(t, filepath.Join(dir, "SRR1.sra"))
}

package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
	"github.com/seqport/sracatch/pkg/toolrun"
)

func TestGCPCP_MissingTool(t *testing.T) {
	runner := toolrun.NewFakeRunner()
	runner.Missing[gcloudTool] = true
	a := NewGCPCP(ena.New(ena.Config{}), runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: t.TempDir(), GCPProject: "bp-1"})
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))
	assert.Empty(t, runner.Calls())
}

func TestGCPCP_NoProject(t *testing.T) {
	runner := toolrun.NewFakeRunner()
	a := NewGCPCP(ena.New(ena.Config{}), runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))
	assert.Contains(t, err.Error(), "billing project")
	assert.Empty(t, runner.Calls())
}

func TestGCPCP_Fetch(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("gs-container")
	client := newSDLServer(t, "SRR1", int64(len(payload)), md5Hex(payload), []sdlLoc{
		{Service: "gs", Region: "us", Link: "gs://sra-pub-crun-1/SRR1/SRR1.1", PayRequired: true},
	})

	runner := toolrun.NewFakeRunner()
	runner.OnRun = func(spec toolrun.Spec) error {
		return os.WriteFile(spec.Args[len(spec.Args)-1], payload, 0o644)
	}
	a := NewGCPCP(client, runner)

	art, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir, GCPProject: "bp-1", PaymentAllowed: true})
	require.NoError(t, err)
	assert.Equal(t, KindRawContainer, art.Kind)

	dest := filepath.Join(dir, "SRR1.sra")
	require.Equal(t, []string{dest}, art.Files)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assertNoTemps(t, dir)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, gcloudTool, calls[0].Name)
	assert.Equal(t, []string{
		"storage", "cp",
		"--billing-project", "bp-1",
		"gs://sra-pub-crun-1/SRR1/SRR1.1",
		accession.TempPath(dest),
	}, calls[0].Args)
}

func TestGCPCP_Quiet(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("gs-container")
	client := newSDLServer(t, "SRR1", int64(len(payload)), md5Hex(payload), []sdlLoc{
		{Service: "gs", Link: "gs://sra-pub-crun-1/SRR1/SRR1.1", PayRequired: true},
	})

	runner := toolrun.NewFakeRunner()
	runner.OnRun = func(spec toolrun.Spec) error {
		return os.WriteFile(spec.Args[len(spec.Args)-1], payload, 0o644)
	}
	a := NewGCPCP(client, runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir, GCPProject: "bp-1", Quiet: true, PaymentAllowed: true})
	require.NoError(t, err)
	assert.Contains(t, runner.Calls()[0].Args, "--no-user-output-enabled")
}

func TestGCPCP_ToolFailure(t *testing.T) {
	dir := t.TempDir()
	client := newSDLServer(t, "SRR1", 12, "", []sdlLoc{
		{Service: "gs", Link: "gs://sra-pub-crun-1/SRR1/SRR1.1", PayRequired: true},
	})

	runner := toolrun.NewFakeRunner()
	runner.Fail[gcloudTool] = errors.New("billing project rejected")
	a := NewGCPCP(client, runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir, GCPProject: "bp-1", PaymentAllowed: true})
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.NoFileExists(t, filepath.Join(dir, "SRR1.sra"))
	assertNoTemps(t, dir)
}

func TestGCPCP_VerifyFailure(t *testing.T) {
	dir := t.TempDir()
	client := newSDLServer(t, "SRR1", 12, "d41d8cd98f00b204e9800998ecf8427e", []sdlLoc{
		{Service: "gs", Link: "gs://sra-pub-crun-1/SRR1/SRR1.1", PayRequired: true},
	})

	runner := toolrun.NewFakeRunner()
	runner.OnRun = func(spec toolrun.Spec) error {
		return os.WriteFile(spec.Args[len(spec.Args)-1], []byte("gs-container"), 0o644)
	}
	a := NewGCPCP(client, runner)

	_, err := a.Fetch(context.Background(), Request{Run: "SRR1", Dir: dir, GCPProject: "bp-1", PaymentAllowed: true})
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.NoFileExists(t, filepath.Join(dir, "SRR1.sra"))
	assertNoTemps(t, dir)
}

func TestNewDefaultRegistry(t *testing.T) {
	reg, err := NewDefaultRegistry(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, AllMethods(), reg.Registered())
}

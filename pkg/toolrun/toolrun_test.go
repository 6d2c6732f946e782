package toolrun

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 8}

	_, err := tb.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", tb.String())

	_, err = tb.Write([]byte("efghij"))
	require.NoError(t, err)
	assert.Equal(t, "cdefghij", tb.String())
	assert.Len(t, tb.String(), 8)
}

func TestToolErrorMessage(t *testing.T) {
	err := &ToolError{
		Tool:     "fasterq-dump",
		ExitCode: 3,
		Stderr:   "some progress\nerr: invalid accession 'XYZ'\n",
		Err:      errors.New("exit status 3"),
	}

	msg := err.Error()
	assert.Contains(t, msg, "fasterq-dump")
	assert.Contains(t, msg, "code 3")
	assert.Contains(t, msg, "invalid accession")
	assert.NotContains(t, msg, "some progress")
}

func TestExecRunnerLookPathMissing(t *testing.T) {
	r := NewExecRunner()
	_, err := r.LookPath("definitely-not-a-real-tool-name-xyz")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestExecRunnerMissingToolOnRun(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), Spec{Name: "definitely-not-a-real-tool-name-xyz"})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestFakeRunnerRecordsCalls(t *testing.T) {
	f := NewFakeRunner()

	_, err := f.Run(context.Background(), Spec{Name: "pigz", Args: []string{"-p", "4", "x.fastq"}, Dir: "out"})
	require.NoError(t, err)
	_, err = f.Run(context.Background(), Spec{Name: "seqtk", Args: []string{"seq", "-A"}})
	require.NoError(t, err)

	calls := f.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "pigz", calls[0].Name)
	assert.Equal(t, []string{"-p", "4", "x.fastq"}, calls[0].Args)
	assert.Equal(t, "out", calls[0].Dir)
	assert.Equal(t, []string{"pigz", "seqtk"}, f.CallNames())
}

func TestFakeRunnerScriptedFailure(t *testing.T) {
	f := NewFakeRunner()
	f.Fail["prefetch"] = errors.New("network unreachable")

	res, err := f.Run(context.Background(), Spec{Name: "prefetch"})
	require.Error(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "network unreachable")
}

func TestFakeRunnerMissingTool(t *testing.T) {
	f := NewFakeRunner()
	f.Missing["ascp"] = true

	_, err := f.LookPath("ascp")
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = f.Run(context.Background(), Spec{Name: "ascp"})
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Empty(t, f.Calls(), "missing tool must not be recorded as invoked")
}

func TestFakeRunnerOnRun(t *testing.T) {
	var out bytes.Buffer
	f := NewFakeRunner()
	f.OnRun = func(spec Spec) error {
		if spec.Stdout != nil {
			_, err := spec.Stdout.Write([]byte("@read1\nACGT\n+\nFFFF\n"))
			return err
		}
		return nil
	}

	_, err := f.Run(context.Background(), Spec{Name: "sracat", Stdout: &out})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "@read1"))
}

func TestFakeRunnerHonorsCancelledContext(t *testing.T) {
	f := NewFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Run(ctx, Spec{Name: "pigz"})
	assert.ErrorIs(t, err, context.Canceled)
}

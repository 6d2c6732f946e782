package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/convert"
	"github.com/seqport/sracatch/pkg/fetch"
	"github.com/seqport/sracatch/pkg/ledger"
	"github.com/seqport/sracatch/pkg/report"
	"github.com/seqport/sracatch/pkg/toolrun"
)

const fakeReads = "@r1\nACGT\n+\nFFFF\n"

type stubAdapter struct {
	method backend.Method
	fetch  func(ctx context.Context, req backend.Request) (*backend.Artifact, error)
	calls  atomic.Int32
}

func (s *stubAdapter) Method() backend.Method { return s.method }

func (s *stubAdapter) Fetch(ctx context.Context, req backend.Request) (*backend.Artifact, error) {
	s.calls.Add(1)
	return s.fetch(ctx, req)
}

// containerAdapter writes a container file and returns it, like a real
// mirror fetch would.
func containerAdapter(m backend.Method) *stubAdapter {
	return &stubAdapter{method: m, fetch: func(_ context.Context, req backend.Request) (*backend.Artifact, error) {
		path := accession.ContainerPath(req.Dir, req.Run)
		if err := os.WriteFile(path, []byte("sra-bytes"), 0o644); err != nil {
			return nil, err
		}
		return &backend.Artifact{Kind: backend.KindRawContainer, Files: []string{path}}, nil
	}}
}

// failingFor behaves like containerAdapter except for the listed runs,
// which exhaust with an execution error.
func failingFor(m backend.Method, bad ...accession.Run) *stubAdapter {
	inner := containerAdapter(m)
	return &stubAdapter{method: m, fetch: func(ctx context.Context, req backend.Request) (*backend.Artifact, error) {
		for _, r := range bad {
			if r == req.Run {
				return nil, &backend.MethodError{Op: "fetch", Method: m, Run: req.Run,
					Err: fmt.Errorf("%w: mirror dropped the connection", backend.ErrExecution)}
			}
		}
		return inner.fetch(ctx, req)
	}}
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

// fakeTools simulates the conversion suite: fasterq-dump writes a
// single-end fastq into --outdir, the stream tools write to stdout.
func fakeTools(t *testing.T) *toolrun.FakeRunner {
	t.Helper()
	f := toolrun.NewFakeRunner()
	f.OnRun = func(spec toolrun.Spec) error {
		switch spec.Name {
		case "fasterq-dump":
			outdir := argAfter(spec.Args, "--outdir")
			container := spec.Args[len(spec.Args)-1]
			run := strings.TrimSuffix(filepath.Base(container), ".sra")
			return os.WriteFile(filepath.Join(outdir, run+".fastq"), []byte(fakeReads), 0o644)
		case "sracat", "seqtk":
			_, err := spec.Stdout.Write([]byte(fakeReads))
			return err
		case "pigz", "gzip":
			if hasArg(spec.Args, "-d") {
				_, err := spec.Stdout.Write([]byte(fakeReads))
				return err
			}
			_, err := spec.Stdout.Write([]byte("gzipped-payload"))
			return err
		}
		return nil
	}
	return f
}

func newController(t *testing.T, w report.Writer, store *ledger.Store, tools *toolrun.FakeRunner, adapters ...backend.Adapter) *Controller {
	t.Helper()
	reg := backend.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	if tools == nil {
		tools = fakeTools(t)
	}
	return New(fetch.New(reg, w), convert.NewPipeline(tools), w, store)
}

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), ledger.DefaultFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func defaultOpts(dir string) Options {
	return Options{
		Methods: []backend.Method{backend.MethodPrefetch},
		Formats: convert.FormatSet{convert.FormatFastqGz},
		Dir:     dir,
	}
}

func recordTypes(t *testing.T, buf *bytes.Buffer) map[string]int {
	t.Helper()
	counts := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec report.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		counts[rec.Type]++
	}
	return counts
}

func TestRunFallbackThenExtract(t *testing.T) {
	dir := t.TempDir()
	broken := &stubAdapter{method: backend.MethodENAAscp, fetch: func(_ context.Context, req backend.Request) (*backend.Artifact, error) {
		return nil, &backend.MethodError{Op: "fetch", Method: backend.MethodENAAscp, Run: req.Run,
			Err: fmt.Errorf("%w: ascp exited 1", backend.ErrExecution)}
	}}
	working := containerAdapter(backend.MethodPrefetch)

	var buf bytes.Buffer
	w := report.NewJSONLWriter(&buf, "job-1")
	c := newController(t, w, nil, nil, broken, working)

	opts := defaultOpts(dir)
	opts.Methods = []backend.Method{backend.MethodENAAscp, backend.MethodPrefetch}
	res, err := c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	out := res.Outcomes[0]
	assert.Equal(t, report.StateComplete, out.State)
	assert.Equal(t, backend.MethodPrefetch, out.Method)
	assert.Equal(t, []string{filepath.Join(dir, "SRR1.fastq.gz")}, out.Outputs)
	require.Len(t, out.Attempts, 2)
	assert.Error(t, out.Attempts[0].Err)
	assert.NoError(t, out.Attempts[1].Err)

	assert.False(t, res.Failed())
	assert.Equal(t, 1, res.Summary.RunsComplete)
	assert.Equal(t, int64(len("gzipped-payload")), res.Summary.BytesTotal)

	counts := recordTypes(t, &buf)
	assert.Equal(t, 2, counts[report.TypeAttempt])
	assert.Equal(t, 1, counts[report.TypeRun])
	assert.Equal(t, 1, counts[report.TypeSummary])
	assert.GreaterOrEqual(t, counts[report.TypeProgress], 4, "starting, downloading, extracting, complete")
}

func TestRunContinuesPastFailedRun(t *testing.T) {
	dir := t.TempDir()
	adapter := failingFor(backend.MethodPrefetch, "SRR2")
	c := newController(t, nil, nil, nil, adapter)

	res, err := c.Run(context.Background(), []accession.Run{"SRR1", "SRR2", "SRR3"}, defaultOpts(dir))
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, report.StateComplete, res.Outcomes[0].State)
	assert.Equal(t, report.StateDownloadFailed, res.Outcomes[1].State)
	assert.Equal(t, report.StateComplete, res.Outcomes[2].State)
	assert.True(t, fetch.IsExhausted(res.Outcomes[1].Err))

	assert.True(t, res.Failed())
	assert.Equal(t, 3, res.Summary.RunsTotal)
	assert.Equal(t, 2, res.Summary.RunsComplete)
	assert.Equal(t, 1, res.Summary.DownloadFailures)
}

func TestRunExtractionFailure(t *testing.T) {
	dir := t.TempDir()
	tools := fakeTools(t)
	tools.Fail["fasterq-dump"] = errors.New("reference resolution failed")

	store := openStore(t)
	c := newController(t, nil, store, tools, containerAdapter(backend.MethodPrefetch))

	res, err := c.Run(context.Background(), []accession.Run{"SRR1"}, defaultOpts(dir))
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	out := res.Outcomes[0]
	assert.Equal(t, report.StateExtractionFailed, out.State)
	assert.True(t, convert.IsConversion(out.Err))
	assert.Equal(t, 1, res.Summary.ExtractionFailures)
	assert.True(t, res.Failed())

	entry, found, err := store.Get(context.Background(), "SRR1", "fastq.gz")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, report.StateExtractionFailed, entry.State)
	assert.NotEmpty(t, entry.Error)
}

func TestRunUnsortedRejectsIncompatibleChain(t *testing.T) {
	adapter := containerAdapter(backend.MethodPrefetch)
	c := newController(t, nil, nil, nil, adapter)

	opts := defaultOpts(t.TempDir())
	opts.Methods = []backend.Method{backend.MethodENAFTP, backend.MethodPrefetch}
	opts.Unsorted = true
	_, err := c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsorted")
	assert.Equal(t, int32(0), adapter.calls.Load(), "validation must run before any adapter")
}

func TestRunValidation(t *testing.T) {
	c := newController(t, nil, nil, nil, containerAdapter(backend.MethodPrefetch))
	dir := t.TempDir()

	_, err := c.Run(context.Background(), nil, defaultOpts(dir))
	assert.ErrorIs(t, err, ErrNoRuns)

	opts := defaultOpts(dir)
	opts.Formats = nil
	_, err = c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	assert.ErrorIs(t, err, convert.ErrNoFormats)

	opts = defaultOpts(dir)
	opts.Stdout = true
	opts.Formats = convert.FormatSet{convert.FormatFastq, convert.FormatFasta}
	_, err = c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one format")

	opts.Formats = convert.FormatSet{convert.FormatSRA}
	_, err = c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read stream")
}

func TestRunStdoutStreams(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t)

	var stream bytes.Buffer
	c := newController(t, nil, store, nil, containerAdapter(backend.MethodPrefetch)).WithOutput(&stream)

	opts := defaultOpts(dir)
	opts.Stdout = true
	opts.Formats = convert.FormatSet{convert.FormatFastq}
	res, err := c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, report.StateComplete, res.Outcomes[0].State)
	assert.Empty(t, res.Outcomes[0].Outputs)
	assert.Equal(t, fakeReads, stream.String())

	// Streamed bytes are not resumable artifacts.
	_, found, err := store.Get(context.Background(), "SRR1", "fastq")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunRecordsLedger(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t)
	c := newController(t, nil, store, nil, containerAdapter(backend.MethodPrefetch))

	res, err := c.Run(context.Background(), []accession.Run{"SRR1"}, defaultOpts(dir))
	require.NoError(t, err)
	require.False(t, res.Failed())

	entry, found, err := store.Get(context.Background(), "SRR1", "fastq.gz")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, report.StateComplete, entry.State)
	assert.Equal(t, "prefetch", entry.Method)
	assert.Equal(t, []string{filepath.Join(dir, "SRR1.fastq.gz")}, entry.Outputs)
}

func TestRunResumeSkipsCompleted(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t)
	require.NoError(t, store.Record(context.Background(), ledger.Entry{
		Run:     "SRR1",
		Formats: "fastq.gz",
		State:   report.StateComplete,
	}))

	adapter := containerAdapter(backend.MethodPrefetch)
	c := newController(t, nil, store, nil, adapter)

	opts := defaultOpts(dir)
	opts.Resume = true
	res, err := c.Run(context.Background(), []accession.Run{"SRR1", "SRR2"}, opts)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 2)
	assert.True(t, res.Outcomes[0].Skipped)
	assert.Equal(t, report.StateComplete, res.Outcomes[0].State)
	assert.False(t, res.Outcomes[1].Skipped)

	assert.Equal(t, int32(1), adapter.calls.Load(), "resumed run must not hit the chain")
	assert.Equal(t, 2, res.Summary.RunsComplete)
	assert.Equal(t, 1, res.Summary.RunsResumed)
}

func TestRunResumeIsFormatScoped(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t)
	require.NoError(t, store.Record(context.Background(), ledger.Entry{
		Run:     "SRR1",
		Formats: "fasta.gz",
		State:   report.StateComplete,
	}))

	adapter := containerAdapter(backend.MethodPrefetch)
	c := newController(t, nil, store, nil, adapter)

	opts := defaultOpts(dir)
	opts.Resume = true
	res, err := c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	require.NoError(t, err)

	assert.False(t, res.Outcomes[0].Skipped, "a different format set is separate work")
	assert.Equal(t, int32(1), adapter.calls.Load())
	assert.Zero(t, res.Summary.RunsResumed)
}

func TestRunConcurrentKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	runs := []accession.Run{"SRR1", "SRR2", "SRR3", "SRR4"}
	c := newController(t, nil, nil, nil, containerAdapter(backend.MethodPrefetch))

	opts := defaultOpts(dir)
	opts.Concurrency = 3
	res, err := c.Run(context.Background(), runs, opts)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, len(runs))
	for i, run := range runs {
		assert.Equal(t, run, res.Outcomes[i].Run)
		assert.Equal(t, report.StateComplete, res.Outcomes[i].State)
	}
	assert.Equal(t, 4, res.Summary.RunsComplete)
}

func TestRunProgressCallbackTagsRun(t *testing.T) {
	dir := t.TempDir()
	var gotRun accession.Run
	adapter := &stubAdapter{method: backend.MethodPrefetch, fetch: func(_ context.Context, req backend.Request) (*backend.Artifact, error) {
		if req.Progress != nil {
			req.Progress(10, 100)
		}
		path := accession.ContainerPath(req.Dir, req.Run)
		if err := os.WriteFile(path, []byte("sra-bytes"), 0o644); err != nil {
			return nil, err
		}
		return &backend.Artifact{Kind: backend.KindRawContainer, Files: []string{path}}, nil
	}}
	c := newController(t, nil, nil, nil, adapter)

	opts := defaultOpts(dir)
	opts.Progress = func(run accession.Run, written, total int64) { gotRun = run }
	_, err := c.Run(context.Background(), []accession.Run{"SRR1"}, opts)
	require.NoError(t, err)
	assert.Equal(t, accession.Run("SRR1"), gotRun)
}

func TestSummaryString(t *testing.T) {
	s := Summary{
		RunsTotal:        3,
		RunsComplete:     2,
		RunsResumed:      1,
		DownloadFailures: 1,
		BytesTotal:       2 << 20,
	}
	msg := s.String()
	assert.Contains(t, msg, "3 runs: 2 complete")
	assert.Contains(t, msg, "1 resumed")
	assert.Contains(t, msg, "1 download failures")
	assert.Contains(t, msg, "2.1 MB")
}

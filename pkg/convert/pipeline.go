package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/toolrun"
	"github.com/seqport/sracatch/pkg/workspace"
)

// External conversion tools.
const (
	toolFasterqDump = "fasterq-dump"
	toolSracat      = "sracat"
	toolPigz        = "pigz"
	toolGzip        = "gzip"
	toolSeqtk       = "seqtk"
)

// StepError reports a failed conversion step with the tool's own
// diagnostics preserved underneath.
type StepError struct {
	Op     Op
	Format Format
	Run    accession.Run
	Err    error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s for %s (%s): %v", e.Op, e.Run, e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// IsConversion returns true if the error is a failed conversion step.
func IsConversion(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}

// Job is one run's extraction unit: a confirmed artifact plus the
// requested formats. The pipeline owns it for the duration of Extract.
type Job struct {
	Run      accession.Run
	Artifact *backend.Artifact
	Formats  FormatSet

	// Dir is the output directory.
	Dir string

	// Threads bounds in-step parallelism for tools that support it.
	Threads int

	// Force reruns steps even when their outputs exist.
	Force bool

	// Unsorted selects single-pass arbitrary-order extraction.
	Unsorted bool
}

func (j Job) threads() int {
	if j.Threads <= 0 {
		return 1
	}
	return j.Threads
}

// StepResult reports one executed (or skipped) step.
type StepResult struct {
	Op       Op
	Format   Format
	Outputs  []string
	Skipped  bool
	Duration time.Duration
}

// Pipeline executes conversion plans through external tools.
type Pipeline struct {
	runner toolrun.Runner
}

// NewPipeline returns a Pipeline using the given runner, or a real
// process runner when nil.
func NewPipeline(runner toolrun.Runner) *Pipeline {
	if runner == nil {
		runner = toolrun.NewExecRunner()
	}
	return &Pipeline{runner: runner}
}

// Extract produces the job's requested formats and returns every output
// path satisfying them, including paths that already existed and were
// skipped.
//
// Formats whose outputs already exist are dropped from planning
// entirely unless Force is set, so an up-to-date target never triggers
// conversion work. On step failure the error is returned together with
// whatever outputs prior steps produced; those files are kept.
func (p *Pipeline) Extract(ctx context.Context, job Job) ([]string, []StepResult, error) {
	if job.Artifact == nil || len(job.Artifact.Files) == 0 {
		return nil, nil, fmt.Errorf("extraction job for %s has no artifact", job.Run)
	}
	if len(job.Formats) == 0 {
		return nil, nil, ErrNoFormats
	}

	needed, satisfied := p.partition(job)
	if len(needed) == 0 {
		return satisfied, nil, nil
	}

	steps, err := Plan(job.Artifact.Kind, needed, job.Unsorted)
	if err != nil {
		return nil, nil, err
	}

	var results []StepResult
	for _, step := range steps {
		res, err := p.runStep(ctx, job, step)
		results = append(results, res)
		if err != nil {
			return p.collectOutputs(job, satisfied), results, err
		}
	}

	p.removeEphemeral(steps, results)

	return p.collectOutputs(job, satisfied), results, nil
}

// partition splits the requested formats into those still needing work
// and the output paths already satisfying the rest.
func (p *Pipeline) partition(job Job) (FormatSet, []string) {
	if job.Force {
		return job.Formats, nil
	}

	var needed FormatSet
	var satisfied []string
	for _, f := range job.Formats {
		if f == FormatFastqGz && job.Artifact.Kind == backend.KindFastqGz {
			// The artifact files are the target; nothing to plan.
			satisfied = append(satisfied, job.Artifact.Files...)
			continue
		}
		if found := workspace.ExistingOutputs(job.Dir, job.Run, f.Ext()); len(found) > 0 {
			satisfied = append(satisfied, found...)
			continue
		}
		needed = append(needed, f)
	}
	return needed, satisfied
}

func (p *Pipeline) runStep(ctx context.Context, job Job, step Step) (StepResult, error) {
	start := time.Now()
	res := StepResult{Op: step.Op, Format: step.Format}

	if !job.Force {
		if found := workspace.ExistingOutputs(job.Dir, job.Run, step.Format.Ext()); len(found) > 0 {
			res.Skipped = true
			res.Outputs = found
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	var outputs []string
	var err error
	switch step.Op {
	case OpKeepContainer:
		outputs = []string{job.Artifact.Primary()}
	case OpExtract:
		outputs, err = p.extractOrdered(ctx, job)
	case OpExtractUnsorted:
		outputs, err = p.extractUnsorted(ctx, job)
	case OpDecompress:
		outputs, err = p.decompress(ctx, job, step.Format)
	case OpFasta:
		outputs, err = p.fastaFromFastq(ctx, job)
	case OpGzipFastq:
		outputs, err = p.gzipFiles(ctx, job, FormatFastq)
	case OpGzipFasta:
		outputs, err = p.gzipFiles(ctx, job, FormatFasta)
	default:
		err = fmt.Errorf("unknown conversion op %q", step.Op)
	}

	res.Outputs = outputs
	res.Duration = time.Since(start)
	if err != nil {
		return res, &StepError{Op: step.Op, Format: step.Format, Run: job.Run, Err: err}
	}
	return res, nil
}

// extractOrdered runs fasterq-dump against the container. The tool
// decides single vs paired layout; outputs are discovered afterwards.
func (p *Pipeline) extractOrdered(ctx context.Context, job Job) ([]string, error) {
	args := []string{
		"--split-3",
		"--threads", strconv.Itoa(job.threads()),
		"--outdir", job.Dir,
	}
	if job.Force {
		args = append(args, "--force")
	}
	args = append(args, job.Artifact.Primary())

	if _, err := p.runner.Run(ctx, toolrun.Spec{Name: toolFasterqDump, Args: args, Dir: job.Dir}); err != nil {
		p.removeFresh(job, FormatFastq)
		return nil, err
	}

	found := workspace.ExistingOutputs(job.Dir, job.Run, FormatFastq.Ext())
	if len(found) == 0 {
		return nil, fmt.Errorf("%s succeeded but produced no fastq files", toolFasterqDump)
	}
	return found, nil
}

// extractUnsorted streams the container through sracat in one pass. The
// stream lands in a temp file promoted only on success, so an
// interrupted extraction never satisfies a later existence check.
func (p *Pipeline) extractUnsorted(ctx context.Context, job Job) ([]string, error) {
	target := accession.OutputPath(job.Dir, job.Run, FormatFastq.Ext())
	tmp := accession.TempPath(target)

	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", tmp, err)
	}

	_, runErr := p.runner.Run(ctx, toolrun.Spec{
		Name:   toolSracat,
		Args:   []string{job.Artifact.Primary()},
		Dir:    job.Dir,
		Stdout: f,
	})
	closeErr := f.Close()

	if runErr != nil {
		_ = os.Remove(tmp)
		return nil, runErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("flush %s: %w", tmp, closeErr)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("promote %s: %w", tmp, err)
	}
	return []string{target}, nil
}

// decompress inflates the artifact's gzip files to the uncompressed
// target format, keeping the sources.
func (p *Pipeline) decompress(ctx context.Context, job Job, target Format) ([]string, error) {
	sources := job.Artifact.Files
	if len(sources) == 0 {
		return nil, fmt.Errorf("no compressed sources for %s", job.Run)
	}

	tool, baseArgs, err := p.decompressTool()
	if err != nil {
		return nil, err
	}

	var outputs []string
	for _, src := range sources {
		if !strings.HasSuffix(src, ".gz") {
			continue
		}
		out := strings.TrimSuffix(src, ".gz")
		if err := p.runToFile(ctx, toolrun.Spec{Name: tool, Args: append(baseArgs, src), Dir: job.Dir}, out); err != nil {
			return outputs, err
		}
		outputs = append(outputs, out)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no .gz sources to decompress for %s", job.Run)
	}
	return outputs, nil
}

// fastaFromFastq derives one FASTA per FASTQ mate file.
func (p *Pipeline) fastaFromFastq(ctx context.Context, job Job) ([]string, error) {
	sources := workspace.ExistingOutputs(job.Dir, job.Run, FormatFastq.Ext())
	if len(sources) == 0 {
		return nil, fmt.Errorf("no fastq intermediate for %s", job.Run)
	}

	var outputs []string
	for _, src := range sources {
		out := strings.TrimSuffix(src, "."+FormatFastq.Ext()) + "." + FormatFasta.Ext()
		spec := toolrun.Spec{Name: toolSeqtk, Args: []string{"seq", "-A", src}, Dir: job.Dir}
		if err := p.runToFile(ctx, spec, out); err != nil {
			return outputs, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// gzipFiles compresses every file of the base format, keeping sources.
func (p *Pipeline) gzipFiles(ctx context.Context, job Job, base Format) ([]string, error) {
	sources := workspace.ExistingOutputs(job.Dir, job.Run, base.Ext())
	if len(sources) == 0 {
		return nil, fmt.Errorf("no %s files to compress for %s", base, job.Run)
	}

	tool, baseArgs, err := p.compressTool(job.threads())
	if err != nil {
		return nil, err
	}

	var outputs []string
	for _, src := range sources {
		out := src + ".gz"
		if err := p.runToFile(ctx, toolrun.Spec{Name: tool, Args: append(baseArgs, src), Dir: job.Dir}, out); err != nil {
			return outputs, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// runToFile executes spec with stdout captured into out via a temp file
// promoted on success.
func (p *Pipeline) runToFile(ctx context.Context, spec toolrun.Spec, out string) error {
	tmp := accession.TempPath(out)
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	spec.Stdout = f

	_, runErr := p.runner.Run(ctx, spec)
	closeErr := f.Close()

	if runErr != nil {
		_ = os.Remove(tmp)
		return runErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("flush %s: %w", tmp, closeErr)
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote %s: %w", tmp, err)
	}
	return nil
}

// compressTool prefers pigz for multi-threaded compression, falling
// back to gzip. Both write to stdout with -c so temp-file promotion
// stays uniform.
func (p *Pipeline) compressTool(threads int) (string, []string, error) {
	if _, err := p.runner.LookPath(toolPigz); err == nil {
		return toolPigz, []string{"-p", strconv.Itoa(threads), "-c"}, nil
	}
	if _, err := p.runner.LookPath(toolGzip); err == nil {
		return toolGzip, []string{"-c"}, nil
	}
	return "", nil, fmt.Errorf("%w: neither %s nor %s available", toolrun.ErrToolNotFound, toolPigz, toolGzip)
}

func (p *Pipeline) decompressTool() (string, []string, error) {
	if _, err := p.runner.LookPath(toolPigz); err == nil {
		return toolPigz, []string{"-d", "-c"}, nil
	}
	if _, err := p.runner.LookPath(toolGzip); err == nil {
		return toolGzip, []string{"-d", "-c"}, nil
	}
	return "", nil, fmt.Errorf("%w: neither %s nor %s available", toolrun.ErrToolNotFound, toolPigz, toolGzip)
}

// removeFresh deletes partial outputs a failed step may have left at
// final paths. Only called when the step started with no existing
// outputs, so anything found now is the failed attempt's debris.
func (p *Pipeline) removeFresh(job Job, f Format) {
	for _, cand := range accession.OutputCandidates(job.Dir, job.Run, f.Ext()) {
		_ = os.Remove(cand)
	}
}

// removeEphemeral drops intermediates the caller never asked for, but
// only ones this invocation created. Skipped steps found their outputs
// on disk already; those belong to the user.
func (p *Pipeline) removeEphemeral(steps []Step, results []StepResult) {
	for i, step := range steps {
		if !step.Ephemeral || i >= len(results) || results[i].Skipped {
			continue
		}
		for _, path := range results[i].Outputs {
			_ = os.Remove(path)
		}
	}
}

// collectOutputs gathers every on-disk path currently satisfying the
// job's requested formats, merged with pre-satisfied paths.
func (p *Pipeline) collectOutputs(job Job, satisfied []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(paths []string) {
		for _, path := range paths {
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
		}
	}

	add(satisfied)
	for _, f := range job.Formats {
		add(workspace.ExistingOutputs(job.Dir, job.Run, f.Ext()))
	}
	sort.Strings(out)
	return out
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/seqport/sracatch/internal/config"
	"github.com/seqport/sracatch/internal/observability"
	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/convert"
	"github.com/seqport/sracatch/pkg/manifest"
	"github.com/seqport/sracatch/pkg/metadata"
	"github.com/seqport/sracatch/pkg/report"
	"github.com/seqport/sracatch/pkg/toolrun"
	"github.com/seqport/sracatch/pkg/workspace"
)

var extractCmd = &cobra.Command{
	Use:   "extract [RUN...|PATH.sra...]",
	Short: "Extract already-downloaded SRA containers into the requested formats",
	Long: `Extract local SRA containers into analysis-ready formats without
touching the network.

Inputs are run accessions, resolved to containers in the output
directory, or explicit paths to .sra files. Container files must be
named after their run accession, since every output path derives from
it.

Examples:
  sracatch extract SRR1574565
  sracatch extract downloads/SRR1574565.sra -f fastq.gz,fasta.gz
  sracatch extract --run-list runs.txt -O reads/ -t 8
  sracatch extract SRR1574565.sra -f fasta --stdout | seqtk seq -`,
	RunE: runExtract,
}

var (
	extractRunList  string
	extractFormats  []string
	extractOutdir   string
	extractThreads  int
	extractForce    bool
	extractUnsorted bool
	extractStdout   bool
	extractReport   string
	extractQuiet    bool
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&extractRunList, "run-list", "", "File of run accessions, one per line (# comments allowed)")
	extractCmd.Flags().StringSliceVarP(&extractFormats, "format", "f", nil, "Output formats: fastq, fastq.gz, fasta, fasta.gz, sra")
	extractCmd.Flags().StringVarP(&extractOutdir, "outdir", "O", "", "Output directory (and where accessions look for containers)")
	extractCmd.Flags().IntVarP(&extractThreads, "threads", "t", 0, "Extraction threads per run")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "Re-convert even when outputs exist")
	extractCmd.Flags().BoolVar(&extractUnsorted, "unsorted", false, "Single-pass arbitrary-order extraction")
	extractCmd.Flags().BoolVar(&extractStdout, "stdout", false, "Stream the single requested format to standard output")
	extractCmd.Flags().StringVar(&extractReport, "report", "", "JSONL report destination: a path or 'stdout'")
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "Suppress progress output")
}

// extractInput is one unit of work: the run plus its container, when
// the caller handed us a path directly. An empty Container means the
// container is looked up in the output directory at execution time.
type extractInput struct {
	Run       accession.Run
	Container string
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.GetConfig()

	formats, err := extractFormatSet(cmd.Flags(), cfg)
	if err != nil {
		observability.CLILogger.Error("Invalid format set", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid format set", err)
	}

	if extractStdout {
		if len(formats) != 1 {
			err := fmt.Errorf("--stdout streams exactly one format, got %s", formats)
			observability.CLILogger.Error("Invalid stdout request", zap.Error(err))
			return exitError(foundry.ExitInvalidArgument, "Invalid stdout request", err)
		}
		if formats.Contains(convert.FormatSRA) {
			err := errors.New("--stdout cannot stream the sra container itself")
			observability.CLILogger.Error("Invalid stdout request", zap.Error(err))
			return exitError(foundry.ExitInvalidArgument, "Invalid stdout request", err)
		}
		if extractReport == "stdout" {
			err := errors.New("--stdout and --report stdout cannot share one stream")
			observability.CLILogger.Error("Conflicting output destinations", zap.Error(err))
			return exitError(foundry.ExitInvalidArgument, "Conflicting output destinations", err)
		}
	}

	outdir := extractOutdir
	if outdir == "" && cfg != nil {
		outdir = cfg.Output.Dir
	}
	if outdir == "" {
		outdir = manifest.DefaultDir
	}
	threads := extractThreads
	if threads == 0 && cfg != nil {
		threads = cfg.Extract.Threads
	}

	inputs, err := resolveExtractInputs(args, extractRunList)
	if err != nil {
		observability.CLILogger.Error("Invalid extraction inputs", zap.Error(err))
		if errors.Is(err, os.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Container file not found", err)
		}
		return exitError(foundry.ExitInvalidArgument, "Invalid extraction inputs", err)
	}

	if err := workspace.EnsureDir(outdir); err != nil {
		observability.CLILogger.Error("Cannot create output directory", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Cannot create output directory", err)
	}

	writer, cleanup, err := extractReportWriter(uuid.New().String())
	if err != nil {
		observability.CLILogger.Error("Failed to create report writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create report writer", err)
	}
	defer cleanup()

	pipeline := convert.NewPipeline(toolrun.NewExecRunner())

	observability.CLILogger.Info("Starting extraction",
		zap.Int("inputs", len(inputs)),
		zap.String("formats", formats.String()),
		zap.String("outdir", outdir))

	var complete, missing, failed int
	start := time.Now()
	for _, in := range inputs {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Extraction cancelled")
			return exitError(foundry.ExitSignalInt, "Extraction cancelled", ctx.Err())
		}

		container := in.Container
		if container == "" {
			path, ok := workspace.ExistingContainer(outdir, in.Run)
			if !ok {
				missing++
				err := fmt.Errorf("no container for %s in %s", in.Run, outdir)
				observability.CLILogger.Error("Container missing", zap.String("run", in.Run.String()), zap.Error(err))
				writeExtractRecord(ctx, writer, in.Run, nil, err, 0)
				continue
			}
			container = path
		}

		job := convert.Job{
			Run:      in.Run,
			Artifact: &backend.Artifact{Kind: backend.KindRawContainer, Files: []string{container}},
			Formats:  formats,
			Dir:      outdir,
			Threads:  threads,
			Force:    extractForce,
			Unsorted: extractUnsorted,
		}

		runStart := time.Now()
		var outputs []string
		var runErr error
		if extractStdout {
			runErr = pipeline.Stream(ctx, job, os.Stdout)
		} else {
			outputs, _, runErr = pipeline.Extract(ctx, job)
		}
		elapsed := time.Since(runStart)

		if runErr != nil {
			if ctx.Err() != nil {
				observability.CLILogger.Warn("Extraction cancelled", zap.String("run", in.Run.String()))
				return exitError(foundry.ExitSignalInt, "Extraction cancelled", runErr)
			}
			failed++
			observability.CLILogger.Error("Extraction failed",
				zap.String("run", in.Run.String()),
				zap.Error(runErr))
			writeExtractRecord(ctx, writer, in.Run, nil, runErr, elapsed)
			continue
		}

		complete++
		if !extractQuiet && !extractStdout {
			observability.CLILogger.Info("Extracted run",
				zap.String("run", in.Run.String()),
				zap.Int("outputs", len(outputs)),
				zap.Duration("elapsed", elapsed))
		}
		writeExtractRecord(ctx, writer, in.Run, outputs, nil, elapsed)
	}

	if writer != nil {
		_ = writer.WriteSummary(ctx, &report.SummaryRecord{
			RunsTotal:          len(inputs),
			RunsComplete:       complete,
			ExtractionFailures: failed + missing,
			Duration:           time.Since(start),
			DurationHuman:      time.Since(start).Round(time.Second).String(),
		})
	}

	observability.CLILogger.Info("Extraction completed",
		zap.Int("complete", complete),
		zap.Int("failed", failed),
		zap.Int("missing", missing))

	switch {
	case failed > 0:
		return exitError(foundry.ExitFileWriteError, "Some extractions failed",
			fmt.Errorf("%d of %d inputs failed", failed+missing, len(inputs)))
	case missing > 0:
		return exitError(foundry.ExitFileNotFound, "Some containers are missing",
			fmt.Errorf("%d of %d inputs have no local container", missing, len(inputs)))
	}
	return nil
}

// extractFormatSet resolves the effective formats: the flag if set,
// otherwise the configured default.
func extractFormatSet(flags *pflag.FlagSet, cfg *config.Config) (convert.FormatSet, error) {
	names := extractFormats
	if !flags.Changed("format") {
		if cfg != nil && len(cfg.Extract.Formats) > 0 {
			names = cfg.Extract.Formats
		} else {
			names = manifest.DefaultFormats()
		}
	}
	return convert.ParseFormatSet(names)
}

// resolveExtractInputs classifies each argument as a container path or
// a run accession and folds in the run-list file. Paths must exist and
// be named after their run; accessions are deduplicated, paths are not
// (two paths never collide on output naming unless they name the same
// run, which is the caller's mistake to make).
func resolveExtractInputs(args []string, runList string) ([]extractInput, error) {
	var inputs []extractInput
	seen := make(map[accession.Run]bool)

	addRun := func(run accession.Run) {
		if !seen[run] {
			seen[run] = true
			inputs = append(inputs, extractInput{Run: run})
		}
	}

	for _, arg := range args {
		if looksLikeContainerPath(arg) {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, fmt.Errorf("container %s: %w", arg, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("container %s is a directory", arg)
			}
			run, err := runFromContainerPath(arg)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, extractInput{Run: run, Container: arg})
			continue
		}

		run, err := accession.ParseRun(arg)
		if err != nil {
			return nil, err
		}
		addRun(run)
	}

	if runList != "" {
		runs, err := metadata.ReadRunList(runList)
		if err != nil {
			return nil, err
		}
		for _, run := range runs {
			addRun(run)
		}
	}

	if len(inputs) == 0 {
		return nil, errors.New("no inputs: pass run accessions, .sra paths, or --run-list")
	}
	return inputs, nil
}

// looksLikeContainerPath distinguishes a filesystem argument from an
// accession one.
func looksLikeContainerPath(arg string) bool {
	return strings.HasSuffix(arg, ".sra") || strings.ContainsRune(arg, os.PathSeparator)
}

// runFromContainerPath derives the run accession from a container
// filename.
func runFromContainerPath(path string) (accession.Run, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".sra")
	run, err := accession.ParseRun(base)
	if err != nil {
		return "", fmt.Errorf("container %s is not named after a run accession: %w", path, err)
	}
	return run, nil
}

// extractReportWriter creates the report writer for extract, or nil
// when reporting is off.
func extractReportWriter(jobID string) (report.Writer, func(), error) {
	if extractReport == "" {
		return nil, func() {}, nil
	}
	if extractReport == "stdout" {
		w := report.NewJSONLWriter(os.Stdout, jobID)
		return w, func() { _ = w.Close() }, nil
	}
	f, err := os.Create(extractReport)
	if err != nil {
		return nil, nil, fmt.Errorf("create report file %s: %w", extractReport, err)
	}
	w := report.NewJSONLWriter(f, jobID)
	return w, func() {
		_ = w.Close()
		_ = f.Close()
	}, nil
}

// writeExtractRecord emits a per-run outcome record when reporting is
// on.
func writeExtractRecord(ctx context.Context, w report.Writer, run accession.Run, outputs []string, runErr error, elapsed time.Duration) {
	if w == nil {
		return
	}
	rec := &report.RunRecord{
		Run:      run,
		State:    report.StateComplete,
		Outputs:  outputs,
		Duration: elapsed,
	}
	if runErr != nil {
		rec.State = report.StateExtractionFailed
		rec.Error = runErr.Error()
		rec.ErrorCode = report.Classify(runErr)
	}
	_ = w.WriteRun(ctx, rec)
}

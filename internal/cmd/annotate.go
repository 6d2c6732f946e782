package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqport/sracatch/internal/config"
	"github.com/seqport/sracatch/internal/observability"
	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
	"github.com/seqport/sracatch/pkg/metadata"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [RUN...]",
	Short: "Fetch archive metadata for runs without downloading them",
	Long: `Fetch annotation fields for runs or whole projects from the archive
portals and render them as a table, delimited text, JSON, or a SQLite
database.

Examples:
  sracatch annotate SRR1574565
  sracatch annotate SRR1574565 SRR1574564 --output-format tsv
  sracatch annotate --bioproject PRJNA621514 --all-fields -o meta.tsv --output-format tsv
  sracatch annotate --run-list runs.txt --output-format sqlite -o meta.db
  sracatch annotate SRR1574565 --fields run_accession,library_strategy,base_count`,
	RunE: runAnnotate,
}

var (
	annotateBioproject   string
	annotateRunList      string
	annotateOutputFormat string
	annotateOutput       string
	annotateFields       []string
	annotateAllFields    bool
)

func init() {
	rootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringVar(&annotateBioproject, "bioproject", "", "Annotate every run of this BioProject or study accession")
	annotateCmd.Flags().StringVar(&annotateRunList, "run-list", "", "File of run accessions, one per line (# comments allowed)")
	annotateCmd.Flags().StringVar(&annotateOutputFormat, "output-format", "table", "Output format: table, tsv, csv, json, sqlite")
	annotateCmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "Write to this file instead of standard output")
	annotateCmd.Flags().StringSliceVar(&annotateFields, "fields", nil, "Annotation columns to fetch (run_accession is always included)")
	annotateCmd.Flags().BoolVar(&annotateAllFields, "all-fields", false, "Fetch the extended column set")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := metadata.ParseOutputFormat(annotateOutputFormat)
	if err != nil {
		observability.CLILogger.Error("Invalid output format", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid output format", err)
	}
	if err := metadata.ValidateOutput(format, annotateOutput); err != nil {
		observability.CLILogger.Error("Invalid output destination", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid output destination", err)
	}

	accs, err := annotateAccessions(args)
	if err != nil {
		observability.CLILogger.Error("Invalid accession selection", zap.Error(err))
		if errors.Is(err, os.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Run list not found", err)
		}
		return exitError(foundry.ExitInvalidArgument, "Invalid accession selection", err)
	}

	annotator := metadata.NewAnnotator(newENAClient(config.GetConfig()))
	table, err := annotator.Fetch(ctx, accs, metadata.FieldSelection{
		Fields: annotateFields,
		All:    annotateAllFields,
	})
	if err != nil {
		observability.CLILogger.Error("Failed to fetch annotations", zap.Error(err))
		if ena.IsNotFound(err) {
			return exitError(foundry.ExitInvalidArgument, "Accession not found in the archive", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to fetch annotations", err)
	}

	observability.CLILogger.Debug("Fetched annotations",
		zap.Int("rows", len(table.Rows)),
		zap.Int("fields", len(table.Fields)))

	if format == metadata.FormatSQLite {
		if err := metadata.WriteSQLite(ctx, annotateOutput, table); err != nil {
			observability.CLILogger.Error("Failed to write annotation database", zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Failed to write annotation database", err)
		}
		observability.CLILogger.Info("Wrote annotation database",
			zap.String("path", annotateOutput),
			zap.Int("rows", len(table.Rows)))
		return nil
	}

	out := os.Stdout
	if annotateOutput != "" {
		f, err := os.Create(annotateOutput)
		if err != nil {
			observability.CLILogger.Error("Cannot create output file", zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Cannot create output file", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := metadata.Render(out, format, table); err != nil {
		observability.CLILogger.Error("Failed to render annotations", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to render annotations", err)
	}
	return nil
}

// annotateAccessions gathers the accessions to query: positional runs
// or projects, the run-list file, and the bioproject flag. Projects
// stay whole since one portal query returns all their runs' rows.
func annotateAccessions(args []string) ([]string, error) {
	var accs []string
	seen := make(map[string]bool)
	add := func(acc string) {
		if !seen[acc] {
			seen[acc] = true
			accs = append(accs, acc)
		}
	}

	for _, arg := range args {
		if run, err := accession.ParseRun(arg); err == nil {
			add(run.String())
			continue
		}
		if project, err := accession.ParseProject(arg); err == nil {
			add(project.String())
			continue
		}
		return nil, fmt.Errorf("not a run or project accession: %q", arg)
	}

	if annotateRunList != "" {
		runs, err := metadata.ReadRunList(annotateRunList)
		if err != nil {
			return nil, err
		}
		for _, run := range runs {
			add(run.String())
		}
	}

	if annotateBioproject != "" {
		project, err := accession.ParseProject(annotateBioproject)
		if err != nil {
			return nil, err
		}
		add(project.String())
	}

	if len(accs) == 0 {
		return nil, metadata.ErrNoRuns
	}
	return accs, nil
}

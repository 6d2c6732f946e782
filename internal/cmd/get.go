package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/seqport/sracatch/internal/config"
	"github.com/seqport/sracatch/internal/observability"
	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/batch"
	"github.com/seqport/sracatch/pkg/convert"
	"github.com/seqport/sracatch/pkg/ena"
	"github.com/seqport/sracatch/pkg/fetch"
	"github.com/seqport/sracatch/pkg/jobs"
	"github.com/seqport/sracatch/pkg/ledger"
	"github.com/seqport/sracatch/pkg/manifest"
	"github.com/seqport/sracatch/pkg/metadata"
	"github.com/seqport/sracatch/pkg/report"
	"github.com/seqport/sracatch/pkg/toolrun"
	"github.com/seqport/sracatch/pkg/workspace"
)

var getCmd = &cobra.Command{
	Use:   "get [RUN...]",
	Short: "Download runs and extract them into the requested formats",
	Long: `Download sequencing runs and extract them into analysis-ready formats.

Each run walks the download method chain in order until one method
delivers, then the artifact is converted into every requested format.
Runs that fail never abort their siblings; the process exit code
reports whether any run ended in a failure state.

Examples:
  sracatch get SRR1574565
  sracatch get SRR1574565 SRR1574564 -f fastq.gz,fasta.gz -O reads/
  sracatch get --bioproject PRJNA621514 --batch-concurrency 4
  sracatch get --run-list runs.txt -m prefetch,aws-http --unsorted
  sracatch get SRR1574565 --stdout -f fasta | head
  sracatch get --job job.yaml --detach`,
	RunE: runGet,
}

var (
	getBioproject   string
	getRunList      string
	getMethods      []string
	getFormats      []string
	getOutdir       string
	getThreads      int
	getConcurrency  int
	getForce        bool
	getUnsorted     bool
	getStdout       bool
	getAllowPaid    bool
	getAllowPaidAWS bool
	getAllowPaidGCP bool
	getGCPProject   string
	getAscpKey      string
	getAscpArgs     string
	getReport       string
	getLedger       string
	getResume       bool
	getJobPath      string
	getDryRun       bool
	getDetach       bool
	getQuiet        bool
	getManagedID    string
)

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVar(&getBioproject, "bioproject", "", "Fetch every run of this BioProject or study accession")
	getCmd.Flags().StringVar(&getRunList, "run-list", "", "File of run accessions, one per line (# comments allowed)")
	getCmd.Flags().StringSliceVarP(&getMethods, "methods", "m", nil, "Ordered download fallback chain")
	getCmd.Flags().StringSliceVarP(&getFormats, "format", "f", nil, "Output formats: fastq, fastq.gz, fasta, fasta.gz, sra")
	getCmd.Flags().StringVarP(&getOutdir, "outdir", "O", "", "Output directory")
	getCmd.Flags().IntVarP(&getThreads, "threads", "t", 0, "Per-run conversion and transfer threads")
	getCmd.Flags().IntVar(&getConcurrency, "batch-concurrency", 0, "Runs processed in parallel")
	getCmd.Flags().BoolVar(&getForce, "force", false, "Re-download and re-convert existing outputs")
	getCmd.Flags().BoolVar(&getUnsorted, "unsorted", false, "Single-pass arbitrary-order extraction")
	getCmd.Flags().BoolVar(&getStdout, "stdout", false, "Stream the single requested format to standard output")
	getCmd.Flags().BoolVar(&getAllowPaid, "allow-paid", false, "Permit methods that may bill the caller (aws-cp, gcp-cp)")
	getCmd.Flags().BoolVar(&getAllowPaidAWS, "allow-paid-aws", false, "Permit requester-pays on aws-cp only")
	getCmd.Flags().BoolVar(&getAllowPaidGCP, "allow-paid-gcp", false, "Permit requester-pays on gcp-cp only")
	getCmd.Flags().StringVar(&getGCPProject, "gcp-project", "", "Billing project for gcp-cp")
	getCmd.Flags().StringVar(&getAscpKey, "ascp-key", "", "Aspera private key file")
	getCmd.Flags().StringVar(&getAscpArgs, "ascp-args", "", "Extra arguments appended to every ascp invocation")
	getCmd.Flags().StringVar(&getReport, "report", "", "JSONL report destination: a path or 'stdout'")
	getCmd.Flags().StringVar(&getLedger, "ledger", "", "Run ledger path, or 'off' (default: <outdir>/.sracatch/ledger.db)")
	getCmd.Flags().BoolVar(&getResume, "resume", false, "Skip runs the ledger marks complete for the same formats")
	getCmd.Flags().StringVar(&getJobPath, "job", "", "Job manifest (YAML or JSON)")
	getCmd.Flags().BoolVar(&getDryRun, "dry-run", false, "Validate inputs and show the plan without executing")
	getCmd.Flags().BoolVar(&getDetach, "detach", false, "Run in the background as a managed job")
	getCmd.Flags().BoolVarP(&getQuiet, "quiet", "q", false, "Suppress progress output")

	getCmd.Flags().StringVar(&getManagedID, strings.TrimPrefix(jobs.ManagedIDFlag, "--"), "", "")
	_ = getCmd.Flags().MarkHidden(strings.TrimPrefix(jobs.ManagedIDFlag, "--"))
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := buildGetManifest(cmd.Flags(), args)
	if err != nil {
		observability.CLILogger.Error("Invalid job specification", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid job specification", err)
	}

	methods, err := m.Methods()
	if err != nil {
		observability.CLILogger.Error("Invalid method chain", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid method chain", err)
	}
	formats, err := m.Formats()
	if err != nil {
		observability.CLILogger.Error("Invalid format set", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid format set", err)
	}

	if err := fetch.ValidateChain(methods, m.Extract.Unsorted); err != nil {
		observability.CLILogger.Error("Incompatible method chain", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Incompatible method chain", err)
	}

	paymentAllowed, err := resolvePaymentConsent(methods, m.Download.AllowPaid, getAllowPaidAWS, getAllowPaidGCP)
	if err != nil {
		observability.CLILogger.Error("Conflicting payment flags", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Conflicting payment flags", err)
	}

	if getStdout && m.Output.Report == "stdout" {
		err := errors.New("--stdout and --report stdout cannot share one stream")
		observability.CLILogger.Error("Conflicting output destinations", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Conflicting output destinations", err)
	}
	if m.Batch.Resume && m.Output.Ledger == "off" {
		err := errors.New("--resume needs the run ledger, which is off")
		observability.CLILogger.Error("Conflicting ledger flags", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Conflicting ledger flags", err)
	}

	client := newENAClient(config.GetConfig())

	resolver := metadata.NewResolver(client)
	runs, err := resolver.Resolve(ctx, metadata.Source{
		Runs:    m.Runs,
		RunList: m.RunList,
		Project: m.Bioproject,
	})
	if err != nil {
		observability.CLILogger.Error("Failed to resolve run selection", zap.Error(err))
		return resolveExitError(err)
	}

	observability.CLILogger.Debug("Resolved run selection",
		zap.Int("runs", len(runs)),
		zap.String("methods", methodNames(methods)),
		zap.String("formats", formats.String()))

	if getDryRun {
		return showGetPlan(m, methods, formats, runs, paymentAllowed)
	}

	if getDetach && getManagedID == "" {
		return startDetached(m, runs, methods, formats)
	}

	return executeGet(ctx, m, runs, methods, formats, paymentAllowed, client)
}

// buildGetManifest assembles the effective job: the --job manifest (or
// an empty one), config-file values beneath it, flags on top, then
// defaults for whatever is still unset.
func buildGetManifest(flags *pflag.FlagSet, args []string) (*manifest.Manifest, error) {
	var m *manifest.Manifest
	if getJobPath != "" {
		loaded, err := manifest.Load(getJobPath)
		if err != nil {
			return nil, err
		}
		m = loaded
	} else {
		m = &manifest.Manifest{Version: manifest.DefaultVersion}
	}

	applyConfigDefaults(m, config.GetConfig())
	applyGetFlags(m, flags, args)
	m.ApplyDefaults()

	if err := manifest.Validate(m); err != nil {
		return nil, err
	}
	if len(m.Runs) == 0 && m.RunList == "" && m.Bioproject == "" {
		return nil, errors.New("no runs selected: pass accessions, --run-list, --bioproject, or a --job manifest")
	}
	return m, nil
}

// applyConfigDefaults fills manifest fields the manifest left empty
// from the loaded configuration. Explicit manifest values win.
func applyConfigDefaults(m *manifest.Manifest, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if len(m.Download.Methods) == 0 {
		m.Download.Methods = cfg.Download.Methods
	}
	if !m.Download.AllowPaid {
		m.Download.AllowPaid = cfg.Download.AllowPaid
	}
	if m.Download.AscpKey == "" {
		m.Download.AscpKey = cfg.Download.AscpKey
	}
	if len(m.Download.AscpArgs) == 0 {
		m.Download.AscpArgs = cfg.Download.AscpArgs
	}
	if m.Download.GCPProject == "" {
		m.Download.GCPProject = cfg.Download.GCPProject
	}
	if m.Download.AWSProfile == "" {
		m.Download.AWSProfile = cfg.Download.AWSProfile
	}
	if len(m.Extract.Formats) == 0 {
		m.Extract.Formats = cfg.Extract.Formats
	}
	if m.Extract.Threads == 0 {
		m.Extract.Threads = cfg.Extract.Threads
	}
	if m.Output.Dir == "" {
		m.Output.Dir = cfg.Output.Dir
	}
	if m.Output.Report == "" {
		m.Output.Report = cfg.Output.Report
	}
	if m.Output.Ledger == "" {
		m.Output.Ledger = cfg.Output.Ledger
	}
	if m.Batch.Concurrency == 0 {
		m.Batch.Concurrency = cfg.Batch.Concurrency
	}
}

// applyGetFlags overlays explicitly set flags onto the manifest.
// Changed() distinguishes "flag left at default" from "flag set to the
// default value", so a manifest value survives unless the operator
// actually typed the flag.
func applyGetFlags(m *manifest.Manifest, flags *pflag.FlagSet, args []string) {
	if len(args) > 0 {
		m.Runs = args
	}
	if flags.Changed("run-list") {
		m.RunList = getRunList
	}
	if flags.Changed("bioproject") {
		m.Bioproject = getBioproject
	}
	if flags.Changed("methods") {
		m.Download.Methods = getMethods
	}
	if flags.Changed("allow-paid") {
		m.Download.AllowPaid = getAllowPaid
	}
	if flags.Changed("ascp-key") {
		m.Download.AscpKey = getAscpKey
	}
	if flags.Changed("ascp-args") {
		m.Download.AscpArgs = strings.Fields(getAscpArgs)
	}
	if flags.Changed("gcp-project") {
		m.Download.GCPProject = getGCPProject
	}
	if flags.Changed("format") {
		m.Extract.Formats = getFormats
	}
	if flags.Changed("threads") {
		m.Extract.Threads = getThreads
	}
	if flags.Changed("unsorted") {
		m.Extract.Unsorted = getUnsorted
	}
	if flags.Changed("outdir") {
		m.Output.Dir = getOutdir
	}
	if flags.Changed("force") {
		m.Output.Force = getForce
	}
	if flags.Changed("report") {
		m.Output.Report = getReport
	}
	if flags.Changed("ledger") {
		m.Output.Ledger = getLedger
	}
	if flags.Changed("batch-concurrency") {
		m.Batch.Concurrency = getConcurrency
	}
	if flags.Changed("resume") {
		m.Batch.Resume = getResume
	}
}

// resolvePaymentConsent collapses the allow flags into the chain-wide
// consent the fetcher carries. Split consent across a chain holding
// both paid providers cannot be expressed downstream and is rejected
// rather than silently widened.
func resolvePaymentConsent(methods []backend.Method, allowPaid, allowAWS, allowGCP bool) (bool, error) {
	if allowPaid || (allowAWS && allowGCP) {
		return true, nil
	}
	if !allowAWS && !allowGCP {
		return false, nil
	}

	hasAWS := methodsContain(methods, backend.MethodAWSCP)
	hasGCP := methodsContain(methods, backend.MethodGCPCP)
	if hasAWS && hasGCP {
		return false, errors.New("the chain has both aws-cp and gcp-cp; a single-provider allow flag cannot cover it (use --allow-paid)")
	}
	if (allowAWS && hasAWS) || (allowGCP && hasGCP) {
		return true, nil
	}
	// Consent for a provider the chain never uses unlocks nothing.
	return false, nil
}

// newENAClient builds the archive query client from configuration.
func newENAClient(cfg *config.Config) *ena.Client {
	ecfg := ena.Config{
		UserAgent: "sracatch/" + versionInfo.Version,
	}
	if cfg != nil {
		ecfg.PortalBase = cfg.ENA.PortalBase
		ecfg.SDLBase = cfg.ENA.SDLBase
		ecfg.EutilsBase = cfg.ENA.EutilsBase
		ecfg.RequestsPerSecond = cfg.ENA.RequestsPerSecond
		if cfg.ENA.Timeout > 0 {
			ecfg.HTTPClient = &http.Client{Timeout: cfg.ENA.Timeout}
		}
	}
	return ena.New(ecfg)
}

// resolveExitError classifies a resolution failure: bad input is the
// caller's problem, an unreachable archive is not.
func resolveExitError(err error) error {
	switch {
	case errors.Is(err, metadata.ErrNoRuns),
		errors.Is(err, accession.ErrInvalidRun),
		errors.Is(err, accession.ErrInvalidProject):
		return exitError(foundry.ExitInvalidArgument, "Invalid run selection", err)
	case errors.Is(err, os.ErrNotExist):
		return exitError(foundry.ExitFileNotFound, "Run list not found", err)
	}
	return exitError(foundry.ExitExternalServiceUnavailable, "Failed to resolve run selection", err)
}

// showGetPlan displays what would be fetched without executing.
func showGetPlan(m *manifest.Manifest, methods []backend.Method, formats convert.FormatSet, runs []accession.Run, paymentAllowed bool) error {
	fmt.Println("=== Fetch Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Runs:        %d\n", len(runs))
	for i, run := range runs {
		if i == 10 {
			fmt.Printf("  ... and %d more\n", len(runs)-i)
			break
		}
		fmt.Printf("  - %s\n", run)
	}
	fmt.Println()
	fmt.Println("Method chain:")
	for i, method := range methods {
		fmt.Printf("  %d. %s\n", i+1, method)
	}
	fmt.Println()
	fmt.Printf("Formats:     %s\n", formats)
	fmt.Printf("Output dir:  %s\n", m.Output.Dir)
	fmt.Printf("Threads:     %d\n", m.Extract.Threads)
	fmt.Printf("Concurrency: %d\n", m.Batch.Concurrency)
	if m.Extract.Unsorted {
		fmt.Println("Unsorted:    true")
	}
	if getStdout {
		fmt.Println("Stdout:      true")
	}
	if m.Output.Force {
		fmt.Println("Force:       true")
	}
	if paymentAllowed {
		fmt.Println("Paid access: allowed")
	}
	if m.Output.Report != "" {
		fmt.Printf("Report:      %s\n", m.Output.Report)
	}
	fmt.Printf("Ledger:      %s\n", ledgerPlanLine(m))
	if m.Batch.Resume {
		fmt.Println("Resume:      true")
	}
	fmt.Println()
	fmt.Println("Plan validated successfully. Remove --dry-run to execute.")
	return nil
}

func ledgerPlanLine(m *manifest.Manifest) string {
	if getStdout || m.Output.Ledger == "off" {
		return "off"
	}
	if m.Output.Ledger != "" {
		return m.Output.Ledger
	}
	return ledger.DefaultPath(m.Output.Dir)
}

// startDetached re-spawns this invocation in the background as a
// managed job and prints its handle.
func startDetached(m *manifest.Manifest, runs []accession.Run, methods []backend.Method, formats convert.FormatSet) error {
	root, err := jobsRootDir()
	if err != nil {
		return err
	}
	fp, err := m.Fingerprint()
	if err != nil {
		return fmt.Errorf("fingerprint job: %w", err)
	}

	manifestPath := getJobPath
	if manifestPath != "" {
		if abs, err := filepath.Abs(manifestPath); err == nil {
			manifestPath = abs
		}
	}

	executor := jobs.NewExecutor(root)
	rec, err := executor.Start(detachArgs(os.Args[1:]), jobs.StartOptions{
		Name:        detachName(m, runs),
		Fingerprint: fp,
		Spec: &jobs.SpecSummary{
			RunCount: len(runs),
			Methods:  methodNames(methods),
			Formats:  formats.String(),
			OutDir:   m.Output.Dir,
		},
		ManifestPath: manifestPath,
		Dedupe:       true,
	})
	if err != nil {
		observability.CLILogger.Error("Failed to start detached job", zap.Error(err))
		return err
	}

	observability.CLILogger.Info("Started detached job",
		zap.String("job_id", rec.JobID),
		zap.Int("pid", rec.PID))
	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", rec.JobID)
	_, _ = fmt.Fprintf(os.Stdout, "pid=%d\n", rec.PID)
	_, _ = fmt.Fprintf(os.Stdout, "logs=%s\n", rec.StderrPath)
	return nil
}

// detachArgs strips the detach flag from the argv so the child runs in
// the foreground of its own process.
func detachArgs(argv []string) []string {
	out := make([]string, 0, len(argv))
	for _, a := range argv {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// detachName derives an operator-facing label for the job listing.
func detachName(m *manifest.Manifest, runs []accession.Run) string {
	switch {
	case getJobPath != "":
		return filepath.Base(getJobPath)
	case m.Bioproject != "":
		return m.Bioproject
	case len(runs) == 1:
		return runs[0].String()
	default:
		return fmt.Sprintf("%d runs", len(runs))
	}
}

// executeGet wires the pipeline together and runs the batch.
func executeGet(ctx context.Context, m *manifest.Manifest, runs []accession.Run, methods []backend.Method, formats convert.FormatSet, paymentAllowed bool, client *ena.Client) error {
	jobID := uuid.New().String()

	var managed *managedJob
	if getManagedID != "" {
		managed = attachManagedJob(getManagedID)
		if managed != nil {
			jobID = getManagedID
			stopHeartbeat := startManagedHeartbeat(ctx, managed.store, managed.rec)
			defer stopHeartbeat()
		}
	}

	if err := workspace.EnsureDir(m.Output.Dir); err != nil {
		observability.CLILogger.Error("Cannot create output directory", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Cannot create output directory", err)
	}

	writer, cleanup, err := createReportWriter(m, jobID)
	if err != nil {
		observability.CLILogger.Error("Failed to create report writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create report writer", err)
	}
	defer cleanup()

	store, err := openLedger(ctx, m)
	if err != nil {
		observability.CLILogger.Error("Failed to open run ledger", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to open run ledger", err)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	runner := toolrun.NewExecRunner()
	registry, err := backend.NewDefaultRegistry(client, runner, nil)
	if err != nil {
		observability.CLILogger.Error("Failed to build method registry", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Failed to build method registry", err)
	}

	fetcher := fetch.New(registry, writer)
	pipeline := convert.NewPipeline(runner)
	controller := batch.New(fetcher, pipeline, writer, store)

	opts := batch.Options{
		Methods:        methods,
		Formats:        formats,
		Dir:            m.Output.Dir,
		Threads:        m.Extract.Threads,
		Concurrency:    m.Batch.Concurrency,
		Force:          m.Output.Force,
		Unsorted:       m.Extract.Unsorted,
		Quiet:          getQuiet,
		Stdout:         getStdout,
		Resume:         m.Batch.Resume,
		PaymentAllowed: paymentAllowed,
		AscpKey:        m.Download.AscpKey,
		AscpArgs:       m.Download.AscpArgs,
		GCPProject:     m.Download.GCPProject,
		AWSProfile:     m.Download.AWSProfile,
	}
	if progressEnabled() {
		opts.Progress = newProgressLogger().report
	}

	observability.CLILogger.Info("Starting fetch",
		zap.String("job_id", jobID),
		zap.Int("runs", len(runs)),
		zap.String("methods", methodNames(methods)),
		zap.String("formats", formats.String()),
		zap.String("outdir", m.Output.Dir))

	result, runErr := controller.Run(ctx, runs, opts)
	if managed != nil {
		managed.finish(result, runErr)
	}
	if runErr != nil {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Fetch cancelled", zap.String("job_id", jobID))
			return exitError(foundry.ExitSignalInt, "Fetch cancelled", runErr)
		}
		observability.CLILogger.Error("Fetch failed", zap.String("job_id", jobID), zap.Error(runErr))
		return exitError(foundry.ExitInvalidArgument, "Fetch failed", runErr)
	}

	observability.CLILogger.Info("Fetch completed",
		zap.String("job_id", jobID),
		zap.String("summary", result.Summary.String()))

	if result.Failed() {
		return exitError(foundry.ExitExternalServiceUnavailable, "Some runs failed", errors.New(result.Summary.String()))
	}
	return nil
}

// createReportWriter creates the JSONL report writer, or nil when
// reporting is off. The second return releases the writer.
func createReportWriter(m *manifest.Manifest, jobID string) (report.Writer, func(), error) {
	dest := m.Output.Report
	if dest == "" {
		return nil, func() {}, nil
	}
	if dest == "stdout" {
		w := report.NewJSONLWriter(os.Stdout, jobID)
		return w, func() { _ = w.Close() }, nil
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, nil, fmt.Errorf("create report file %s: %w", dest, err)
	}
	w := report.NewJSONLWriter(f, jobID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

// openLedger opens the run ledger, or returns nil when it is off.
// Stdout mode never records: streamed bytes are not resumable
// artifacts.
func openLedger(ctx context.Context, m *manifest.Manifest) (*ledger.Store, error) {
	if getStdout || m.Output.Ledger == "off" {
		return nil, nil
	}
	path := m.Output.Ledger
	if path == "" {
		path = ledger.DefaultPath(m.Output.Dir)
	}
	return ledger.Open(ctx, path)
}

// progressEnabled reports whether transfer progress should be logged.
// Structured logs are for machines; byte counters are console noise
// there.
func progressEnabled() bool {
	if getQuiet {
		return false
	}
	if cfg := config.GetConfig(); cfg != nil && cfg.Logging.Profile == "structured" {
		return false
	}
	return true
}

// progressLogger logs transfer progress at most once a second per run.
type progressLogger struct {
	mu   sync.Mutex
	last map[accession.Run]time.Time
}

func newProgressLogger() *progressLogger {
	return &progressLogger{last: make(map[accession.Run]time.Time)}
}

func (p *progressLogger) report(run accession.Run, written, total int64) {
	p.mu.Lock()
	now := time.Now()
	final := total > 0 && written >= total
	if !final && now.Sub(p.last[run]) < time.Second {
		p.mu.Unlock()
		return
	}
	p.last[run] = now
	p.mu.Unlock()

	if total > 0 {
		observability.CLILogger.Info(fmt.Sprintf("%s: %s / %s", run, humanize.Bytes(uint64(written)), humanize.Bytes(uint64(total))))
	} else {
		observability.CLILogger.Info(fmt.Sprintf("%s: %s", run, humanize.Bytes(uint64(written))))
	}
}

func methodNames(methods []backend.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return strings.Join(names, ",")
}

// managedJob is the registry handle a detached child maintains.
type managedJob struct {
	store *jobs.Store
	rec   *jobs.Record
}

// attachManagedJob loads the record the parent wrote for this child.
// A missing record degrades to an unmanaged run rather than failing
// the fetch.
func attachManagedJob(jobID string) *managedJob {
	root, err := jobsRootDir()
	if err != nil {
		observability.CLILogger.Warn("Cannot locate jobs directory", zap.Error(err))
		return nil
	}
	store := jobs.NewStore(root)
	rec, err := store.Get(jobID)
	if err != nil {
		observability.CLILogger.Warn("Managed job record not found",
			zap.String("job_id", jobID),
			zap.Error(err))
		return nil
	}
	return &managedJob{store: store, rec: rec}
}

// finish writes the job's terminal state.
func (mj *managedJob) finish(result *batch.Result, runErr error) {
	now := time.Now().UTC()
	state := jobs.StateSuccess
	switch {
	case runErr != nil:
		state = jobs.StateFailed
	case result != nil && result.Failed():
		state = jobs.StateFailed
		if result.Summary.RunsComplete > 0 {
			state = jobs.StatePartial
		}
	}
	mj.rec.State = state
	mj.rec.EndedAt = &now
	mj.rec.LastHeartbeat = &now
	_ = mj.store.Write(mj.rec)
}

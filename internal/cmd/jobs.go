package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/cobra"

	"github.com/seqport/sracatch/pkg/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage detached fetch jobs",
	Long: `Manage job records for detached fetches started with 'get --detach'.

This command group is designed to be agent-friendly:

- stable job ids
- predictable on-disk locations
- optional JSON output for machine parsing`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List detached fetch jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job_id>",
	Short: "Stop a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStop,
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs <job_id>",
	Short: "Show logs for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsLogs,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect old job records",
	RunE:  runJobsGC,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsStopCmd)
	jobsCmd.AddCommand(jobsLogsCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStopCmd.Flags().String("signal", "term", "Signal to send: term or kill")
	jobsLogsCmd.Flags().String("stream", "stderr", "Log stream: stdout, stderr, or both")
	jobsLogsCmd.Flags().Int("tail", 200, "Show last N lines (0 = no tail)")
	jobsLogsCmd.Flags().Bool("follow", false, "Follow log output")
	jobsGCCmd.Flags().String("max-age", "168h", "Delete completed jobs older than this duration")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many jobs would be deleted")
	jobsGCCmd.Flags().Bool("json", false, "Output as JSON")
}

func jobsRootDir() (string, error) {
	identity := GetAppIdentity()
	if identity == nil || strings.TrimSpace(identity.ConfigName) == "" {
		return "", fmt.Errorf("app identity is not available to derive the jobs directory")
	}
	dataDir := gfconfig.GetAppDataDir(identity.ConfigName)
	return filepath.Join(dataDir, "jobs", "get"), nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	root, err := jobsRootDir()
	if err != nil {
		return err
	}
	store := jobs.NewStore(root)

	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tNAME\tSTATE\tSTARTED\tENDED\tRUNS\tOUTDIR")
	for _, j := range records {
		started := formatOptionalTime(j.StartedAt)
		ended := formatOptionalTime(j.EndedAt)
		name := j.Name
		if name == "" {
			name = "-"
		}
		runCount := "-"
		outDir := "-"
		if j.Spec != nil {
			runCount = fmt.Sprintf("%d", j.Spec.RunCount)
			if j.Spec.OutDir != "" {
				outDir = j.Spec.OutDir
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortJobID(j.JobID),
			name,
			j.State,
			started,
			ended,
			runCount,
			outDir,
		)
	}

	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	root, err := jobsRootDir()
	if err != nil {
		return err
	}
	store := jobs.NewStore(root)

	resolvedID, err := resolveJobID(store, jobID)
	if err != nil {
		return err
	}

	rec, err := store.Get(resolvedID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", rec.JobID)
	if rec.Name != "" {
		_, _ = fmt.Fprintf(os.Stdout, "name=%s\n", rec.Name)
	}
	_, _ = fmt.Fprintf(os.Stdout, "state=%s\n", rec.State)
	if rec.ManifestPath != "" {
		_, _ = fmt.Fprintf(os.Stdout, "manifest_path=%s\n", rec.ManifestPath)
	}
	if rec.Spec != nil {
		_, _ = fmt.Fprintf(os.Stdout, "runs=%d\n", rec.Spec.RunCount)
		if rec.Spec.Methods != "" {
			_, _ = fmt.Fprintf(os.Stdout, "methods=%s\n", rec.Spec.Methods)
		}
		if rec.Spec.Formats != "" {
			_, _ = fmt.Fprintf(os.Stdout, "formats=%s\n", rec.Spec.Formats)
		}
		if rec.Spec.OutDir != "" {
			_, _ = fmt.Fprintf(os.Stdout, "outdir=%s\n", rec.Spec.OutDir)
		}
	}
	if rec.StartedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}

	return nil
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func resolveJobID(store *jobs.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	// Exact match first.
	if store != nil {
		if _, err := store.Get(input); err == nil {
			return input, nil
		}
	}

	// Prefix match (allows table-friendly short IDs).
	records, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range records {
		if strings.HasPrefix(j.JobID, input) {
			matches = append(matches, j.JobID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("job not found: %s", input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("job id prefix is ambiguous (%d matches); use full job_id or --json", len(matches))
	}
	return matches[0], nil
}

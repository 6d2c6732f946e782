package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seqport/sracatch/pkg/backend"
)

var methodsOutputFormat string

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List download methods and their capabilities",
	Long: `List every download method with the artifact it produces, whether that
artifact supports unsorted extraction and stdout streaming, and its
payment class.

The table is the authoritative compatibility source: the same records
drive eager validation of --methods/--unsorted/--stdout combinations.

Examples:
  sracatch methods
  sracatch methods --output-format json`,
	RunE: runMethods,
}

func init() {
	rootCmd.AddCommand(methodsCmd)
	methodsCmd.Flags().StringVar(&methodsOutputFormat, "output-format", "table", "Output format: table or json")
}

// methodRecord is the JSON shape for one method's capabilities.
type methodRecord struct {
	Method   string `json:"method"`
	Artifact string `json:"artifact"`
	Unsorted bool   `json:"unsorted"`
	Stdout   bool   `json:"stdout"`
	Payment  string `json:"payment"`
	Default  bool   `json:"default"`
}

func runMethods(cmd *cobra.Command, args []string) error {
	records := methodRecords()

	switch methodsOutputFormat {
	case "table":
		return printMethodsTable(records)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	default:
		return fmt.Errorf("invalid --output-format %q (expected table or json)", methodsOutputFormat)
	}
}

func methodRecords() []methodRecord {
	defaults := make(map[backend.Method]bool)
	for _, m := range backend.DefaultMethods() {
		defaults[m] = true
	}

	records := make([]methodRecord, 0, len(backend.AllMethods()))
	for _, m := range backend.AllMethods() {
		cap, ok := backend.Capabilities(m)
		if !ok {
			continue
		}
		records = append(records, methodRecord{
			Method:   string(m),
			Artifact: string(cap.Artifact),
			Unsorted: cap.Unsorted,
			Stdout:   cap.Stdout,
			Payment:  string(cap.Payment),
			Default:  defaults[m],
		})
	}
	return records
}

func printMethodsTable(records []methodRecord) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "METHOD\tARTIFACT\tUNSORTED\tSTDOUT\tPAYMENT\tDEFAULT")
	for _, r := range records {
		def := "-"
		if r.Default {
			def = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Method,
			r.Artifact,
			yesNo(r.Unsorted),
			yesNo(r.Stdout),
			r.Payment,
			def,
		)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

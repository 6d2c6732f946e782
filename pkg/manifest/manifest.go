// Package manifest provides loading and validation of sracatch job
// manifests.
//
// A job manifest is a YAML or JSON file describing a batch fetch job:
// which runs to acquire, the download method chain, the output format
// set, and batch behavior. Manifests are validated against a JSON
// Schema before execution; the schema enforces strict typing and
// disallows unknown properties. Command-line flags override manifest
// values after loading.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	runs:
//	  - SRR1574565
//	  - SRR1574564
//	download:
//	  methods: [ena-ascp, prefetch]
//	extract:
//	  formats: [fastq.gz]
//	  threads: 8
//	output:
//	  dir: ./reads
//	batch:
//	  concurrency: 2
//	  resume: true
package manifest

import (
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/convert"
)

// Manifest represents a validated job manifest.
//
// Run selection comes from Runs, RunList, and Bioproject, combined the
// same way the command line combines them. Every other section is
// optional with defaults applied during loading.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.seqport.dev/sracatch/v1.0.0/job-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Runs lists run accessions to fetch.
	Runs []string `json:"runs,omitempty" yaml:"runs,omitempty"`

	// RunList is a path to a file of run accessions, one per line.
	RunList string `json:"run_list,omitempty" yaml:"run_list,omitempty"`

	// Bioproject is a project accession expanded to its runs.
	Bioproject string `json:"bioproject,omitempty" yaml:"bioproject,omitempty"`

	// Download configures the method chain and its credentials.
	Download DownloadConfig `json:"download,omitempty" yaml:"download,omitempty"`

	// Extract configures output formats and conversion behavior.
	Extract ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Output configures destination paths and reporting.
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`

	// Batch configures across-run scheduling.
	Batch BatchConfig `json:"batch,omitempty" yaml:"batch,omitempty"`
}

// DownloadConfig configures the download fallback chain.
type DownloadConfig struct {
	// Methods is the ordered fallback chain. Order is semantic: the
	// first method that delivers wins.
	// Default: ena-ascp, ena-ftp, prefetch, aws-http.
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`

	// AllowPaid permits requester-pays mirrors. Default: false.
	AllowPaid bool `json:"allow_paid,omitempty" yaml:"allow_paid,omitempty"`

	// AscpKey is the path to the Aspera private key. Optional; the
	// well-known install locations are searched when empty.
	AscpKey string `json:"ascp_key,omitempty" yaml:"ascp_key,omitempty"`

	// AscpArgs is extra arguments appended to every ascp invocation.
	AscpArgs []string `json:"ascp_args,omitempty" yaml:"ascp_args,omitempty"`

	// GCPProject is the billing project for gcp-cp. Required by that
	// method.
	GCPProject string `json:"gcp_project,omitempty" yaml:"gcp_project,omitempty"`

	// AWSProfile is the AWS credential profile for aws-cp. Optional.
	AWSProfile string `json:"aws_profile,omitempty" yaml:"aws_profile,omitempty"`
}

// ExtractConfig configures format conversion.
type ExtractConfig struct {
	// Formats is the requested output format set.
	// Default: fastq.gz.
	Formats []string `json:"formats,omitempty" yaml:"formats,omitempty"`

	// Threads bounds per-run conversion parallelism.
	// Range: 1-256. Default: 8.
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`

	// Unsorted selects single-pass arbitrary-order extraction.
	// Default: false.
	Unsorted bool `json:"unsorted,omitempty" yaml:"unsorted,omitempty"`
}

// OutputConfig configures destinations.
type OutputConfig struct {
	// Dir is the output directory. Default: ".".
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Force re-downloads and re-converts existing outputs.
	// Default: false.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`

	// Report is the JSONL report destination: a path or "stdout".
	// Empty disables the report.
	Report string `json:"report,omitempty" yaml:"report,omitempty"`

	// Ledger is the run ledger path, or "off" to disable. Empty means
	// the default location under the output directory.
	Ledger string `json:"ledger,omitempty" yaml:"ledger,omitempty"`
}

// BatchConfig configures across-run scheduling.
type BatchConfig struct {
	// Concurrency is the number of runs processed in parallel.
	// Range: 1-32. Default: 1.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Resume skips runs the ledger marks complete. Default: false.
	Resume bool `json:"resume,omitempty" yaml:"resume,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultThreads is the default per-run conversion parallelism.
	DefaultThreads = 8

	// DefaultConcurrency is the default across-run parallelism.
	// Sequential: archive mirrors rate-limit aggressively.
	DefaultConcurrency = 1

	// DefaultDir is the default output directory.
	DefaultDir = "."
)

// DefaultFormats returns the default output format set.
func DefaultFormats() []string {
	return []string{string(convert.FormatFastqGz)}
}

// DefaultMethodNames returns the default download chain as strings.
func DefaultMethodNames() []string {
	methods := backend.DefaultMethods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return names
}

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest so
// callers never reason about zero values.
func (m *Manifest) ApplyDefaults() {
	if len(m.Download.Methods) == 0 {
		m.Download.Methods = DefaultMethodNames()
	}
	if len(m.Extract.Formats) == 0 {
		m.Extract.Formats = DefaultFormats()
	}
	if m.Extract.Threads == 0 {
		m.Extract.Threads = DefaultThreads
	}
	if m.Output.Dir == "" {
		m.Output.Dir = DefaultDir
	}
	if m.Batch.Concurrency == 0 {
		m.Batch.Concurrency = DefaultConcurrency
	}
}

// Methods returns the parsed download chain in manifest order.
func (m *Manifest) Methods() ([]backend.Method, error) {
	return backend.ParseMethodList(m.Download.Methods)
}

// Formats returns the parsed output format set.
func (m *Manifest) Formats() (convert.FormatSet, error) {
	return convert.ParseFormatSet(m.Extract.Formats)
}

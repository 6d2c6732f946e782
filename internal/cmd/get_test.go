package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/internal/config"
	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/backend"
	"github.com/seqport/sracatch/pkg/convert"
	"github.com/seqport/sracatch/pkg/manifest"
)

func TestResolvePaymentConsent(t *testing.T) {
	free := []backend.Method{backend.MethodENAAscp, backend.MethodENAFTP}
	withAWS := []backend.Method{backend.MethodENAFTP, backend.MethodAWSCP}
	withGCP := []backend.Method{backend.MethodGCPCP}
	withBoth := []backend.Method{backend.MethodAWSCP, backend.MethodGCPCP}

	tests := []struct {
		name      string
		methods   []backend.Method
		allowPaid bool
		allowAWS  bool
		allowGCP  bool
		want      bool
		wantErr   bool
	}{
		{
			name:    "no consent",
			methods: withAWS,
			want:    false,
		},
		{
			name:      "blanket consent",
			methods:   withBoth,
			allowPaid: true,
			want:      true,
		},
		{
			name:     "both provider flags equal blanket consent",
			methods:  withBoth,
			allowAWS: true,
			allowGCP: true,
			want:     true,
		},
		{
			name:     "aws consent for aws chain",
			methods:  withAWS,
			allowAWS: true,
			want:     true,
		},
		{
			name:     "gcp consent for gcp chain",
			methods:  withGCP,
			allowGCP: true,
			want:     true,
		},
		{
			name:     "single-provider consent rejected for mixed chain",
			methods:  withBoth,
			allowAWS: true,
			wantErr:  true,
		},
		{
			name:     "consent for absent provider unlocks nothing",
			methods:  free,
			allowAWS: true,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePaymentConsent(tt.methods, tt.allowPaid, tt.allowAWS, tt.allowGCP)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetachArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "strips bare flag",
			in:   []string{"get", "SRR1574565", "--detach"},
			want: []string{"get", "SRR1574565"},
		},
		{
			name: "strips assigned flag",
			in:   []string{"get", "--detach=true", "SRR1574565"},
			want: []string{"get", "SRR1574565"},
		},
		{
			name: "keeps everything else",
			in:   []string{"get", "--bioproject", "PRJNA621514", "-f", "fastq.gz"},
			want: []string{"get", "--bioproject", "PRJNA621514", "-f", "fastq.gz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detachArgs(tt.in))
		})
	}
}

func TestDetachName(t *testing.T) {
	origJobPath := getJobPath
	defer func() { getJobPath = origJobPath }()

	t.Run("manifest basename wins", func(t *testing.T) {
		getJobPath = filepath.Join("jobs", "cohort.yaml")
		m := &manifest.Manifest{Bioproject: "PRJNA621514"}
		assert.Equal(t, "cohort.yaml", detachName(m, nil))
	})

	t.Run("bioproject", func(t *testing.T) {
		getJobPath = ""
		m := &manifest.Manifest{Bioproject: "PRJNA621514"}
		assert.Equal(t, "PRJNA621514", detachName(m, []accession.Run{"SRR1", "SRR2"}))
	})

	t.Run("single run", func(t *testing.T) {
		getJobPath = ""
		assert.Equal(t, "SRR1574565", detachName(&manifest.Manifest{}, []accession.Run{"SRR1574565"}))
	})

	t.Run("run count", func(t *testing.T) {
		getJobPath = ""
		assert.Equal(t, "3 runs", detachName(&manifest.Manifest{}, []accession.Run{"SRR1", "SRR2", "SRR3"}))
	})
}

func TestApplyConfigDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.Download.Methods = []string{"prefetch"}
	cfg.Download.AscpKey = "/opt/aspera/key"
	cfg.Extract.Formats = []string{"fasta.gz"}
	cfg.Extract.Threads = 6
	cfg.Output.Dir = "cfg-out"
	cfg.Batch.Concurrency = 9

	t.Run("fills empty fields", func(t *testing.T) {
		m := &manifest.Manifest{Version: manifest.DefaultVersion}
		applyConfigDefaults(m, cfg)

		assert.Equal(t, []string{"prefetch"}, m.Download.Methods)
		assert.Equal(t, "/opt/aspera/key", m.Download.AscpKey)
		assert.Equal(t, []string{"fasta.gz"}, m.Extract.Formats)
		assert.Equal(t, 6, m.Extract.Threads)
		assert.Equal(t, "cfg-out", m.Output.Dir)
		assert.Equal(t, 9, m.Batch.Concurrency)
	})

	t.Run("manifest values win", func(t *testing.T) {
		m := &manifest.Manifest{Version: manifest.DefaultVersion}
		m.Download.Methods = []string{"ena-ftp"}
		m.Extract.Threads = 2
		m.Output.Dir = "job-out"
		applyConfigDefaults(m, cfg)

		assert.Equal(t, []string{"ena-ftp"}, m.Download.Methods)
		assert.Equal(t, 2, m.Extract.Threads)
		assert.Equal(t, "job-out", m.Output.Dir)
	})

	t.Run("nil config is a no-op", func(t *testing.T) {
		m := &manifest.Manifest{Version: manifest.DefaultVersion}
		applyConfigDefaults(m, nil)
		assert.Empty(t, m.Download.Methods)
	})
}

func TestBuildGetManifest(t *testing.T) {
	origJobPath := getJobPath
	defer func() { getJobPath = origJobPath }()
	getJobPath = ""

	// A fresh flag set means no flag reads as explicitly changed.
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)

	t.Run("positional runs with defaults", func(t *testing.T) {
		m, err := buildGetManifest(flags, []string{"SRR1574565", "SRR1574564"})
		require.NoError(t, err)

		assert.Equal(t, []string{"SRR1574565", "SRR1574564"}, m.Runs)
		assert.NotEmpty(t, m.Download.Methods)
		assert.NotEmpty(t, m.Extract.Formats)
		assert.NotEmpty(t, m.Output.Dir)
	})

	t.Run("no run source fails", func(t *testing.T) {
		_, err := buildGetManifest(flags, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no runs selected")
	})

	t.Run("manifest file is the base", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "job.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`version: "1.0"
runs:
  - SRR1574565
extract:
  formats: [fasta.gz]
  threads: 3
`), 0o644))

		getJobPath = path
		defer func() { getJobPath = "" }()

		m, err := buildGetManifest(flags, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"SRR1574565"}, m.Runs)
		assert.Equal(t, []string{"fasta.gz"}, m.Extract.Formats)
		assert.Equal(t, 3, m.Extract.Threads)
	})

	t.Run("positional runs replace manifest runs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "job.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`version: "1.0"
runs:
  - SRR1574565
`), 0o644))

		getJobPath = path
		defer func() { getJobPath = "" }()

		m, err := buildGetManifest(flags, []string{"SRR999"})
		require.NoError(t, err)
		assert.Equal(t, []string{"SRR999"}, m.Runs)
	})
}

func TestShowGetPlan(t *testing.T) {
	origStdout := getStdout
	defer func() { getStdout = origStdout }()
	getStdout = false

	m := &manifest.Manifest{Version: manifest.DefaultVersion}
	m.Output.Dir = "reads"
	m.Extract.Threads = 4
	m.Batch.Concurrency = 2
	m.Output.Report = "report.jsonl"

	methods := []backend.Method{backend.MethodENAAscp, backend.MethodENAFTP}
	formats := convert.FormatSet{convert.FormatFastqGz}
	runs := []accession.Run{"SRR1574565", "SRR1574564"}

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := showGetPlan(m, methods, formats, runs, false)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	output := buf.String()

	for _, want := range []string{
		"Fetch Plan (dry-run)",
		"Runs:        2",
		"SRR1574565",
		"1. ena-ascp",
		"2. ena-ftp",
		"Formats:     fastq.gz",
		"Output dir:  reads",
		"Threads:     4",
		"Concurrency: 2",
		"Report:      report.jsonl",
		"Plan validated successfully. Remove --dry-run to execute.",
	} {
		assert.Contains(t, output, want, "output should contain %q", want)
	}
}

func TestShowGetPlanTruncatesRunList(t *testing.T) {
	origStdout := getStdout
	defer func() { getStdout = origStdout }()
	getStdout = false

	var runs []accession.Run
	for i := 0; i < 15; i++ {
		runs = append(runs, accession.Run(fmt.Sprintf("SRR%d", 100+i)))
	}

	m := &manifest.Manifest{Version: manifest.DefaultVersion}
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := showGetPlan(m, []backend.Method{backend.MethodENAFTP}, convert.FormatSet{convert.FormatFastq}, runs, false)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	assert.Contains(t, buf.String(), "... and 5 more")
}

func TestCreateReportWriter(t *testing.T) {
	t.Run("off", func(t *testing.T) {
		m := &manifest.Manifest{}
		writer, cleanup, err := createReportWriter(m, "job-1")
		require.NoError(t, err)
		assert.Nil(t, writer)
		cleanup()
	})

	t.Run("stdout", func(t *testing.T) {
		m := &manifest.Manifest{}
		m.Output.Report = "stdout"
		writer, cleanup, err := createReportWriter(m, "job-1")
		require.NoError(t, err)
		require.NotNil(t, writer)
		cleanup()
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.jsonl")
		m := &manifest.Manifest{}
		m.Output.Report = path

		writer, cleanup, err := createReportWriter(m, "job-1")
		require.NoError(t, err)
		require.NotNil(t, writer)

		_, err = os.Stat(path)
		require.NoError(t, err)
		cleanup()
	})

	t.Run("invalid path", func(t *testing.T) {
		m := &manifest.Manifest{}
		m.Output.Report = "/nonexistent/deeply/nested/report.jsonl"
		_, _, err := createReportWriter(m, "job-1")
		require.Error(t, err)
	})
}

func TestLedgerPlanLine(t *testing.T) {
	origStdout := getStdout
	defer func() { getStdout = origStdout }()

	t.Run("stdout disables the ledger", func(t *testing.T) {
		getStdout = true
		m := &manifest.Manifest{}
		assert.Equal(t, "off", ledgerPlanLine(m))
	})

	t.Run("explicit off", func(t *testing.T) {
		getStdout = false
		m := &manifest.Manifest{}
		m.Output.Ledger = "off"
		assert.Equal(t, "off", ledgerPlanLine(m))
	})

	t.Run("explicit path", func(t *testing.T) {
		getStdout = false
		m := &manifest.Manifest{}
		m.Output.Ledger = "custom.db"
		assert.Equal(t, "custom.db", ledgerPlanLine(m))
	})

	t.Run("default path derives from outdir", func(t *testing.T) {
		getStdout = false
		m := &manifest.Manifest{}
		m.Output.Dir = "reads"
		assert.Contains(t, ledgerPlanLine(m), "reads")
	})
}

func TestMethodNames(t *testing.T) {
	assert.Equal(t, "ena-ascp,prefetch", methodNames([]backend.Method{backend.MethodENAAscp, backend.MethodPrefetch}))
	assert.Equal(t, "", methodNames(nil))
}

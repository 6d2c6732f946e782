package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/pkg/accession"
)

func writeContainerFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("sra-bytes"), 0o644))
}

func TestLooksLikeContainerPath(t *testing.T) {
	assert.True(t, looksLikeContainerPath("SRR1574565.sra"))
	assert.True(t, looksLikeContainerPath(filepath.Join("downloads", "SRR1574565.sra")))
	assert.True(t, looksLikeContainerPath(filepath.Join("some", "dir")))
	assert.False(t, looksLikeContainerPath("SRR1574565"))
}

func TestRunFromContainerPath(t *testing.T) {
	t.Run("accession-named container", func(t *testing.T) {
		run, err := runFromContainerPath(filepath.Join("downloads", "SRR1574565.sra"))
		require.NoError(t, err)
		assert.Equal(t, accession.Run("SRR1574565"), run)
	})

	t.Run("arbitrary name is rejected", func(t *testing.T) {
		_, err := runFromContainerPath("sample-A.sra")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not named after a run accession")
	})
}

func TestResolveExtractInputs(t *testing.T) {
	dir := t.TempDir()
	container := filepath.Join(dir, "SRR1574565.sra")
	writeContainerFile(t, container)

	t.Run("mixed accessions and paths", func(t *testing.T) {
		inputs, err := resolveExtractInputs([]string{"SRR1574564", container}, "")
		require.NoError(t, err)
		require.Len(t, inputs, 2)

		assert.Equal(t, accession.Run("SRR1574564"), inputs[0].Run)
		assert.Empty(t, inputs[0].Container)

		assert.Equal(t, accession.Run("SRR1574565"), inputs[1].Run)
		assert.Equal(t, container, inputs[1].Container)
	})

	t.Run("accessions deduplicate", func(t *testing.T) {
		inputs, err := resolveExtractInputs([]string{"SRR1574564", "srr1574564"}, "")
		require.NoError(t, err)
		assert.Len(t, inputs, 1)
	})

	t.Run("missing path fails", func(t *testing.T) {
		_, err := resolveExtractInputs([]string{filepath.Join(dir, "missing.sra")}, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("directory path fails", func(t *testing.T) {
		sub := filepath.Join(dir, "nested")
		require.NoError(t, os.Mkdir(sub, 0o755))
		_, err := resolveExtractInputs([]string{sub}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})

	t.Run("invalid accession fails", func(t *testing.T) {
		_, err := resolveExtractInputs([]string{"NOTARUN"}, "")
		require.Error(t, err)
	})

	t.Run("run list folds in", func(t *testing.T) {
		listPath := filepath.Join(dir, "runs.txt")
		require.NoError(t, os.WriteFile(listPath, []byte("# cohort\nSRR1574564\nSRR1574563\n"), 0o644))

		inputs, err := resolveExtractInputs([]string{"SRR1574564"}, listPath)
		require.NoError(t, err)
		assert.Len(t, inputs, 2)
	})

	t.Run("no inputs fails", func(t *testing.T) {
		_, err := resolveExtractInputs(nil, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no inputs")
	})
}

func TestExtractReportWriter(t *testing.T) {
	origReport := extractReport
	defer func() { extractReport = origReport }()

	t.Run("off", func(t *testing.T) {
		extractReport = ""
		writer, cleanup, err := extractReportWriter("job-1")
		require.NoError(t, err)
		assert.Nil(t, writer)
		cleanup()
	})

	t.Run("stdout", func(t *testing.T) {
		extractReport = "stdout"
		writer, cleanup, err := extractReportWriter("job-1")
		require.NoError(t, err)
		require.NotNil(t, writer)
		cleanup()
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.jsonl")
		extractReport = path

		writer, cleanup, err := extractReportWriter("job-1")
		require.NoError(t, err)
		require.NotNil(t, writer)

		_, err = os.Stat(path)
		require.NoError(t, err)
		cleanup()
	})

	t.Run("invalid path", func(t *testing.T) {
		extractReport = "/nonexistent/deeply/nested/report.jsonl"
		_, _, err := extractReportWriter("job-1")
		require.Error(t, err)
	})
}

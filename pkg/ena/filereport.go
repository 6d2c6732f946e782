package ena

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/seqport/sracatch/pkg/accession"
)

// FileInfo describes one downloadable read file as reported by the ENA
// filereport endpoint.
type FileInfo struct {
	// URL is the https form of the reported location.
	URL string

	// FaspPath is the host:path form used for Aspera transfers.
	FaspPath string

	// MD5 is the hex digest ENA recorded for the file.
	MD5 string

	// Bytes is the reported size, zero when unreported.
	Bytes int64
}

// Name returns the file's base name.
func (f FileInfo) Name() string {
	idx := strings.LastIndex(f.URL, "/")
	if idx < 0 {
		return f.URL
	}
	return f.URL[idx+1:]
}

// DefaultAnnotationFields are the filereport columns fetched when the
// caller does not name specific fields.
var DefaultAnnotationFields = []string{
	"run_accession",
	"study_accession",
	"sample_accession",
	"experiment_accession",
	"scientific_name",
	"tax_id",
	"instrument_platform",
	"instrument_model",
	"library_strategy",
	"library_source",
	"library_selection",
	"library_layout",
	"read_count",
	"base_count",
	"first_public",
	"fastq_bytes",
}

// ExtendedAnnotationFields is the broader read_run column set for full
// exports.
var ExtendedAnnotationFields = []string{
	"run_accession",
	"study_accession",
	"secondary_study_accession",
	"sample_accession",
	"secondary_sample_accession",
	"experiment_accession",
	"submission_accession",
	"study_title",
	"experiment_title",
	"sample_title",
	"scientific_name",
	"tax_id",
	"instrument_platform",
	"instrument_model",
	"library_name",
	"library_strategy",
	"library_source",
	"library_selection",
	"library_layout",
	"nominal_length",
	"read_count",
	"base_count",
	"center_name",
	"broker_name",
	"first_public",
	"first_created",
	"last_updated",
	"study_alias",
	"experiment_alias",
	"sample_alias",
	"run_alias",
	"fastq_bytes",
	"fastq_md5",
	"fastq_ftp",
	"sra_bytes",
	"sra_md5",
	"sra_ftp",
}

// RunFastqs returns the FASTQ files ENA holds for a run, with MD5
// digests and sizes. Paired runs report two or three entries (mate
// files plus an optional orphan file).
func (c *Client) RunFastqs(ctx context.Context, run accession.Run) ([]FileInfo, error) {
	rows, err := c.filereport(ctx, run.String(), []string{"run_accession", "fastq_ftp", "fastq_md5", "fastq_bytes"})
	if err != nil {
		return nil, err
	}
	row := findRow(rows, run.String())
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, run)
	}

	files, err := splitFileColumns(row["fastq_ftp"], row["fastq_md5"], row["fastq_bytes"])
	if err != nil {
		return nil, fmt.Errorf("parse filereport for %s: %w", run, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s has no fastq files", ErrNoFiles, run)
	}
	return files, nil
}

// ProjectRuns expands a project or study accession into its run
// accessions via filereport.
func (c *Client) ProjectRuns(ctx context.Context, project accession.Project) ([]accession.Run, error) {
	rows, err := c.filereport(ctx, project.String(), []string{"run_accession"})
	if err != nil {
		return nil, err
	}

	runs := make([]accession.Run, 0, len(rows))
	for _, row := range rows {
		r, err := accession.ParseRun(row["run_accession"])
		if err != nil {
			continue
		}
		runs = append(runs, r)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s resolves to no runs", ErrNotFound, project)
	}
	return runs, nil
}

// Annotations fetches the named filereport fields for an accession (run
// or project). Rows come back as field→value maps in portal order.
func (c *Client) Annotations(ctx context.Context, acc string, fields []string) ([]map[string]string, error) {
	if len(fields) == 0 {
		fields = DefaultAnnotationFields
	}
	// run_accession anchors every row regardless of requested fields.
	if !containsField(fields, "run_accession") {
		fields = append([]string{"run_accession"}, fields...)
	}
	return c.filereport(ctx, acc, fields)
}

func (c *Client) filereport(ctx context.Context, acc string, fields []string) ([]map[string]string, error) {
	q := url.Values{}
	q.Set("accession", acc)
	q.Set("result", "read_run")
	q.Set("fields", strings.Join(fields, ","))
	q.Set("format", "json")
	q.Set("limit", "0")

	body, err := c.get(ctx, c.portalBase+"/filereport?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var rows []map[string]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode filereport response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, acc)
	}
	return rows, nil
}

func findRow(rows []map[string]string, run string) map[string]string {
	for _, row := range rows {
		if row["run_accession"] == run {
			return row
		}
	}
	return nil
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// splitFileColumns unpacks ENA's semicolon-joined parallel columns into
// per-file records. The ftp column carries scheme-less host/path values.
func splitFileColumns(ftpCol, md5Col, bytesCol string) ([]FileInfo, error) {
	if strings.TrimSpace(ftpCol) == "" {
		return nil, nil
	}
	urls := strings.Split(ftpCol, ";")
	md5s := strings.Split(md5Col, ";")
	sizes := strings.Split(bytesCol, ";")

	if len(md5s) != len(urls) {
		return nil, fmt.Errorf("md5 column has %d entries for %d files", len(md5s), len(urls))
	}

	files := make([]FileInfo, 0, len(urls))
	for i, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		info := FileInfo{
			URL:      "https://" + u,
			FaspPath: faspPath(u),
			MD5:      strings.TrimSpace(md5s[i]),
		}
		if i < len(sizes) {
			if n, err := strconv.ParseInt(strings.TrimSpace(sizes[i]), 10, 64); err == nil {
				info.Bytes = n
			}
		}
		files = append(files, info)
	}
	return files, nil
}

// faspPath rewrites a reported host/path into the era-fasp form ascp
// expects: era-fasp@fasp.sra.ebi.ac.uk:<path>.
func faspPath(hostPath string) string {
	idx := strings.Index(hostPath, "/")
	if idx < 0 {
		return ""
	}
	return "era-fasp@fasp.sra.ebi.ac.uk:" + hostPath[idx:]
}

package ena

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/seqport/sracatch/pkg/accession"
)

// eutilsBatch bounds ids per efetch request; larger batches risk URL
// length limits.
const eutilsBatch = 200

// esearchResult mirrors the eutils esearch XML payload.
type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDs     []string `xml:"IdList>Id"`
}

// ProjectRunsEutils expands a project into run accessions through NCBI
// eutils: esearch resolves the project to SRA record ids, efetch
// runinfo lists the runs. Slower than the ENA portal and under stricter
// service-side rate limits, so callers treat it as the fallback path.
func (c *Client) ProjectRunsEutils(ctx context.Context, project accession.Project) ([]accession.Run, error) {
	q := url.Values{}
	q.Set("db", "sra")
	q.Set("term", project.String())
	q.Set("retmax", "100000")

	body, err := c.get(ctx, c.eutilsBase+"/esearch.fcgi?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var res esearchResult
	if err := xml.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}
	if len(res.IDs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, project)
	}

	var runs []accession.Run
	seen := make(map[accession.Run]bool)
	for start := 0; start < len(res.IDs); start += eutilsBatch {
		end := start + eutilsBatch
		if end > len(res.IDs) {
			end = len(res.IDs)
		}
		batch, err := c.runinfoBatch(ctx, res.IDs[start:end])
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			if !seen[r] {
				seen[r] = true
				runs = append(runs, r)
			}
		}
	}

	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s resolves to no runs", ErrNotFound, project)
	}
	return runs, nil
}

func (c *Client) runinfoBatch(ctx context.Context, ids []string) ([]accession.Run, error) {
	q := url.Values{}
	q.Set("db", "sra")
	q.Set("id", strings.Join(ids, ","))
	q.Set("rettype", "runinfo")
	q.Set("retmode", "text")

	body, err := c.get(ctx, c.eutilsBase+"/efetch.fcgi?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return parseRuninfo(body)
}

// parseRuninfo extracts the Run column from efetch runinfo CSV. Rows
// with malformed accessions are skipped rather than failing the whole
// expansion; eutils interleaves submitter-supplied junk at times.
func parseRuninfo(b []byte) ([]accession.Run, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse runinfo: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	runCol := -1
	for i, name := range rows[0] {
		if name == "Run" {
			runCol = i
			break
		}
	}
	if runCol < 0 {
		return nil, fmt.Errorf("runinfo response has no Run column")
	}

	var runs []accession.Run
	for _, row := range rows[1:] {
		if runCol >= len(row) {
			continue
		}
		run, err := accession.ParseRun(row[runCol])
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

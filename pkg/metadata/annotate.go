package metadata

import (
	"context"
	"fmt"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/ena"
)

// Table holds annotation rows with a fixed field order. Rows keep the
// portal's order; duplicate run rows from overlapping sources are
// dropped on first-wins terms.
type Table struct {
	Fields []string
	Rows   []map[string]string
}

// FieldSelection names the annotation columns to fetch.
type FieldSelection struct {
	// Fields are explicit column names. Empty means the default set.
	Fields []string

	// All selects the extended column set. Ignored when Fields is set;
	// an explicit list is more specific than a breadth flag.
	All bool
}

func (s FieldSelection) effective() []string {
	switch {
	case len(s.Fields) > 0:
		fields := s.Fields
		if !contains(fields, "run_accession") {
			fields = append([]string{"run_accession"}, fields...)
		}
		return fields
	case s.All:
		return ena.ExtendedAnnotationFields
	default:
		return ena.DefaultAnnotationFields
	}
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// Annotator fetches annotation tables.
type Annotator struct {
	client *ena.Client
}

// NewAnnotator creates an annotator. A nil client gets the default one.
func NewAnnotator(client *ena.Client) *Annotator {
	if client == nil {
		client = ena.New(ena.Config{})
	}
	return &Annotator{client: client}
}

// Fetch gathers the selected fields for every accession. Each input may
// be a run or a project; a project query returns all its runs' rows in
// one portal call.
func (a *Annotator) Fetch(ctx context.Context, accs []string, sel FieldSelection) (*Table, error) {
	if len(accs) == 0 {
		return nil, ErrNoRuns
	}

	fields := sel.effective()
	table := &Table{Fields: fields}
	seen := make(map[string]bool)

	for _, acc := range accs {
		if !accession.IsRun(acc) && !accession.IsProject(acc) {
			return nil, fmt.Errorf("not a run or project accession: %q", acc)
		}
		rows, err := a.client.Annotations(ctx, acc, fields)
		if err != nil {
			return nil, fmt.Errorf("annotate %s: %w", acc, err)
		}
		for _, row := range rows {
			key := row["run_accession"]
			if key != "" && seen[key] {
				continue
			}
			seen[key] = true
			table.Rows = append(table.Rows, row)
		}
	}
	return table, nil
}

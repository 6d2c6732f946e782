package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqport/sracatch/pkg/ena"
)

func TestFieldSelectionEffective(t *testing.T) {
	assert.Equal(t, ena.DefaultAnnotationFields, FieldSelection{}.effective())
	assert.Equal(t, ena.ExtendedAnnotationFields, FieldSelection{All: true}.effective())

	got := FieldSelection{Fields: []string{"scientific_name", "read_count"}}.effective()
	assert.Equal(t, []string{"run_accession", "scientific_name", "read_count"}, got)

	// An explicit list that already anchors on run_accession stays as is.
	got = FieldSelection{Fields: []string{"run_accession", "read_count"}}.effective()
	assert.Equal(t, []string{"run_accession", "read_count"}, got)

	// An explicit list beats the breadth flag.
	got = FieldSelection{Fields: []string{"run_accession"}, All: true}.effective()
	assert.Equal(t, []string{"run_accession"}, got)
}

func TestAnnotatorFetch(t *testing.T) {
	client := newPortalClient(t, []map[string]string{
		{"run_accession": "SRR1", "scientific_name": "Escherichia coli"},
		{"run_accession": "SRR2", "scientific_name": "Salmonella enterica"},
	})
	a := NewAnnotator(client)

	table, err := a.Fetch(context.Background(), []string{"PRJNA100"}, FieldSelection{
		Fields: []string{"scientific_name"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"run_accession", "scientific_name"}, table.Fields)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Escherichia coli", table.Rows[0]["scientific_name"])
}

// Overlapping sources (a run also inside a queried project) produce one
// row per run, not duplicates.
func TestAnnotatorFetch_DedupesRuns(t *testing.T) {
	client := newPortalClient(t, []map[string]string{
		{"run_accession": "SRR1", "scientific_name": "Escherichia coli"},
	})
	a := NewAnnotator(client)

	table, err := a.Fetch(context.Background(), []string{"SRR1", "PRJNA100"}, FieldSelection{})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
}

func TestAnnotatorFetch_RejectsJunkAccession(t *testing.T) {
	a := NewAnnotator(nil)
	_, err := a.Fetch(context.Background(), []string{"not-an-accession"}, FieldSelection{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-accession")
}

func TestAnnotatorFetch_Empty(t *testing.T) {
	a := NewAnnotator(nil)
	_, err := a.Fetch(context.Background(), nil, FieldSelection{})
	assert.ErrorIs(t, err, ErrNoRuns)
}

package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/seqport/sracatch/pkg/ledger"
)

// WriteSQLite writes the table to a SQLite database at path, replacing
// any previous annotations table. Column names are portal field names,
// which are lowercase [a-z0-9_]; anything else is rejected rather than
// quoted into the DDL.
func WriteSQLite(ctx context.Context, path string, t *Table) error {
	if len(t.Fields) == 0 {
		return fmt.Errorf("no fields to write")
	}
	for _, f := range t.Fields {
		if !safeColumn(f) {
			return fmt.Errorf("unsafe column name %q", f)
		}
	}

	db, err := ledger.OpenDB(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS annotations`); err != nil {
		return fmt.Errorf("reset annotations table: %w", err)
	}

	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f + " TEXT"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE annotations (%s)", strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create annotations table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Fields)), ", ")
	insert := fmt.Sprintf("INSERT INTO annotations (%s) VALUES (%s)",
		strings.Join(t.Fields, ", "), placeholders)

	for _, row := range t.Rows {
		vals := make([]any, len(t.Fields))
		for i, f := range t.Fields {
			vals[i] = row[f]
		}
		if _, err := tx.ExecContext(ctx, insert, vals...); err != nil {
			return fmt.Errorf("insert annotation row: %w", err)
		}
	}
	return tx.Commit()
}

func safeColumn(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

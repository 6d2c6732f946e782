package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/seqport/sracatch/pkg/accession"
	"github.com/seqport/sracatch/pkg/report"
)

// DefaultFileName is the ledger database name inside the state dir.
const DefaultFileName = "ledger.db"

// SchemaVersion is the current ledger schema.
const SchemaVersion = 1

// DefaultPath returns the conventional ledger location under an output
// directory.
func DefaultPath(outdir string) string {
	return filepath.Join(outdir, accession.LedgerDirName, DefaultFileName)
}

// Entry is one run's recorded outcome for a specific format set. The
// (run, formats) pair is the identity: the same run fetched for a
// different format set is separate work.
type Entry struct {
	Run     accession.Run
	Formats string
	State   string
	Method  string
	Outputs []string
	Error   string
	Updated time.Time
}

// Store is the run ledger.
type Store struct {
	db *sql.DB
}

// Open opens the ledger at path, creating and migrating it if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		fmt.Sprintf(`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, %d)
			ON CONFLICT(id) DO NOTHING;`, SchemaVersion),

		`CREATE TABLE IF NOT EXISTS runs (
			run TEXT NOT NULL,
			formats TEXT NOT NULL,
			state TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			outputs TEXT NOT NULL DEFAULT '[]',
			error TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (run, formats)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply ledger schema: %w", err)
		}
	}
	return tx.Commit()
}

// Record upserts the entry. A zero Updated time is stamped now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Run == "" {
		return errors.New("ledger entry needs a run")
	}
	if e.State == "" {
		return errors.New("ledger entry needs a state")
	}
	if e.Updated.IsZero() {
		e.Updated = time.Now()
	}

	outputs, err := json.Marshal(e.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run, formats, state, method, outputs, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run, formats) DO UPDATE SET
			state = excluded.state,
			method = excluded.method,
			outputs = excluded.outputs,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		e.Run.String(), e.Formats, e.State, e.Method, string(outputs), e.Error,
		e.Updated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Run, err)
	}
	return nil
}

// Get returns the entry for (run, formats), if recorded.
func (s *Store) Get(ctx context.Context, run accession.Run, formats string) (*Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run, formats, state, method, outputs, error, updated_at
		FROM runs WHERE run = ? AND formats = ?`,
		run.String(), formats)

	var e Entry
	var runStr, outputs, updated string
	err := row.Scan(&runStr, &e.Formats, &e.State, &e.Method, &outputs, &e.Error, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", run, err)
	}

	e.Run = accession.Run(runStr)
	if err := json.Unmarshal([]byte(outputs), &e.Outputs); err != nil {
		return nil, false, fmt.Errorf("decode outputs for %s: %w", run, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		e.Updated = t
	}
	return &e, true, nil
}

// Completed returns the runs the ledger marks complete for the format
// set. This is the resume primitive: a batch prefilters its run list
// against it.
func (s *Store) Completed(ctx context.Context, formats string) (map[accession.Run]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run FROM runs WHERE formats = ? AND state = ?`,
		formats, report.StateComplete)
	if err != nil {
		return nil, fmt.Errorf("list completed runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	done := make(map[accession.Run]bool)
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, fmt.Errorf("scan completed run: %w", err)
		}
		done[accession.Run(run)] = true
	}
	return done, rows.Err()
}

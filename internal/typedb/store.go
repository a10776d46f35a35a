package typedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
)

// Store persists finished type databases and per-run import diagnostics to a
// DuckDB file.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// RunRecord summarizes one import run.
type RunRecord struct {
	ID        string
	Binary    string
	StartedAt time.Time
	Duration  time.Duration
	Visited   int
	Types     int
	Functions int
	Variables int
	Useless   int
	Skipped   int
	Patched   int
}

// SkipRecord identifies one node that was skipped and why.
type SkipRecord struct {
	Offset uint64
	Tag    string
	Reason string
}

// StoredEntry is the persisted shape of a type entry row.
type StoredEntry struct {
	Ordinal  uint32
	Name     string
	Kind     string
	Referent uint32
	Count    int64
}

// OpenStore creates the storage directory if needed, opens (or creates) the
// DuckDB database file <name>.duckdb inside it and initializes the schema.
func OpenStore(storagePath, name string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dbPath := filepath.Join(storagePath, name+".duckdb")

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer, batch workload.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:     db,
		path:   dbPath,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info().
		Str("path", dbPath).
		Msg("Type store opened")

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.logger.Info().
		Str("path", s.path).
		Msg("Type store closed")
	return nil
}

// Path returns the file path of the database.
func (s *Store) Path() string {
	return s.path
}

// SaveRun persists the run record, every type entry with its structural
// content, and the skip diagnostics in a single transaction.
func (s *Store) SaveRun(ctx context.Context, run RunRecord, entries []*Entry, skips []SkipRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO import_runs
		 (id, binary_path, started_at, duration_ms, visited, types, functions, variables, useless, skipped, patched)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Binary, run.StartedAt, run.Duration.Milliseconds(),
		run.Visited, run.Types, run.Functions, run.Variables, run.Useless, run.Skipped, run.Patched)
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}

	for _, e := range entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO type_entries
			 (run_id, ordinal, name, kind, referent, element_count, width, base, base_size)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, e.Ordinal, e.Name, e.Kind.String(), e.Referent, e.Count, e.Width,
			e.Primitive.Base.String(), e.Primitive.Size)
		if err != nil {
			return fmt.Errorf("failed to insert type entry %q: %w", e.Name, err)
		}

		for _, m := range e.Members {
			var inlineBase sql.NullString
			var inlineSize sql.NullInt64
			if m.Inline != nil {
				inlineBase = sql.NullString{String: m.Inline.Base.String(), Valid: true}
				inlineSize = sql.NullInt64{Int64: m.Inline.Size, Valid: true}
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO type_members
				 (run_id, ordinal, member_name, byte_offset, member_type, inline_base, inline_size)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				run.ID, e.Ordinal, m.Name, m.Offset, m.Type, inlineBase, inlineSize)
			if err != nil {
				return fmt.Errorf("failed to insert member %q of %q: %w", m.Name, e.Name, err)
			}
		}

		for _, c := range e.Enumerators {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO enum_constants (run_id, ordinal, const_name, const_value)
				 VALUES (?, ?, ?, ?)`,
				run.ID, e.Ordinal, c.Name, c.Value)
			if err != nil {
				return fmt.Errorf("failed to insert constant %q of %q: %w", c.Name, e.Name, err)
			}
		}
	}

	for _, skip := range skips {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO skipped_nodes (run_id, die_offset, tag, reason) VALUES (?, ?, ?, ?)`,
			run.ID, skip.Offset, skip.Tag, skip.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert skip record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int("entries", len(entries)).
		Int("skipped", len(skips)).
		Msg("Import run persisted")

	return nil
}

// EntriesForRun returns the persisted entry rows of a run in ordinal order.
func (s *Store) EntriesForRun(ctx context.Context, runID string) ([]StoredEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, name, kind, referent, element_count
		 FROM type_entries WHERE run_id = ? ORDER BY ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query type entries: %w", err)
	}
	defer rows.Close()

	var entries []StoredEntry
	for rows.Next() {
		var e StoredEntry
		if err := rows.Scan(&e.Ordinal, &e.Name, &e.Kind, &e.Referent, &e.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate type entries: %w", err)
	}
	return entries, nil
}

// initSchema creates all required tables and indexes.
// Uses CREATE TABLE IF NOT EXISTS for idempotency across runs.
func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ddl := range schemaDDL {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	return nil
}

// schemaDDL contains all DDL statements for the type store schema.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS import_runs (
		id TEXT PRIMARY KEY,
		binary_path TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		duration_ms BIGINT NOT NULL,
		visited INTEGER NOT NULL,
		types INTEGER NOT NULL,
		functions INTEGER NOT NULL,
		variables INTEGER NOT NULL,
		useless INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		patched INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS type_entries (
		run_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		referent INTEGER NOT NULL,
		element_count BIGINT NOT NULL,
		width BIGINT NOT NULL,
		base TEXT,
		base_size BIGINT,
		PRIMARY KEY (run_id, ordinal)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_type_entries_name ON type_entries(name)`,

	`CREATE TABLE IF NOT EXISTS type_members (
		run_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		member_name TEXT NOT NULL,
		byte_offset BIGINT NOT NULL,
		member_type INTEGER NOT NULL,
		inline_base TEXT,
		inline_size BIGINT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_type_members_ordinal ON type_members(run_id, ordinal)`,

	`CREATE TABLE IF NOT EXISTS enum_constants (
		run_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		const_name TEXT NOT NULL,
		const_value BIGINT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_enum_constants_ordinal ON enum_constants(run_id, ordinal)`,

	`CREATE TABLE IF NOT EXISTS skipped_nodes (
		run_id TEXT NOT NULL,
		die_offset BIGINT NOT NULL,
		tag TEXT NOT NULL,
		reason TEXT NOT NULL
	)`,
}

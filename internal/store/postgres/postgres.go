// Package postgres implements store.Backend on PostgreSQL through the pgx
// database/sql driver. The tables mirror the SQLite layout with an extra
// sequence column that preserves insertion order.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS def (
  seq BIGSERIAL,
  usr TEXT PRIMARY KEY,
  fully_qualified_name TEXT NOT NULL,
  kind TEXT NOT NULL DEFAULT '',
  class TEXT NOT NULL DEFAULT '',
  visibility TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS source (
  usr TEXT PRIMARY KEY REFERENCES def(usr),
  filename TEXT NOT NULL DEFAULT '',
  start_line INTEGER NOT NULL DEFAULT 0,
  end_line INTEGER NOT NULL DEFAULT 0,
  text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS call (
  seq BIGSERIAL,
  caller_usr TEXT NOT NULL,
  callee_usr TEXT NOT NULL,
  PRIMARY KEY (caller_usr, callee_usr)
);

CREATE TABLE IF NOT EXISTS summary (
  usr TEXT PRIMARY KEY,
  summary TEXT NOT NULL
);
`

// Store is a store.Backend backed by a PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

var _ store.Backend = (*Store)(nil)

// Open connects to dsn, verifies the connection and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectFunction = `SELECT d.usr, d.fully_qualified_name, d.kind, d.class, d.visibility,
  s.filename, s.start_line, s.end_line, s.text
FROM def d JOIN source s ON s.usr = d.usr`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFunction(row rowScanner) (model.FunctionRecord, error) {
	var f model.FunctionRecord
	err := row.Scan(&f.ID, &f.Name, &f.Kind, &f.Class, &f.Visibility,
		&f.File, &f.StartLine, &f.EndLine, &f.Source)
	return f, err
}

func (s *Store) Functions(ctx context.Context) ([]model.FunctionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectFunction+` ORDER BY d.seq`)
	if err != nil {
		return nil, fmt.Errorf("query functions: %w", err)
	}
	defer rows.Close()

	var out []model.FunctionRecord
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) Edges(ctx context.Context) ([]model.CallEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT caller_usr, callee_usr FROM call ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var out []model.CallEdge
	for rows.Next() {
		var e model.CallEdge
		if err := rows.Scan(&e.Caller, &e.Callee); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Result(ctx context.Context, id string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM summary WHERE usr = $1`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query summary %s: %w", id, err)
	}
	return text, true, nil
}

func (s *Store) PutResult(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO summary (usr, summary) VALUES ($1, $2)
ON CONFLICT (usr) DO UPDATE SET summary = EXCLUDED.summary`, id, text)
	if err != nil {
		return fmt.Errorf("store summary %s: %w", id, err)
	}
	return nil
}

func (s *Store) UpsertFunctions(ctx context.Context, functions []model.FunctionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	defStmt, err := tx.PrepareContext(ctx, `
INSERT INTO def (usr, fully_qualified_name, kind, class, visibility)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (usr)
DO UPDATE SET fully_qualified_name = EXCLUDED.fully_qualified_name,
  kind = EXCLUDED.kind,
  class = EXCLUDED.class,
  visibility = EXCLUDED.visibility`)
	if err != nil {
		return fmt.Errorf("prepare def insert: %w", err)
	}
	defer defStmt.Close()

	srcStmt, err := tx.PrepareContext(ctx, `
INSERT INTO source (usr, filename, start_line, end_line, text)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (usr)
DO UPDATE SET filename = EXCLUDED.filename,
  start_line = EXCLUDED.start_line,
  end_line = EXCLUDED.end_line,
  text = EXCLUDED.text`)
	if err != nil {
		return fmt.Errorf("prepare source insert: %w", err)
	}
	defer srcStmt.Close()

	for _, f := range functions {
		if _, err := defStmt.ExecContext(ctx, f.ID, f.Name, f.Kind, f.Class, f.Visibility); err != nil {
			return fmt.Errorf("insert def %s: %w", f.ID, err)
		}
		if _, err := srcStmt.ExecContext(ctx, f.ID, f.File, f.StartLine, f.EndLine, f.Source); err != nil {
			return fmt.Errorf("insert source %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) UpsertEdges(ctx context.Context, edges []model.CallEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO call (caller_usr, callee_usr) VALUES ($1, $2)
ON CONFLICT (caller_usr, callee_usr) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare call insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.Caller, e.Callee); err != nil {
			return fmt.Errorf("insert call %s→%s: %w", e.Caller, e.Callee, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Function(ctx context.Context, id string) (model.FunctionRecord, error) {
	f, err := scanFunction(s.db.QueryRowContext(ctx, selectFunction+` WHERE d.usr = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.FunctionRecord{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.FunctionRecord{}, fmt.Errorf("query function %s: %w", id, err)
	}
	return f, nil
}

func (s *Store) Callees(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT callee_usr FROM call WHERE caller_usr = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query callees %s: %w", id, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var callee string
		if err := rows.Scan(&callee); err != nil {
			return nil, fmt.Errorf("scan callee: %w", err)
		}
		out = append(out, callee)
	}
	return out, rows.Err()
}

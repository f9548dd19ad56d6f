// Package sqlitestore implements store.Backend on a single SQLite database file.
//
// The layout is four tables: def (one row per function), source (its file
// span and text), call (caller/callee pairs, callee possibly external) and
// summary (one enrichment result per function).
package sqlitestore

import (
	"context"
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS def (
	usr                  TEXT PRIMARY KEY,
	fully_qualified_name TEXT NOT NULL,
	kind                 TEXT NOT NULL,
	class                TEXT NOT NULL,
	visibility           TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS source (
	usr        TEXT    PRIMARY KEY REFERENCES def(usr),
	filename   TEXT    NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	text       TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS call (
	caller_usr TEXT NOT NULL REFERENCES def(usr),
	callee_usr TEXT NOT NULL,
	PRIMARY KEY (caller_usr, callee_usr)
);
CREATE TABLE IF NOT EXISTS summary (
	usr     TEXT PRIMARY KEY REFERENCES def(usr),
	summary TEXT NOT NULL
);
`

// Store is a store.Backend backed by one SQLite connection. All access is
// serialized through the connection mutex.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

var _ store.Backend = (*Store)(nil)

// Open opens (creating if needed) the database at path and ensures the
// schema exists. The special path ":memory:" opens a private in-memory
// database.
func Open(path string) (*Store, error) {
	flags := []sqlite.OpenFlags{sqlite.OpenCreate, sqlite.OpenReadWrite}
	if path != ":memory:" {
		flags = append(flags, sqlite.OpenWAL)
	}
	conn, err := sqlite.OpenConn(path, flags...)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous = FULL", nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Functions returns every function that has both a def and a source row,
// in insertion order.
func (s *Store) Functions(ctx context.Context) ([]model.FunctionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	var out []model.FunctionRecord
	err := sqlitex.Execute(s.conn,
		`SELECT d.usr, d.fully_qualified_name, d.kind, d.class, d.visibility,
		        s.filename, s.start_line, s.end_line, s.text
		   FROM def d JOIN source s USING (usr)
		  ORDER BY d.rowid`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanFunction(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("query functions: %w", err)
	}
	return out, nil
}

// Edges returns every recorded call pair, external callees included.
func (s *Store) Edges(ctx context.Context) ([]model.CallEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	var out []model.CallEdge
	err := sqlitex.Execute(s.conn,
		`SELECT caller_usr, callee_usr FROM call ORDER BY rowid`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, model.CallEdge{Caller: stmt.ColumnText(0), Callee: stmt.ColumnText(1)})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	return out, nil
}

func (s *Store) Result(ctx context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	var (
		text  string
		found bool
	)
	err := sqlitex.Execute(s.conn,
		`SELECT summary FROM summary WHERE usr = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				text = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return "", false, fmt.Errorf("query summary %s: %w", id, err)
	}
	return text, found, nil
}

// PutResult upserts the summary for id. Each call is its own transaction.
func (s *Store) PutResult(ctx context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	err := sqlitex.Execute(s.conn,
		`INSERT INTO summary (usr, summary) VALUES (?, ?)
		 ON CONFLICT(usr) DO UPDATE SET summary = excluded.summary`,
		&sqlitex.ExecOptions{Args: []any{id, text}})
	if err != nil {
		return fmt.Errorf("store summary %s: %w", id, err)
	}
	return nil
}

// UpsertFunctions replaces the def and source rows of every function in one
// transaction.
func (s *Store) UpsertFunctions(ctx context.Context, functions []model.FunctionRecord) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	endFn, err := sqlitex.ImmediateTransaction(s.conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	defStmt, err := s.conn.Prepare(`INSERT INTO def (usr, fully_qualified_name, kind, class, visibility)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(usr) DO UPDATE SET
			fully_qualified_name = excluded.fully_qualified_name,
			kind = excluded.kind,
			class = excluded.class,
			visibility = excluded.visibility`)
	if err != nil {
		return fmt.Errorf("prepare def insert: %w", err)
	}
	srcStmt, err := s.conn.Prepare(`INSERT OR REPLACE INTO source (usr, filename, start_line, end_line, text)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare source insert: %w", err)
	}

	for _, f := range functions {
		defStmt.BindText(1, f.ID)
		defStmt.BindText(2, f.Name)
		defStmt.BindText(3, f.Kind)
		defStmt.BindText(4, f.Class)
		defStmt.BindText(5, f.Visibility)
		if _, err = defStmt.Step(); err != nil {
			return fmt.Errorf("insert def %s: %w", f.ID, err)
		}
		if err = defStmt.Reset(); err != nil {
			return err
		}

		srcStmt.BindText(1, f.ID)
		srcStmt.BindText(2, f.File)
		srcStmt.BindInt64(3, int64(f.StartLine))
		srcStmt.BindInt64(4, int64(f.EndLine))
		srcStmt.BindText(5, f.Source)
		if _, err = srcStmt.Step(); err != nil {
			return fmt.Errorf("insert source %s: %w", f.ID, err)
		}
		if err = srcStmt.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertEdges inserts call pairs, ignoring ones already present.
func (s *Store) UpsertEdges(ctx context.Context, edges []model.CallEdge) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	endFn, err := sqlitex.ImmediateTransaction(s.conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	stmt, err := s.conn.Prepare(`INSERT OR IGNORE INTO call (caller_usr, callee_usr) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare call insert: %w", err)
	}
	for _, e := range edges {
		stmt.BindText(1, e.Caller)
		stmt.BindText(2, e.Callee)
		if _, err = stmt.Step(); err != nil {
			return fmt.Errorf("insert call %s→%s: %w", e.Caller, e.Callee, err)
		}
		if err = stmt.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Function(ctx context.Context, id string) (model.FunctionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	var (
		f     model.FunctionRecord
		found bool
	)
	err := sqlitex.Execute(s.conn,
		`SELECT d.usr, d.fully_qualified_name, d.kind, d.class, d.visibility,
		        s.filename, s.start_line, s.end_line, s.text
		   FROM def d JOIN source s USING (usr)
		  WHERE d.usr = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				f = scanFunction(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return model.FunctionRecord{}, fmt.Errorf("query function %s: %w", id, err)
	}
	if !found {
		return model.FunctionRecord{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	return f, nil
}

func (s *Store) Callees(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetInterrupt(ctx.Done())

	var out []string
	err := sqlitex.Execute(s.conn,
		`SELECT callee_usr FROM call WHERE caller_usr = ? ORDER BY rowid`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("query callees %s: %w", id, err)
	}
	return out, nil
}

func scanFunction(stmt *sqlite.Stmt) model.FunctionRecord {
	return model.FunctionRecord{
		ID:         stmt.ColumnText(0),
		Name:       stmt.ColumnText(1),
		Kind:       stmt.ColumnText(2),
		Class:      stmt.ColumnText(3),
		Visibility: stmt.ColumnText(4),
		File:       stmt.ColumnText(5),
		StartLine:  stmt.ColumnInt(6),
		EndLine:    stmt.ColumnInt(7),
		Source:     stmt.ColumnText(8),
	}
}

// Package sqlsink persists log messages into a SQLite database.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const DEFAULT_DB_FILE = "logs.db"

const schema = `CREATE TABLE IF NOT EXISTS logs (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      INTEGER NOT NULL,
	module  TEXT    NOT NULL,
	message TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS logs_module ON logs(module);`

// Entry is one stored message.
type Entry struct {
	ID      int64
	Time    time.Time
	Module  string
	Message string
}

// Sink inserts every accepted message as a row of the logs table.
type Sink struct {
	db     *sql.DB
	insert *sql.Stmt
	now    func() time.Time
}

// Open creates (or reuses) the database file in dir.
func Open(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, DEFAULT_DB_FILE))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New uses an already opened database; the sink owns it afterwards and
// closes it on Cleanup.
func New(db *sql.DB) (*Sink, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create logs table: %w", err)
	}
	insert, err := db.Prepare("INSERT INTO logs(ts, module, message) VALUES(?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	return &Sink{db: db, insert: insert, now: time.Now}, nil
}

func (s *Sink) Accept(module, message string) error {
	if _, err := s.insert.Exec(s.now().UnixNano(), module, message); err != nil {
		return fmt.Errorf("failed to store log message: %w", err)
	}
	return nil
}

// Query returns up to limit newest entries of the module ("" for all
// modules), oldest first.
func (s *Sink) Query(ctx context.Context, module string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, module, message FROM (
			SELECT id, ts, module, message FROM logs
			WHERE ? = '' OR module = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id`, module, module, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Module, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		e.Time = time.Unix(0, ts)
		res = append(res, e)
	}
	return res, rows.Err()
}

// Count returns the number of stored messages.
func (s *Sink) Count(ctx context.Context) (n int64, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&n)
	return n, err
}

// Cleanup closes the database.
func (s *Sink) Cleanup() error {
	s.insert.Close()
	return s.db.Close()
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trips (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	start_date       DATETIME NOT NULL,
	end_date         DATETIME NOT NULL,
	visibility       TEXT NOT NULL DEFAULT 'private',
	share_token      TEXT NOT NULL DEFAULT '',
	share_expires_at DATETIME,
	view_count       INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trips_owner ON trips(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_trips_visibility ON trips(visibility, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_share_token ON trips(share_token) WHERE share_token != '';

CREATE TABLE IF NOT EXISTS stops (
	id             TEXT PRIMARY KEY,
	trip_id        TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	city           TEXT NOT NULL,
	lat            REAL NOT NULL DEFAULT 0,
	lon            REAL NOT NULL DEFAULT 0,
	arrival_date   DATETIME NOT NULL,
	departure_date DATETIME NOT NULL,
	position       INTEGER NOT NULL,
	notes          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stops_trip ON stops(trip_id, position);

CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	stop_id    TEXT NOT NULL REFERENCES stops(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	day        INTEGER NOT NULL,
	start_time TEXT NOT NULL DEFAULT '',
	end_time   TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT 'other',
	cost       REAL NOT NULL DEFAULT 0,
	notes      TEXT NOT NULL DEFAULT '',
	position   INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_stop ON items(stop_id, day, position);
`

// Positions carry no UNIQUE constraint on purpose: the next-position
// query is not transactional with the following insert, so a concurrent
// create may land a duplicate. Lists break the tie on created_at; a
// constraint here would turn that accepted race into a hard failure.

// SQLite is the production Store backed by mattn/go-sqlite3.
type SQLite struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// WAL keeps readers off the write lock; immediate transactions make
// reorder batches take the write lock up front instead of deadlocking
// on upgrade.
func Open(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// translateErr maps driver failures onto the shared error kinds.
// Unique violations become conflicts (duplicate share token), foreign
// key violations mean the referenced parent is gone, and a busy
// database after the timeout is a lost race the caller may retry.
func translateErr(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: duplicate value", apperr.ErrConflict)
	case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("referenced parent: %w", apperr.ErrNotFound)
	case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: store busy, retry", apperr.ErrConflict)
	}
	return err
}

// nullableTime converts between *time.Time and sql.NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// setClause assembles a partial UPDATE from patch fields. Columns and
// args stay index-aligned; callers append the WHERE args afterwards.
type setClause struct {
	cols []string
	args []any
}

func (c *setClause) add(col string, v any) {
	c.cols = append(c.cols, col+" = ?")
	c.args = append(c.args, v)
}

func (c *setClause) sql() string {
	return strings.Join(c.cols, ", ")
}

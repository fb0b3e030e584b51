// Package persistence provides SQLite-backed storage for the touch event
// log and the agent's pending work queue.
package persistence

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rcfox/spritekeeper/internal/identity"
	"github.com/rcfox/spritekeeper/internal/touch"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS touch_events (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		kind TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		on_target INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_touches (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		identity TEXT NOT NULL,
		kind TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		on_target INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_touch_events_at ON touch_events(at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// eventRow is the table shape for both event tables.
type eventRow struct {
	ID       string  `db:"id"`
	Identity string  `db:"identity"`
	Kind     string  `db:"kind"`
	X        float64 `db:"x"`
	Y        float64 `db:"y"`
	OnTarget bool    `db:"on_target"`
	Outcome  string  `db:"outcome"`
	At       string  `db:"at"`
}

func toRow(ev touch.Event) eventRow {
	return eventRow{
		ID:       ev.ID,
		Identity: string(ev.Identity),
		Kind:     string(ev.Kind),
		X:        ev.X,
		Y:        ev.Y,
		OnTarget: ev.OnTarget,
		Outcome:  ev.Outcome,
		At:       ev.At.UTC().Format(time.RFC3339Nano),
	}
}

func fromRow(row eventRow) touch.Event {
	at, _ := time.Parse(time.RFC3339Nano, row.At)
	return touch.Event{
		ID:       row.ID,
		Identity: identity.ID(row.Identity),
		Kind:     touch.Kind(row.Kind),
		X:        row.X,
		Y:        row.Y,
		OnTarget: row.OnTarget,
		Outcome:  row.Outcome,
		At:       at,
	}
}

// Append writes an event to the append-only touch log.
func (db *DB) Append(ev touch.Event) error {
	_, err := db.conn.NamedExec(`INSERT INTO touch_events
		(id, identity, kind, x, y, on_target, outcome, at)
		VALUES (:id, :identity, :kind, :x, :y, :on_target, :outcome, :at)`,
		toRow(ev))
	if err != nil {
		return fmt.Errorf("append touch event: %w", err)
	}
	return nil
}

// Enqueue adds an event to the agent's pending work list.
func (db *DB) Enqueue(ev touch.Event) error {
	_, err := db.conn.NamedExec(`INSERT INTO pending_touches
		(id, identity, kind, x, y, on_target, outcome, at)
		VALUES (:id, :identity, :kind, :x, :y, :on_target, :outcome, :at)`,
		toRow(ev))
	if err != nil {
		return fmt.Errorf("enqueue pending touch: %w", err)
	}
	return nil
}

// DrainPending returns the current pending batch and deletes it in the same
// transaction. Concurrent drains serialize on the transaction, so at most
// one reader observes any given batch.
func (db *DB) DrainPending() ([]touch.Event, error) {
	tx, err := db.conn.Beginx()
	if err != nil {
		return nil, fmt.Errorf("drain pending: %w", err)
	}
	defer tx.Rollback()

	var rows []eventRow
	if err := tx.Select(&rows, "SELECT id, identity, kind, x, y, on_target, outcome, at FROM pending_touches ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("drain pending: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM pending_touches"); err != nil {
		return nil, fmt.Errorf("drain pending: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("drain pending: %w", err)
	}

	events := make([]touch.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, fromRow(row))
	}
	return events, nil
}

// EventCount returns how many touch events have ever been logged.
func (db *DB) EventCount() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM touch_events")
	return n, err
}

// SaveMeta stores a key-value pair in service metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

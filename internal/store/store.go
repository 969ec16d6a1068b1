// Package store provides the sqlite-backed relational store that every
// decision module consults and writes through.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lnfeed/lnfeed/internal/lnferr"
)

// Store is the sole owner of persisted state: forwards, peers, channel
// lifecycle records, fee samples, price-theory hands, and the action audit
// log. Decision modules read snapshots through its methods and propose
// writes; nothing else touches the database directly.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates the parent directory if needed, opens the sqlite file at
// path in WAL mode, and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, lnferr.Store("creating store directory", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, lnferr.Store("opening store", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, lnferr.Store("pinging store", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, lnferr.Store("initializing schema", err)
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS peers (
		peer_id TEXT PRIMARY KEY,
		first_seen INTEGER NOT NULL,
		fees_earned_msat INTEGER NOT NULL DEFAULT 0,
		volume_forwarded_msat INTEGER NOT NULL DEFAULT 0,
		current_channel_id TEXT,
		last_channel_id TEXT,
		reopen_cost_estimate_sats INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS channels_lifecycle (
		channel_id TEXT PRIMARY KEY,
		peer_id TEXT NOT NULL,
		opened_at INTEGER NOT NULL,
		closed_at INTEGER,
		initial_capacity INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lifecycle_peer ON channels_lifecycle(peer_id);
	CREATE INDEX IF NOT EXISTS idx_lifecycle_open ON channels_lifecycle(closed_at);

	CREATE TABLE IF NOT EXISTS forwards (
		event_id TEXT PRIMARY KEY,
		day_bucket TEXT NOT NULL,
		in_channel TEXT NOT NULL,
		out_channel TEXT NOT NULL,
		fee_earned_msat INTEGER NOT NULL,
		amount_forwarded_msat INTEGER NOT NULL,
		observed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_forwards_day ON forwards(day_bucket);
	CREATE INDEX IF NOT EXISTS idx_forwards_in ON forwards(in_channel);
	CREATE INDEX IF NOT EXISTS idx_forwards_out ON forwards(out_channel);
	CREATE INDEX IF NOT EXISTS idx_forwards_observed ON forwards(observed_at);

	CREATE TABLE IF NOT EXISTS ingest_cursor (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		high_watermark TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS fee_samples (
		sampled_at INTEGER PRIMARY KEY,
		fastest_sat_per_vb REAL NOT NULL,
		half_hour_sat_per_vb REAL NOT NULL,
		hour_sat_per_vb REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_theory_hands (
		peer_id TEXT PRIMARY KEY,
		active_step INTEGER NOT NULL,
		active_age INTEGER NOT NULL,
		active_earnings_msat INTEGER NOT NULL,
		baseline_earnings_msat INTEGER NOT NULL DEFAULT 0,
		drawn_steps TEXT NOT NULL,
		hand_data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		parameters TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		outcome TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_actions_kind ON actions(kind);
	CREATE INDEX IF NOT EXISTS idx_actions_occurred ON actions(occurred_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations applies best-effort ALTER TABLE statements for columns
// added after the initial table definitions above; errors are ignored
// since the column may already exist on a freshly created database.
func (s *Store) runMigrations() error {
	migrations := []string{
		"ALTER TABLE peers ADD COLUMN reopen_cost_estimate_sats INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE price_theory_hands ADD COLUMN baseline_earnings_msat INTEGER NOT NULL DEFAULT 0",
	}
	for _, m := range migrations {
		_, _ = s.db.Exec(m)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func unixToTimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

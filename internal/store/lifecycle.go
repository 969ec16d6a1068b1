package store

import (
	"database/sql"
	"time"
)

// ChannelLifecycle tracks the open/close timeline for one channel.
type ChannelLifecycle struct {
	ChannelID       string
	PeerID          string
	OpenedAt        time.Time
	ClosedAt        *time.Time
	InitialCapacity int64
}

// RecordChannelOpen inserts the lifecycle row for a newly observed channel.
// A channel already recorded is left untouched (exactly one row per
// channel identifier, per the data model invariant).
func (s *Store) RecordChannelOpen(channelID, peerID string, capacity int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO channels_lifecycle (channel_id, peer_id, opened_at, initial_capacity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id) DO NOTHING
	`, channelID, peerID, t.Unix(), capacity)
	return err
}

// RecordChannelClose stamps closed_at for channelID if it isn't already
// closed. closed_at is clamped to be >= opened_at, preserving the
// lifecycle invariant even if the caller's clock is skewed.
func (s *Store) RecordChannelClose(channelID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE channels_lifecycle
		SET closed_at = MAX(?, opened_at)
		WHERE channel_id = ? AND closed_at IS NULL
	`, t.Unix(), channelID)
	return err
}

// LoadLifecycle returns the lifecycle row for channelID, or nil if unknown.
func (s *Store) LoadLifecycle(channelID string) (*ChannelLifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT channel_id, peer_id, opened_at, closed_at, initial_capacity
		FROM channels_lifecycle WHERE channel_id = ?
	`, channelID)
	return scanLifecycle(row)
}

// LoadOpenChannels returns every channel without a recorded close.
func (s *Store) LoadOpenChannels() ([]*ChannelLifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT channel_id, peer_id, opened_at, closed_at, initial_capacity
		FROM channels_lifecycle WHERE closed_at IS NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChannelLifecycle
	for rows.Next() {
		lc, err := scanLifecycleRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func scanLifecycle(row *sql.Row) (*ChannelLifecycle, error) {
	lc, err := scanLifecycleGeneric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return lc, err
}

func scanLifecycleRows(rows *sql.Rows) (*ChannelLifecycle, error) {
	return scanLifecycleGeneric(rows)
}

func scanLifecycleGeneric(rs rowScanner) (*ChannelLifecycle, error) {
	var lc ChannelLifecycle
	var openedAt int64
	var closedAt sql.NullInt64

	if err := rs.Scan(&lc.ChannelID, &lc.PeerID, &openedAt, &closedAt, &lc.InitialCapacity); err != nil {
		return nil, err
	}

	lc.OpenedAt = time.Unix(openedAt, 0).UTC()
	lc.ClosedAt = unixToTimePtr(closedAt)
	return &lc, nil
}

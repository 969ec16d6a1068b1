package store

import (
	"database/sql"
	"time"
)

// PeerRecord is the persisted per-counterparty accumulator described in
// the data model: cumulative earnings/volume plus the channel currently
// (or most recently) open to this peer.
type PeerRecord struct {
	PeerID                 string
	FirstSeen              time.Time
	FeesEarnedMsat         int64
	VolumeForwardedMsat    int64
	CurrentChannelID       string
	LastChannelID          string
	ReopenCostEstimateSats int64
}

// UpsertPeer inserts a peer row if absent, leaving FirstSeen untouched on
// conflict so repeated calls across cycles don't reset it.
func (s *Store) UpsertPeer(p *PeerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO peers (peer_id, first_seen, fees_earned_msat, volume_forwarded_msat, current_channel_id, last_channel_id, reopen_cost_estimate_sats)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			current_channel_id = excluded.current_channel_id,
			last_channel_id = excluded.last_channel_id,
			reopen_cost_estimate_sats = excluded.reopen_cost_estimate_sats
	`,
		p.PeerID, p.FirstSeen.Unix(), p.FeesEarnedMsat, p.VolumeForwardedMsat,
		p.CurrentChannelID, p.LastChannelID, p.ReopenCostEstimateSats,
	)
	return err
}

// AddPeerEarnings adds delta fees/volume to a peer's running totals,
// creating the row first if this is the first time the peer is seen.
func (s *Store) AddPeerEarnings(peerID string, feeMsat, volumeMsat int64, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO peers (peer_id, first_seen, fees_earned_msat, volume_forwarded_msat)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			fees_earned_msat = peers.fees_earned_msat + excluded.fees_earned_msat,
			volume_forwarded_msat = peers.volume_forwarded_msat + excluded.volume_forwarded_msat
	`, peerID, seenAt.Unix(), feeMsat, volumeMsat)
	return err
}

// LoadPeer returns the peer record for peerID, or nil if unknown.
func (s *Store) LoadPeer(peerID string) (*PeerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT peer_id, first_seen, fees_earned_msat, volume_forwarded_msat, current_channel_id, last_channel_id, reopen_cost_estimate_sats
		FROM peers WHERE peer_id = ?
	`, peerID)
	return scanPeer(row)
}

// LoadAllPeers returns every known peer record.
func (s *Store) LoadAllPeers() ([]*PeerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT peer_id, first_seen, fees_earned_msat, volume_forwarded_msat, current_channel_id, last_channel_id, reopen_cost_estimate_sats
		FROM peers
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PeerRecord
	for rows.Next() {
		p, err := scanPeerRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeer(row *sql.Row) (*PeerRecord, error) {
	p, err := scanPeerGeneric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanPeerRows(rows *sql.Rows) (*PeerRecord, error) {
	return scanPeerGeneric(rows)
}

func scanPeerGeneric(rs rowScanner) (*PeerRecord, error) {
	var p PeerRecord
	var firstSeen int64
	var currentCh, lastCh sql.NullString

	if err := rs.Scan(&p.PeerID, &firstSeen, &p.FeesEarnedMsat, &p.VolumeForwardedMsat, &currentCh, &lastCh, &p.ReopenCostEstimateSats); err != nil {
		return nil, err
	}

	p.FirstSeen = time.Unix(firstSeen, 0).UTC()
	p.CurrentChannelID = currentCh.String
	p.LastChannelID = lastCh.String
	return &p, nil
}

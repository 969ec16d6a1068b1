package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// PriceTheoryHand is a peer's exploration state for the price-theory fee
// modder: one active card (a price step in [-4, +4]) at a time, plus the
// set of steps already drawn so redraws can be biased toward unexplored
// ones.
type PriceTheoryHand struct {
	PeerID               string
	ActiveStep           int
	ActiveAge            int
	ActiveEarningsMsat   int64
	BaselineEarningsMsat int64
	DrawnSteps           []int
	UpdatedAt            time.Time
}

// handData is the JSON blob persisted alongside the relational columns,
// mirroring the teacher's method_data pattern: the relational columns
// serve direct queries, the blob carries the full state.
type handData struct {
	DrawnSteps []int `json:"drawn_steps"`
}

// PriceTheoryLoad returns the persisted hand for peerID, or nil if the
// peer has never been dealt one (cold start).
func (s *Store) PriceTheoryLoad(peerID string) (*PriceTheoryHand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT peer_id, active_step, active_age, active_earnings_msat, baseline_earnings_msat, drawn_steps, hand_data, updated_at
		FROM price_theory_hands WHERE peer_id = ?
	`, peerID)

	var h PriceTheoryHand
	var drawnJSON, blobJSON string
	var updatedAt int64

	err := row.Scan(&h.PeerID, &h.ActiveStep, &h.ActiveAge, &h.ActiveEarningsMsat, &h.BaselineEarningsMsat, &drawnJSON, &blobJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(drawnJSON), &h.DrawnSteps)
	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &h, nil
}

// PriceTheorySave persists hand, overwriting any prior state for the peer.
func (s *Store) PriceTheorySave(peerID string, hand *PriceTheoryHand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drawnJSON, err := json.Marshal(hand.DrawnSteps)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(handData{DrawnSteps: hand.DrawnSteps})
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO price_theory_hands (peer_id, active_step, active_age, active_earnings_msat, baseline_earnings_msat, drawn_steps, hand_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			active_step = excluded.active_step,
			active_age = excluded.active_age,
			active_earnings_msat = excluded.active_earnings_msat,
			baseline_earnings_msat = excluded.baseline_earnings_msat,
			drawn_steps = excluded.drawn_steps,
			hand_data = excluded.hand_data,
			updated_at = excluded.updated_at
	`, peerID, hand.ActiveStep, hand.ActiveAge, hand.ActiveEarningsMsat, hand.BaselineEarningsMsat, string(drawnJSON), string(blob), time.Now().Unix())
	return err
}

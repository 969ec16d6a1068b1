package store

// ForwardEvent is one forwarding HTLC resolved by the node, keyed by a
// stable event_id so replays are no-ops.
type ForwardEvent struct {
	EventID             string
	DayBucket           string
	InChannel           string
	OutChannel          string
	FeeEarnedMsat       int64
	AmountForwardedMsat int64
	ObservedAtUnix      int64
}

// UpsertForward inserts event if its event_id hasn't been seen before.
// A duplicate event_id is a no-op, satisfying the idempotent-ingestion
// invariant: re-ingesting the same event never double-counts earnings.
// inserted reports whether a new row was written.
func (s *Store) UpsertForward(event ForwardEvent) (inserted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO forwards (event_id, day_bucket, in_channel, out_channel, fee_earned_msat, amount_forwarded_msat, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, event.EventID, event.DayBucket, event.InChannel, event.OutChannel, event.FeeEarnedMsat, event.AmountForwardedMsat, event.ObservedAtUnix)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HighWatermark returns the persisted ingestion cursor, empty if ingestion
// has never run.
func (s *Store) HighWatermark() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursor string
	err := s.db.QueryRow(`SELECT high_watermark FROM ingest_cursor WHERE id = 1`).Scan(&cursor)
	if err != nil {
		return "", nil // no row yet: treat as empty cursor
	}
	return cursor, nil
}

// SetHighWatermark persists the ingestion cursor so a restart resumes
// exactly where the previous run left off.
func (s *Store) SetHighWatermark(cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO ingest_cursor (id, high_watermark) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET high_watermark = excluded.high_watermark
	`, cursor)
	return err
}

// ForwardsSince returns every forward observed at or after sinceUnix.
func (s *Store) ForwardsSince(sinceUnix int64) ([]ForwardEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, day_bucket, in_channel, out_channel, fee_earned_msat, amount_forwarded_msat, observed_at
		FROM forwards WHERE observed_at >= ?
	`, sinceUnix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ForwardEvent
	for rows.Next() {
		var e ForwardEvent
		if err := rows.Scan(&e.EventID, &e.DayBucket, &e.InChannel, &e.OutChannel, &e.FeeEarnedMsat, &e.AmountForwardedMsat, &e.ObservedAtUnix); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

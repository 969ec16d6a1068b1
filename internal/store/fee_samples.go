package store

import "time"

// FeeSample is one on-chain fee-rate observation, used by the fee oracle's
// rolling 7-day window.
type FeeSample struct {
	SampledAt         time.Time
	FastestSatPerVB   float64
	HalfHourSatPerVB  float64
	HourSatPerVB      float64
}

// RecordFeeSample appends a sample. sampled_at is the primary key, so a
// repeat sample at the same instant replaces the prior row rather than
// duplicating it.
func (s *Store) RecordFeeSample(sample FeeSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO fee_samples (sampled_at, fastest_sat_per_vb, half_hour_sat_per_vb, hour_sat_per_vb)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sampled_at) DO UPDATE SET
			fastest_sat_per_vb = excluded.fastest_sat_per_vb,
			half_hour_sat_per_vb = excluded.half_hour_sat_per_vb,
			hour_sat_per_vb = excluded.hour_sat_per_vb
	`, sample.SampledAt.Unix(), sample.FastestSatPerVB, sample.HalfHourSatPerVB, sample.HourSatPerVB)
	return err
}

// PruneFeeSamples deletes every sample older than cutoff, bounding the
// window to the caller's retention (the oracle passes 7 days).
func (s *Store) PruneFeeSamples(cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM fee_samples WHERE sampled_at < ?`, cutoff.Unix())
	return err
}

// LoadFeeSamples returns the retained samples in ascending sampled_at order.
func (s *Store) LoadFeeSamples() ([]FeeSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT sampled_at, fastest_sat_per_vb, half_hour_sat_per_vb, hour_sat_per_vb
		FROM fee_samples ORDER BY sampled_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeeSample
	for rows.Next() {
		var sampledAt int64
		var fs FeeSample
		if err := rows.Scan(&sampledAt, &fs.FastestSatPerVB, &fs.HalfHourSatPerVB, &fs.HourSatPerVB); err != nil {
			return nil, err
		}
		fs.SampledAt = time.Unix(sampledAt, 0).UTC()
		out = append(out, fs)
	}
	return out, rows.Err()
}

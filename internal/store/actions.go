package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionKind enumerates the decisions the loop can emit.
type ActionKind string

const (
	ActionFeeUpdate    ActionKind = "FeeUpdate"
	ActionOpenChannel  ActionKind = "OpenChannel"
	ActionCloseChannel ActionKind = "CloseChannel"
	ActionRebalance    ActionKind = "Rebalance"
)

// ActionAudit is one append-only record of a decision the loop emitted,
// whether or not it actually reached the remote API (dry-run records are
// written the same way, with DryRun set).
type ActionAudit struct {
	ID         string
	Kind       ActionKind
	OccurredAt time.Time
	Parameters map[string]any
	DryRun     bool
	Success    bool
	Outcome    string
}

// RecordAction appends an audit row. If a.ID is empty a uuid is generated,
// mirroring how the teacher mints row IDs for records the remote side
// never assigns one for.
func (s *Store) RecordAction(a ActionAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	params, err := json.Marshal(a.Parameters)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO actions (id, kind, occurred_at, parameters, dry_run, success, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, string(a.Kind), a.OccurredAt.Unix(), string(params), boolToInt(a.DryRun), boolToInt(a.Success), a.Outcome)
	return err
}

// RecentActions returns the most recent limit audit rows, newest first,
// for the status command's summary view.
func (s *Store) RecentActions(limit int) ([]ActionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, kind, occurred_at, parameters, dry_run, success, outcome
		FROM actions ORDER BY occurred_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionAudit
	for rows.Next() {
		var a ActionAudit
		var kind, params, outcome string
		var occurredAt int64
		var dryRun, success int
		if err := rows.Scan(&a.ID, &kind, &occurredAt, &params, &dryRun, &success, &outcome); err != nil {
			return nil, err
		}
		a.Kind = ActionKind(kind)
		a.OccurredAt = time.Unix(occurredAt, 0).UTC()
		a.DryRun = dryRun != 0
		a.Success = success != 0
		a.Outcome = outcome
		_ = json.Unmarshal([]byte(params), &a.Parameters)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActionCounts returns the number of recorded actions per kind, for the
// status command's aggregate summary.
func (s *Store) ActionCounts() (map[ActionKind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT kind, COUNT(*) FROM actions GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[ActionKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		out[ActionKind(kind)] = count
	}
	return out, rows.Err()
}

package store

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertForwardIdempotent(t *testing.T) {
	s := openTestStore(t)

	event := ForwardEvent{
		EventID:             "evt-1",
		DayBucket:           "2026-07-30",
		InChannel:           "chan-a",
		OutChannel:          "chan-b",
		FeeEarnedMsat:       1000,
		AmountForwardedMsat: 1_000_000,
		ObservedAtUnix:      time.Now().Unix(),
	}

	inserted, err := s.UpsertForward(event)
	if err != nil {
		t.Fatalf("UpsertForward() error = %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to report inserted=true")
	}

	inserted, err = s.UpsertForward(event)
	if err != nil {
		t.Fatalf("UpsertForward() replay error = %v", err)
	}
	if inserted {
		t.Fatal("replay of the same event_id must be a no-op")
	}

	forwards, err := s.ForwardsSince(0)
	if err != nil {
		t.Fatalf("ForwardsSince() error = %v", err)
	}
	if len(forwards) != 1 {
		t.Fatalf("expected exactly one forward row after replay, got %d", len(forwards))
	}
}

func TestChannelLifecycleOpenClose(t *testing.T) {
	s := openTestStore(t)

	opened := time.Now().Add(-time.Hour)
	if err := s.RecordChannelOpen("chan-1", "peer-1", 1_000_000, opened); err != nil {
		t.Fatalf("RecordChannelOpen() error = %v", err)
	}

	lc, err := s.LoadLifecycle("chan-1")
	if err != nil {
		t.Fatalf("LoadLifecycle() error = %v", err)
	}
	if lc == nil || lc.ClosedAt != nil {
		t.Fatalf("expected an open lifecycle row, got %+v", lc)
	}

	closedAt := time.Now()
	if err := s.RecordChannelClose("chan-1", closedAt); err != nil {
		t.Fatalf("RecordChannelClose() error = %v", err)
	}

	lc, err = s.LoadLifecycle("chan-1")
	if err != nil {
		t.Fatalf("LoadLifecycle() error = %v", err)
	}
	if lc.ClosedAt == nil {
		t.Fatal("expected ClosedAt to be set after close")
	}
	if lc.ClosedAt.Before(lc.OpenedAt) {
		t.Fatalf("closed_at %v must not precede opened_at %v", lc.ClosedAt, lc.OpenedAt)
	}

	open, err := s.LoadOpenChannels()
	if err != nil {
		t.Fatalf("LoadOpenChannels() error = %v", err)
	}
	for _, c := range open {
		if c.ChannelID == "chan-1" {
			t.Fatal("closed channel must not appear in LoadOpenChannels")
		}
	}
}

func TestPriceTheoryRoundTrip(t *testing.T) {
	s := openTestStore(t)

	hand, err := s.PriceTheoryLoad("peer-1")
	if err != nil {
		t.Fatalf("PriceTheoryLoad() error = %v", err)
	}
	if hand != nil {
		t.Fatal("expected no hand before first deal")
	}

	want := &PriceTheoryHand{
		PeerID:             "peer-1",
		ActiveStep:         2,
		ActiveAge:          3,
		ActiveEarningsMsat: 500,
		DrawnSteps:         []int{0, 2},
	}
	if err := s.PriceTheorySave("peer-1", want); err != nil {
		t.Fatalf("PriceTheorySave() error = %v", err)
	}

	got, err := s.PriceTheoryLoad("peer-1")
	if err != nil {
		t.Fatalf("PriceTheoryLoad() error = %v", err)
	}
	if got == nil || got.ActiveStep != want.ActiveStep || got.ActiveAge != want.ActiveAge {
		t.Fatalf("PriceTheoryLoad() = %+v, want %+v", got, want)
	}
	if len(got.DrawnSteps) != 2 {
		t.Fatalf("expected drawn steps to round-trip, got %v", got.DrawnSteps)
	}
}

func TestActionAuditDryRun(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordAction(ActionAudit{
		Kind:       ActionFeeUpdate,
		OccurredAt: time.Now(),
		Parameters: map[string]any{"channel_id": "chan-1", "ppm": 250},
		DryRun:     true,
		Success:    true,
	}); err != nil {
		t.Fatalf("RecordAction() error = %v", err)
	}

	actions, err := s.RecentActions(10)
	if err != nil {
		t.Fatalf("RecentActions() error = %v", err)
	}
	if len(actions) != 1 || !actions[0].DryRun {
		t.Fatalf("expected one dry-run action recorded, got %+v", actions)
	}

	counts, err := s.ActionCounts()
	if err != nil {
		t.Fatalf("ActionCounts() error = %v", err)
	}
	if counts[ActionFeeUpdate] != 1 {
		t.Fatalf("ActionCounts()[FeeUpdate] = %d, want 1", counts[ActionFeeUpdate])
	}
}

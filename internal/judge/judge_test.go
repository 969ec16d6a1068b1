package judge

import (
	"testing"
	"time"

	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEligiblePeer(t *testing.T, s *store.Store, channelID, peerID string, capacitySats, earnedMsat int64, age time.Duration, now time.Time) {
	t.Helper()
	if err := s.RecordChannelOpen(channelID, peerID, capacitySats, now.Add(-age)); err != nil {
		t.Fatalf("RecordChannelOpen(%s) error = %v", channelID, err)
	}
	if err := s.AddPeerEarnings(peerID, earnedMsat, 0, now); err != nil {
		t.Fatalf("AddPeerEarnings(%s) error = %v", peerID, err)
	}
}

func TestRecommendNoClosureWhenImprovementNegative(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// P1 (size 1e9, earned 100), P2 (size 4e9, earned 100): weighted median
	// rate is 100/4e9 = 2.5e-8. P1's improvement is 25 - 100 < 0 and P2 sits
	// at the median, so nothing should be flagged.
	seedEligiblePeer(t, s, "chan-p1", "peer-1", 1_000_000_000, 100, 120*24*time.Hour, now)
	seedEligiblePeer(t, s, "chan-p2", "peer-2", 4_000_000_000, 100, 120*24*time.Hour, now)

	channels := []remoteclient.Channel{
		{ChannelID: "chan-p1", PeerID: "peer-1", CapacitySats: 1_000_000_000},
		{ChannelID: "chan-p2", PeerID: "peer-2", CapacitySats: 4_000_000_000},
	}

	j := New(Config{Enabled: true, MinChannelAgeDays: 90, ReopenCostSats: 0}, s)
	candidate, err := j.Recommend(channels, now)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if candidate != nil {
		t.Fatalf("expected no closure candidate, got %+v", candidate)
	}
}

func TestRecommendClosesUnderperformer(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// Invert the sizes: P1 is now the large channel and earns well (rate
	// 0.01, which is the weighted median), P2 earns almost nothing, so P2's
	// improvement is 0.01*1e9 - 100 - 1000*1000 msat > 0 and it is flagged.
	seedEligiblePeer(t, s, "chan-p1", "peer-1", 4_000_000_000, 40_000_000, 120*24*time.Hour, now)
	seedEligiblePeer(t, s, "chan-p2", "peer-2", 1_000_000_000, 100, 120*24*time.Hour, now)

	channels := []remoteclient.Channel{
		{ChannelID: "chan-p1", PeerID: "peer-1", CapacitySats: 4_000_000_000},
		{ChannelID: "chan-p2", PeerID: "peer-2", CapacitySats: 1_000_000_000},
	}

	j := New(Config{Enabled: true, MinChannelAgeDays: 90, ReopenCostSats: 1000}, s)
	candidate, err := j.Recommend(channels, now)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if candidate == nil {
		t.Fatal("expected a closure candidate")
	}
	if candidate.ChannelID != "chan-p2" {
		t.Fatalf("expected chan-p2 flagged, got %s", candidate.ChannelID)
	}
}

func TestRecommendRespectsMinAge(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// Too young to be eligible, even though it would otherwise be flagged.
	seedEligiblePeer(t, s, "chan-p1", "peer-1", 4_000_000_000, 40_000_000, 5*24*time.Hour, now)
	seedEligiblePeer(t, s, "chan-p2", "peer-2", 1_000_000_000, 100, 5*24*time.Hour, now)

	channels := []remoteclient.Channel{
		{ChannelID: "chan-p1", PeerID: "peer-1", CapacitySats: 4_000_000_000},
		{ChannelID: "chan-p2", PeerID: "peer-2", CapacitySats: 1_000_000_000},
	}

	j := New(Config{Enabled: true, MinChannelAgeDays: 90, ReopenCostSats: 1000}, s)
	candidate, err := j.Recommend(channels, now)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if candidate != nil {
		t.Fatalf("expected no closure candidate below min age, got %+v", candidate)
	}
}

func TestRecommendDisabled(t *testing.T) {
	s := openTestStore(t)
	j := New(Config{Enabled: false}, s)
	candidate, err := j.Recommend(nil, time.Now())
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if candidate != nil {
		t.Fatalf("disabled judge must never emit a candidate, got %+v", candidate)
	}
}

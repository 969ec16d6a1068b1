package rebalancer

import (
	"testing"
	"time"

	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

func TestPlanPairsSourceAndDestination(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	seedPeer := func(peerID string, earnedMsat int64) {
		if err := s.AddPeerEarnings(peerID, earnedMsat, 0, time.Now()); err != nil {
			t.Fatalf("AddPeerEarnings(%s) error = %v", peerID, err)
		}
	}
	seedPeer("peer-a", 1000)
	seedPeer("peer-b", 500)
	seedPeer("peer-c", 2000)

	channels := []remoteclient.Channel{
		{ChannelID: "chan-a", PeerID: "peer-a", CapacitySats: 1_000_000, LocalSats: 100_000}, // ratio 0.10
		{ChannelID: "chan-b", PeerID: "peer-b", CapacitySats: 1_000_000, LocalSats: 500_000}, // ratio 0.50
		{ChannelID: "chan-c", PeerID: "peer-c", CapacitySats: 1_000_000, LocalSats: 900_000}, // ratio 0.90
	}

	r := New(Config{
		Enabled:            true,
		PerOpAmountCapSats: 10_000_000,
		PerOpFeeCapMsat:    1_000_000,
		PerCycleFeeCapMsat: 5_000_000,
		LowThreshold:       0.25,
		HighThreshold:      0.275,
	}, s, nil)

	pairs, err := r.Plan(channels)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected exactly one pair, got %d: %+v", len(pairs), pairs)
	}

	p := pairs[0]
	if p.Source.PeerID != "peer-c" || p.Destination.PeerID != "peer-a" {
		t.Fatalf("expected source=peer-c destination=peer-a, got source=%s destination=%s", p.Source.PeerID, p.Destination.PeerID)
	}
	if p.FeeBudget != 1000 {
		t.Fatalf("fee budget = %d, want min(cap, dst net_earnings)=1000", p.FeeBudget)
	}
}

func TestPlanSkipsNonPositiveFeeBudget(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	channels := []remoteclient.Channel{
		{ChannelID: "chan-a", PeerID: "peer-a", CapacitySats: 1_000_000, LocalSats: 100_000},
		{ChannelID: "chan-c", PeerID: "peer-c", CapacitySats: 1_000_000, LocalSats: 900_000},
	}

	r := New(Config{
		Enabled:            true,
		PerOpAmountCapSats: 10_000_000,
		PerOpFeeCapMsat:    1_000_000,
		PerCycleFeeCapMsat: 5_000_000,
		LowThreshold:       0.25,
		HighThreshold:      0.275,
	}, s, nil)

	// Neither peer has any recorded earnings, so net_earnings is 0 and the
	// fee budget must be non-positive: no rebalance should be emitted.
	pairs, err := r.Plan(channels)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	for _, p := range pairs {
		if p.FeeBudget <= 0 {
			t.Fatalf("no pair should be produced with a non-positive fee budget, got %+v", p)
		}
	}
}

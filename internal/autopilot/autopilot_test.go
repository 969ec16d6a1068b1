package autopilot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lnfeed/lnfeed/internal/oracle"
	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

type fakeNode struct {
	confirmedSats int64
	reservedSats  int64
	channels      []remoteclient.Channel
}

func newFakeNodeServer(t *testing.T, fn *fakeNode) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/onchain/balance", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteclient.OnChainBalance{
			ConfirmedSats: fn.confirmedSats,
			ReservedSats:  fn.reservedSats,
		})
	})
	mux.HandleFunc("/v1/channels", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fn.channels)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAutopilot(t *testing.T, cfg Config, fn *fakeNode) *Autopilot {
	t.Helper()
	srv := newFakeNodeServer(t, fn)
	client, err := remoteclient.New(remoteclient.Config{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("remoteclient.New: %v", err)
	}
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(cfg, st, client)
}

func TestPlanGatedOffByRegime(t *testing.T) {
	cfg := Config{
		Enabled:            true,
		ReserveSats:        10_000,
		MaxProposals:       3,
		TargetChannelCount: 20,
		SeedNodes:          []string{"peer-a"},
	}
	a := newTestAutopilot(t, cfg, &fakeNode{confirmedSats: 1_000_000})

	for _, regime := range []oracle.Regime{oracle.RegimeMid, oracle.RegimeHigh} {
		proposals, err := a.Plan(context.Background(), regime)
		if err != nil {
			t.Fatalf("Plan(%s): %v", regime, err)
		}
		if len(proposals) != 0 {
			t.Errorf("Plan(%s) = %d proposals, want 0 (gated off outside Low regime)", regime, len(proposals))
		}
	}
}

func TestPlanGatedOffByDisabled(t *testing.T) {
	cfg := Config{Enabled: false, TargetChannelCount: 20, MaxProposals: 3, SeedNodes: []string{"peer-a"}}
	a := newTestAutopilot(t, cfg, &fakeNode{confirmedSats: 1_000_000})

	proposals, err := a.Plan(context.Background(), oracle.RegimeLow)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("Plan() = %d proposals, want 0 when disabled", len(proposals))
	}
}

func TestPlanGatedOffByInsufficientReserve(t *testing.T) {
	cfg := Config{
		Enabled:            true,
		ReserveSats:        990_000,
		TargetChannelCount: 20,
		MaxProposals:       3,
		SeedNodes:          []string{"peer-a"},
	}
	a := newTestAutopilot(t, cfg, &fakeNode{confirmedSats: 1_000_000})

	proposals, err := a.Plan(context.Background(), oracle.RegimeLow)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("Plan() = %d proposals, want 0 when budget <= reserve", len(proposals))
	}
}

func TestPlanGatedOffAtTargetChannelCount(t *testing.T) {
	cfg := Config{
		Enabled:            true,
		ReserveSats:        10_000,
		TargetChannelCount: 1,
		MaxProposals:       3,
		SeedNodes:          []string{"peer-a"},
	}
	fn := &fakeNode{
		confirmedSats: 1_000_000,
		channels:      []remoteclient.Channel{{ChannelID: "chan-1", PeerID: "peer-existing"}},
	}
	a := newTestAutopilot(t, cfg, fn)

	proposals, err := a.Plan(context.Background(), oracle.RegimeLow)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("Plan() = %d proposals, want 0 once currentCount >= target", len(proposals))
	}
}

func TestPlanSplitsBudgetAcrossCandidates(t *testing.T) {
	cfg := Config{
		Enabled:            true,
		ReserveSats:        100_000,
		TargetChannelCount: 20,
		MaxProposals:       2,
		SeedNodes:          []string{"peer-a", "peer-b"},
	}
	a := newTestAutopilot(t, cfg, &fakeNode{confirmedSats: 1_000_000})

	proposals, err := a.Plan(context.Background(), oracle.RegimeLow)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(proposals) != 2 {
		t.Fatalf("Plan() = %d proposals, want 2", len(proposals))
	}
	wantPerPeer := int64(1_000_000-100_000) / 2
	for _, p := range proposals {
		if p.AmountSats != wantPerPeer {
			t.Errorf("proposal for %s = %d sats, want %d", p.PeerID, p.AmountSats, wantPerPeer)
		}
	}
}

func TestPlanSoftFloorSlowsPastHalfwayToTarget(t *testing.T) {
	cfg := Config{
		Enabled:            true,
		ReserveSats:        10_000,
		TargetChannelCount: 4,
		MaxProposals:       3,
		SeedNodes:          []string{"peer-a", "peer-b", "peer-c"},
	}
	fn := &fakeNode{
		confirmedSats: 1_000_000,
		channels: []remoteclient.Channel{
			{ChannelID: "c1", PeerID: "existing-1"},
			{ChannelID: "c2", PeerID: "existing-2"},
		},
	}
	a := newTestAutopilot(t, cfg, fn)

	proposals, err := a.Plan(context.Background(), oracle.RegimeLow)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(proposals) != 1 {
		t.Errorf("Plan() = %d proposals, want 1 past the soft floor (currentCount=2 >= target/2=2)", len(proposals))
	}
}

func TestRecordFailedOpenExcludesPeerFromCandidates(t *testing.T) {
	cfg := Config{
		Enabled:            true,
		ReserveSats:        100_000,
		TargetChannelCount: 20,
		MaxProposals:       3,
		SeedNodes:          []string{"peer-a"},
	}
	a := newTestAutopilot(t, cfg, &fakeNode{confirmedSats: 1_000_000})
	a.RecordFailedOpen("peer-a")

	proposals, err := a.Plan(context.Background(), oracle.RegimeLow)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("Plan() = %d proposals, want 0 with the only candidate cooling down", len(proposals))
	}
}

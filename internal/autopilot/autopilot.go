// Package autopilot implements the budget-splitting channel opener: it
// decides whether this cycle should open new channels, sources and
// filters candidates, and splits the spendable on-chain budget across
// them.
package autopilot

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lnfeed/lnfeed/internal/lnferr"
	"github.com/lnfeed/lnfeed/internal/oracle"
	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

// Config carries the tunables from [autopilot] in the daemon's configuration.
type Config struct {
	Enabled            bool
	ReserveSats        int64
	ReservePercent     float64
	MaxProposals       int
	TargetChannelCount int
	SeedNodes          []string
	CandidateAPIURL    string
}

// failedOpenCooldown is how long a peer is excluded from candidate
// sourcing after a failed open attempt.
const failedOpenCooldown = time.Hour

// Proposal is one OpenChannel the cycle should emit.
type Proposal struct {
	PeerID     string
	AmountSats int64
}

// Autopilot decides and splits channel-open budget per cycle.
type Autopilot struct {
	cfg        Config
	store      *store.Store
	client     *remoteclient.Client
	httpClient *http.Client

	cooldown map[string]time.Time
}

// New returns an Autopilot bound to st and client.
func New(cfg Config, st *store.Store, client *remoteclient.Client) *Autopilot {
	return &Autopilot{
		cfg:        cfg,
		store:      st,
		client:     client,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cooldown:   make(map[string]time.Time),
	}
}

// Plan evaluates the gate and, if it passes, returns the cycle's
// OpenChannel proposals. An empty, non-error result means the gate
// blocked this cycle (regime not Low, insufficient reserve, or already
// past the soft target).
func (a *Autopilot) Plan(ctx context.Context, regime oracle.Regime) ([]Proposal, error) {
	if !a.cfg.Enabled || regime != oracle.RegimeLow {
		return nil, nil
	}

	balance, err := a.client.OnChainBalanceOf(ctx)
	if err != nil {
		return nil, lnferr.Transport("fetching on-chain balance", err)
	}

	available := balance.ConfirmedSats - balance.ReservedSats
	reserve := a.cfg.ReserveSats
	if pctReserve := int64(a.cfg.ReservePercent * float64(balance.ConfirmedSats)); pctReserve > reserve {
		reserve = pctReserve
	}
	budget := available - reserve
	if budget <= 0 {
		return nil, nil
	}

	liveChannels, err := a.client.ListChannels(ctx)
	if err != nil {
		return nil, lnferr.Transport("listing channels for autopilot gate", err)
	}
	currentCount := len(liveChannels)
	if currentCount >= a.cfg.TargetChannelCount {
		return nil, nil
	}

	candidates, err := a.sourceCandidates(ctx, liveChannels)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	remainingToTarget := a.cfg.TargetChannelCount - currentCount
	n := a.cfg.MaxProposals
	if remainingToTarget < n {
		n = remainingToTarget
	}
	// Soft floor: once past the halfway point to target, slow down to one
	// proposal per cycle rather than spending the whole budget at once.
	if currentCount >= a.cfg.TargetChannelCount/2 {
		n = 1
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	if n <= 0 {
		return nil, nil
	}

	perPeer := budget / int64(n)
	cap5050 := budget / 2
	if perPeer > cap5050 {
		perPeer = cap5050
	}
	if perPeer <= 0 {
		return nil, nil
	}

	proposals := make([]Proposal, 0, n)
	for i := 0; i < n; i++ {
		proposals = append(proposals, Proposal{PeerID: candidates[i], AmountSats: perPeer})
	}
	return proposals, nil
}

// RecordFailedOpen cools peerID down so it is excluded from candidate
// sourcing for a while, while the cycle continues with the remaining
// proposals.
func (a *Autopilot) RecordFailedOpen(peerID string) {
	a.cooldown[peerID] = time.Now().Add(failedOpenCooldown)
}

func (a *Autopilot) sourceCandidates(ctx context.Context, liveChannels []remoteclient.Channel) ([]string, error) {
	active := make(map[string]bool, len(liveChannels))
	for _, c := range liveChannels {
		active[c.PeerID] = true
	}

	seen := make(map[string]bool)
	// ordered preserves the external endpoint's rank (seed nodes first,
	// then the ranked-candidate response in the order it was returned);
	// Plan slices its head, so re-sorting it would pick candidates by
	// lexical peer ID instead of rank.
	var ordered []string

	add := func(peerID string) {
		if peerID == "" || seen[peerID] || active[peerID] {
			return
		}
		if until, cooling := a.cooldown[peerID]; cooling && time.Now().Before(until) {
			return
		}
		seen[peerID] = true
		ordered = append(ordered, peerID)
	}

	for _, p := range a.cfg.SeedNodes {
		add(p)
	}

	if a.cfg.CandidateAPIURL != "" {
		external, err := a.fetchExternalCandidates(ctx)
		if err != nil {
			// A flaky ranked-candidate endpoint shouldn't block autopilot
			// entirely; fall back to the seed list already gathered.
			return ordered, nil
		}
		for _, p := range external {
			add(p)
		}
	}

	return ordered, nil
}

func (a *Autopilot) fetchExternalCandidates(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.CandidateAPIURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var candidates []string
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

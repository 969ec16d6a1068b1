// Package rebalancer pairs outbound-heavy channels with outbound-starved
// ones and schedules self-paying circular rebalances between them,
// bounded by per-operation and per-cycle fee budgets.
package rebalancer

import (
	"context"
	"fmt"
	"sort"

	"github.com/lnfeed/lnfeed/internal/lnferr"
	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

// Config carries the tunables from [rebalancer] in the daemon's configuration.
type Config struct {
	Enabled            bool
	PerOpAmountCapSats int64
	PerOpFeeCapMsat    int64
	PerCycleFeeCapMsat int64
	LowThreshold       float64
	HighThreshold      float64
}

// Pair is one planned source->destination rebalance.
type Pair struct {
	Source      remoteclient.Channel
	Destination remoteclient.Channel
	AmountSats  int64
	FeeBudget   int64
}

// Result is the outcome of executing one Pair.
type Result struct {
	Pair    Pair
	Success bool
	Outcome string
}

// Rebalancer plans and executes self-pay rebalances.
type Rebalancer struct {
	cfg    Config
	store  *store.Store
	client *remoteclient.Client
}

// New returns a Rebalancer bound to st and client.
func New(cfg Config, st *store.Store, client *remoteclient.Client) *Rebalancer {
	return &Rebalancer{cfg: cfg, store: st, client: client}
}

// Plan selects destination/source channels from the live snapshot and
// pairs them 1:1, capping each pair's amount and fee budget. Pairs with a
// non-positive fee budget are skipped (don't throw good money after bad).
func (r *Rebalancer) Plan(channels []remoteclient.Channel) ([]Pair, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}

	netEarnings := func(peerID string) int64 {
		peer, err := r.store.LoadPeer(peerID)
		if err != nil || peer == nil {
			return 0
		}
		return peer.FeesEarnedMsat
	}

	var destinations, sources []remoteclient.Channel
	for _, c := range channels {
		if c.CapacitySats <= 0 {
			continue
		}
		ratio := float64(c.LocalSats) / float64(c.CapacitySats)
		switch {
		case ratio < r.cfg.LowThreshold:
			destinations = append(destinations, c)
		case ratio > r.cfg.HighThreshold:
			sources = append(sources, c)
		}
	}

	sortByEarningsDesc := func(cs []remoteclient.Channel) {
		sort.Slice(cs, func(i, j int) bool {
			return netEarnings(cs[i].PeerID) > netEarnings(cs[j].PeerID)
		})
	}
	sortByEarningsDesc(destinations)
	sortByEarningsDesc(sources)

	destinations = topPercentile(destinations)
	sources = topPercentile(sources)

	n := len(destinations)
	if len(sources) < n {
		n = len(sources)
	}

	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		dst, src := destinations[i], sources[i]

		dstRatio := float64(dst.LocalSats) / float64(dst.CapacitySats)
		srcRatio := float64(src.LocalSats) / float64(src.CapacitySats)

		amount := min3(
			int64((0.5-dstRatio)*float64(dst.CapacitySats)),
			int64((srcRatio-0.5)*float64(src.CapacitySats)),
			r.cfg.PerOpAmountCapSats,
		)
		if amount <= 0 {
			continue
		}

		feeBudget := r.cfg.PerOpFeeCapMsat
		if e := netEarnings(dst.PeerID); e < feeBudget {
			feeBudget = e
		}
		if feeBudget <= 0 {
			continue
		}

		pairs = append(pairs, Pair{Source: src, Destination: dst, AmountSats: amount, FeeBudget: feeBudget})
	}

	return pairs, nil
}

// Execute runs pairs in order, enforcing the per-cycle cumulative fee
// cap: once the running total of fee budgets of successful rebalances
// plus the next pair's budget would exceed PerCycleFeeCapMsat, execution
// stops and the remaining pairs are
// dropped for this cycle.
func (r *Rebalancer) Execute(ctx context.Context, pairs []Pair) []Result {
	var results []Result
	spent := int64(0)

	for _, p := range pairs {
		if spent+p.FeeBudget > r.cfg.PerCycleFeeCapMsat {
			break
		}

		result := r.executeOne(ctx, p)
		results = append(results, result)
		if result.Success {
			spent += p.FeeBudget
		}
	}

	return results
}

func (r *Rebalancer) executeOne(ctx context.Context, p Pair) Result {
	amountMsat := p.AmountSats * 1000
	invoice, err := r.client.CreateBolt11Invoice(ctx, amountMsat, "lnfeed rebalance")
	if err != nil {
		return Result{Pair: p, Success: false, Outcome: fmt.Sprintf("create invoice: %v", lnferr.Transport("creating rebalance invoice", err))}
	}

	payment, err := r.client.PayBolt11(ctx, invoice, p.FeeBudget, p.Source.ChannelID)
	if err != nil {
		return Result{Pair: p, Success: false, Outcome: fmt.Sprintf("pay invoice: %v", lnferr.Transport("paying rebalance invoice", err))}
	}
	if !payment.Success {
		return Result{Pair: p, Success: false, Outcome: payment.FailReason}
	}

	return Result{Pair: p, Success: true, Outcome: "ok"}
}

// topPercentile returns the top 20th percentile of an earnings-descending
// slice, always at least one element when the input is non-empty.
func topPercentile(cs []remoteclient.Channel) []remoteclient.Channel {
	if len(cs) == 0 {
		return cs
	}
	n := len(cs) / 5
	if n < 1 {
		n = 1
	}
	if n > len(cs) {
		n = len(cs)
	}
	return cs[:n]
}

func min3(a, b, c int64) int64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Package judge recommends at most one channel closure per cycle: peers
// earning well below the capacity-weighted median rate, by more than the
// cost of reopening, are candidates for closure.
package judge

import (
	"sort"
	"time"

	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

// Config carries the tunables from [judge] in the daemon's configuration.
type Config struct {
	Enabled           bool
	MinChannelAgeDays int
	ReopenCostSats    int64
}

// Candidate is a single channel judged to be worth closing.
type Candidate struct {
	ChannelID   string
	PeerID      string
	Improvement float64
}

// Judge computes the weighted-median earnings rate and flags underperformers.
type Judge struct {
	cfg   Config
	store *store.Store
}

// New returns a Judge bound to st.
func New(cfg Config, st *store.Store) *Judge {
	return &Judge{cfg: cfg, store: st}
}

type eligiblePeer struct {
	channelID string
	peerID    string
	size      float64
	earned    float64
	rate      float64
}

// Recommend evaluates every live channel old enough to be eligible and
// returns at most one closure candidate: the one with the largest positive
// improvement over its reopen cost. A nil, nil result means no channel
// clears the bar this cycle.
func (j *Judge) Recommend(channels []remoteclient.Channel, now time.Time) (*Candidate, error) {
	if !j.cfg.Enabled {
		return nil, nil
	}

	minAge := time.Duration(j.cfg.MinChannelAgeDays) * 24 * time.Hour

	var eligible []eligiblePeer
	for _, c := range channels {
		if c.CapacitySats <= 0 {
			continue
		}
		lifecycle, err := j.store.LoadLifecycle(c.ChannelID)
		if err != nil {
			return nil, err
		}
		if lifecycle == nil || now.Sub(lifecycle.OpenedAt) < minAge {
			continue
		}

		peer, err := j.store.LoadPeer(c.PeerID)
		if err != nil {
			return nil, err
		}
		earnedMsat := int64(0)
		if peer != nil {
			earnedMsat = peer.FeesEarnedMsat
		}

		size := float64(c.CapacitySats)
		eligible = append(eligible, eligiblePeer{
			channelID: c.ChannelID,
			peerID:    c.PeerID,
			size:      size,
			earned:    float64(earnedMsat),
			rate:      float64(earnedMsat) / size,
		})
	}

	if len(eligible) == 0 {
		return nil, nil
	}

	medianRate := weightedMedianRate(eligible)

	var best *Candidate
	bestImprovement := 0.0
	for _, p := range eligible {
		if p.rate >= medianRate {
			continue
		}
		improvement := medianRate*p.size - p.earned - float64(j.cfg.ReopenCostSats)*1000
		if improvement > 0 && improvement > bestImprovement {
			best = &Candidate{ChannelID: p.channelID, PeerID: p.peerID, Improvement: improvement}
			bestImprovement = improvement
		}
	}

	return best, nil
}

// weightedMedianRate returns the capacity-weighted median of each peer's
// earnings rate: peers are sorted by rate, and the median is the rate at
// which cumulative weight first reaches half the total weight.
func weightedMedianRate(peers []eligiblePeer) float64 {
	sorted := make([]eligiblePeer, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].rate < sorted[j].rate })

	totalWeight := 0.0
	for _, p := range sorted {
		totalWeight += p.size
	}
	if totalWeight <= 0 {
		return 0
	}

	half := totalWeight / 2
	cumulative := 0.0
	for _, p := range sorted {
		cumulative += p.size
		if cumulative >= half {
			return p.rate
		}
	}
	return sorted[len(sorted)-1].rate
}

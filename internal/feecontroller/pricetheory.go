package feecontroller

import (
	"math"
	"math/rand"

	"github.com/lnfeed/lnfeed/internal/lnferr"
	"github.com/lnfeed/lnfeed/internal/store"
)

const (
	minStep = -4
	maxStep = 4
	// zeroEarningsEpsilonMsat is the cumulative-earnings-while-in-play
	// floor below which a card is considered a dud and retired once it
	// reaches min_cycles_per_card. Configuration-driven thresholds like
	// bin count and card age are explicit config; this one constant is
	// small enough (1 sat) that it is left fixed per the exploration
	// design notes.
	zeroEarningsEpsilonMsat = 1000
)

// PriceTheory is the per-peer exploratory bandit: one active card (a
// price step s in [-4, 4] with multiplier 1.2^s) at a time, persisted so
// its state survives a restart.
type PriceTheory struct {
	store            *store.Store
	minCyclesPerCard int
	maxAge           int
	rng              *rand.Rand
}

// NewPriceTheory returns a PriceTheory bound to st with the given card-age policy.
func NewPriceTheory(st *store.Store, minCyclesPerCard, maxAge int, seed int64) *PriceTheory {
	return &PriceTheory{
		store:            st,
		minCyclesPerCard: minCyclesPerCard,
		maxAge:           maxAge,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// Modifier plays the peer's current card, scores it against
// totalEarningsMsat (the peer's cumulative fees earned, as tracked by
// EarningsTracker), retires and redraws if the card has run its course,
// and returns the multiplier to apply this cycle.
func (pt *PriceTheory) Modifier(peerID string, totalEarningsMsat int64) (float64, error) {
	hand, err := pt.store.PriceTheoryLoad(peerID)
	if err != nil {
		return 0, lnferr.Store("loading price theory hand", err)
	}

	if hand == nil {
		hand = &store.PriceTheoryHand{
			PeerID:               peerID,
			ActiveStep:           0,
			BaselineEarningsMsat: totalEarningsMsat,
			DrawnSteps:           []int{0},
		}
		if err := pt.store.PriceTheorySave(peerID, hand); err != nil {
			return 0, lnferr.Store("saving cold-start price theory hand", err)
		}
		return stepMultiplier(hand.ActiveStep), nil
	}

	delta := totalEarningsMsat - hand.BaselineEarningsMsat
	if delta < 0 {
		delta = 0
	}
	hand.ActiveEarningsMsat += delta
	hand.BaselineEarningsMsat = totalEarningsMsat
	hand.ActiveAge++

	dud := hand.ActiveAge >= pt.minCyclesPerCard && hand.ActiveEarningsMsat < zeroEarningsEpsilonMsat
	expired := hand.ActiveAge >= pt.maxAge
	if dud || expired {
		hand.DrawnSteps = appendUnique(hand.DrawnSteps, hand.ActiveStep)
		hand.ActiveStep = pt.drawStep(hand.DrawnSteps)
		hand.ActiveAge = 0
		hand.ActiveEarningsMsat = 0
	}

	if err := pt.store.PriceTheorySave(peerID, hand); err != nil {
		return 0, lnferr.Store("saving price theory hand", err)
	}

	return stepMultiplier(hand.ActiveStep), nil
}

// drawStep picks the next card, biased toward steps not yet in drawn:
// if any step in [-4, 4] hasn't been tried, pick uniformly among those;
// otherwise every step has been explored at least once and we pick
// uniformly among all of them.
func (pt *PriceTheory) drawStep(drawn []int) int {
	seen := make(map[int]bool, len(drawn))
	for _, s := range drawn {
		seen[s] = true
	}

	var unexplored []int
	for s := minStep; s <= maxStep; s++ {
		if !seen[s] {
			unexplored = append(unexplored, s)
		}
	}

	if len(unexplored) > 0 {
		return unexplored[pt.rng.Intn(len(unexplored))]
	}
	return minStep + pt.rng.Intn(maxStep-minStep+1)
}

func stepMultiplier(step int) float64 {
	return math.Pow(1.2, float64(step))
}

func appendUnique(steps []int, s int) []int {
	for _, x := range steps {
		if x == s {
			return steps
		}
	}
	return append(steps, s)
}

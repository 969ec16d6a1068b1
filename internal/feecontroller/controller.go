package feecontroller

import (
	"math"

	"github.com/lnfeed/lnfeed/internal/lnferr"
	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/store"
)

// Config carries the tunables from [fees] in the daemon's configuration.
type Config struct {
	BasePPM      int64
	BaseFeeMsat  int64
	MinPPM       int64
	MaxPPM       int64
	MinBaseMsat  int64
	MaxBaseMsat  int64
	BalanceBins  int
	MinChangePPM int64
}

// Update is one emitted fee-policy change for a single channel.
type Update struct {
	ChannelID      string
	PeerID         string
	TargetBaseMsat int64
	TargetPPM      int64
	BalanceMod     float64
	PriceMod       float64
}

// Controller computes per-channel fee targets and decides which ones
// clear the minimum-change threshold worth emitting.
type Controller struct {
	cfg   Config
	store *store.Store
	price *PriceTheory
}

// New returns a Controller bound to st, with its own PriceTheory bandit
// seeded from minCyclesPerCard/maxAge if priceTheoryEnabled.
func New(cfg Config, st *store.Store, priceTheoryEnabled bool, minCyclesPerCard, maxAge int, seed int64) *Controller {
	var pt *PriceTheory
	if priceTheoryEnabled {
		pt = NewPriceTheory(st, minCyclesPerCard, maxAge, seed)
	}
	return &Controller{cfg: cfg, store: st, price: pt}
}

// Plan computes the target fee for channel and reports an Update only if
// it differs from the channel's current policy beyond MinChangePPM (to
// avoid channel_update spam). ok is false when no update is warranted.
func (c *Controller) Plan(channel remoteclient.Channel) (update Update, ok bool, err error) {
	balanceMod := BalanceModder(channel.LocalSats, channel.CapacitySats, c.cfg.BalanceBins)

	priceMod := 1.0
	if c.price != nil {
		peer, loadErr := c.store.LoadPeer(channel.PeerID)
		if loadErr != nil {
			return Update{}, false, lnferr.Store("loading peer for price theory", loadErr)
		}
		total := int64(0)
		if peer != nil {
			total = peer.FeesEarnedMsat
		}
		priceMod, err = c.price.Modifier(channel.PeerID, total)
		if err != nil {
			return Update{}, false, err
		}
	}

	targetPPM := clampInt(int64(math.Round(float64(c.cfg.BasePPM)*balanceMod*priceMod)), c.cfg.MinPPM, c.cfg.MaxPPM)
	targetBase := clampInt(int64(math.Round(float64(c.cfg.BaseFeeMsat)*balanceMod*priceMod)), c.cfg.MinBaseMsat, c.cfg.MaxBaseMsat)

	if absInt64(targetPPM-channel.FeePPM) < c.cfg.MinChangePPM && targetBase == channel.BaseFeeMsat {
		return Update{}, false, nil
	}

	return Update{
		ChannelID:      channel.ChannelID,
		PeerID:         channel.PeerID,
		TargetBaseMsat: targetBase,
		TargetPPM:      targetPPM,
		BalanceMod:     balanceMod,
		PriceMod:       priceMod,
	}, true, nil
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

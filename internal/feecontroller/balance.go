// Package feecontroller computes each channel's target (base_fee_msat,
// fee_ppm) from a balance-based analytic term multiplied by a
// price-theory exploration term, then clamps and emits only changes that
// clear a minimum-change threshold.
package feecontroller

import "math"

// ln50 is the natural log of 50, the balance modder's extremity constant:
// at p̂=0 the multiplier is 50 (discourage further drain), at p̂=1 it's
// 1/50 (attract inbound).
var ln50 = math.Log(50)

// boundaryEpsilon is the tolerance for recognizing p/width as landing
// exactly on a bin boundary despite floating-point division noise (e.g.
// 0.1/0.05 not computing to exactly 2.0).
const boundaryEpsilon = 1e-9

// QuantizeBalance maps a raw local-spendable ratio p into one of bins
// equal-width buckets and returns the bucket's midpoint. Quantizing
// prevents an outside fee observer from reading the exact channel
// balance from the published fee alone, and guarantees that two channels
// whose ratio falls in the same bin get an identical balance_mod.
func QuantizeBalance(p float64, bins int) float64 {
	if bins <= 0 {
		bins = 1
	}
	p = clampFloat(p, 0, 1)

	// p=0.5 is its own mirror point; report it directly rather than
	// through binning, since with an even bin count no single bin is
	// centered there.
	if math.Abs(p-0.5) < boundaryEpsilon {
		return 0.5
	}

	width := 1.0 / float64(bins)
	value := p / width

	var bin int
	if m := math.Round(value); math.Abs(value-m) < boundaryEpsilon {
		// Exact bin-boundary ratio. Flooring always snaps it into the bin
		// above (e.g. p=0.10 would land in [0.10,0.15) instead of
		// [0.05,0.10)), which is asymmetric around p=0.5: both p and 1-p
		// would snap up, shifting balance_mod(p)*balance_mod(1-p) away
		// from 1. Snap below-midpoint boundaries down into the lower bin
		// instead so the two corrections cancel.
		bin = int(m)
		if p < 0.5 && bin > 0 {
			bin--
		}
	} else {
		bin = int(math.Floor(value))
	}

	if bin >= bins {
		bin = bins - 1
	}
	if bin < 0 {
		bin = 0
	}
	return width*float64(bin) + width/2
}

// BalanceModder returns exp(ln(50) * (0.5 - p̂)) for the quantized ratio
// p̂. At p̂=0.5 the multiplier is 1 (no adjustment).
func BalanceModder(localSpendable, capacity int64, bins int) float64 {
	if capacity <= 0 {
		return 1
	}
	p := float64(localSpendable) / float64(capacity)
	phat := QuantizeBalance(p, bins)
	return math.Exp(ln50 * (0.5 - phat))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

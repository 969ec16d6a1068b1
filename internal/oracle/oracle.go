// Package oracle implements the on-chain fee-regime detector: it polls an
// external fee estimator, keeps a bounded rolling window of samples, and
// classifies the current regime with hysteresis so Autopilot sees a
// stable signal instead of per-cycle noise.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/lnfeed/lnfeed/internal/lnferr"
	"github.com/lnfeed/lnfeed/internal/store"
)

// Regime is the discrete fee-level label consumed by Autopilot's open gate.
type Regime string

const (
	RegimeLow  Regime = "Low"
	RegimeMid  Regime = "Mid"
	RegimeHigh Regime = "High"
)

const (
	windowRetention   = 7 * 24 * time.Hour
	minSamplesForRead = 24
	lowPercentile     = 0.33
	highPercentile    = 0.67
)

// Oracle polls url (an HTTP GET returning fastest/half-hour/hour sat/vB
// estimates, in the mempool.space response shape) and tracks the
// classified regime with hysteresis across calls to Sample.
type Oracle struct {
	url        string
	httpClient *http.Client
	store      *store.Store

	reportedRegime      Regime
	lastRaw             Regime
	consecutiveFailures int
}

// New returns an Oracle polling url, with regime state seeded to Mid
// (the conservative default until enough history accumulates).
func New(url string, st *store.Store) *Oracle {
	return &Oracle{
		url:            url,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		store:          st,
		reportedRegime: RegimeMid,
		lastRaw:        RegimeMid,
	}
}

type feeEstimateResponse struct {
	FastestFee  float64 `json:"fastestFee"`
	HalfHourFee float64 `json:"halfHourFee"`
	HourFee     float64 `json:"hourFee"`
}

// Sample fetches one fee estimate, appends it to the store's rolling
// window, prunes anything older than 7 days, and recomputes the
// hysteresis-filtered regime. A failed fetch retains the existing window
// and does not change the reported regime beyond what N consecutive
// failures force (see CurrentRegime).
func (o *Oracle) Sample(ctx context.Context) error {
	estimate, err := o.fetch(ctx)
	if err != nil {
		o.consecutiveFailures++
		return lnferr.Oracle("fetching fee estimate", err)
	}
	o.consecutiveFailures = 0

	now := time.Now()
	if err := o.store.RecordFeeSample(store.FeeSample{
		SampledAt:        now,
		FastestSatPerVB:  estimate.FastestFee,
		HalfHourSatPerVB: estimate.HalfHourFee,
		HourSatPerVB:     estimate.HourFee,
	}); err != nil {
		return lnferr.Store("recording fee sample", err)
	}

	if err := o.store.PruneFeeSamples(now.Add(-windowRetention)); err != nil {
		return lnferr.Store("pruning fee samples", err)
	}

	return o.updateRegime()
}

func (o *Oracle) fetch(ctx context.Context) (*feeEstimateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var est feeEstimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&est); err != nil {
		return nil, err
	}
	return &est, nil
}

// CurrentRegime returns the most recently computed regime. If the
// external oracle has been failing and the window is empty, it falls
// back to Mid rather than report a stale or fabricated extreme.
func (o *Oracle) CurrentRegime() Regime {
	if o.consecutiveFailures > 0 {
		if samples, err := o.store.LoadFeeSamples(); err == nil && len(samples) == 0 {
			return RegimeMid
		}
	}
	return o.reportedRegime
}

// updateRegime reclassifies the window's most recent sample and applies
// the hysteresis rule: a single sample pointing to the opposite extreme
// moves the reported regime to Mid first; only a second consecutive
// sample agreeing with that extreme flips the reported regime to it.
func (o *Oracle) updateRegime() error {
	samples, err := o.store.LoadFeeSamples()
	if err != nil {
		return lnferr.Store("loading fee samples", err)
	}

	if len(samples) < minSamplesForRead {
		o.reportedRegime = RegimeMid
		return nil
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.HourSatPerVB
	}
	sort.Float64s(values)

	latest := samples[len(samples)-1].HourSatPerVB
	pct := percentileRank(values, latest)

	raw := RegimeMid
	switch {
	case pct < lowPercentile:
		raw = RegimeLow
	case pct > highPercentile:
		raw = RegimeHigh
	}

	switch raw {
	case RegimeLow:
		if o.lastRaw == RegimeLow {
			o.reportedRegime = RegimeLow
		} else {
			o.reportedRegime = RegimeMid
		}
	case RegimeHigh:
		if o.lastRaw == RegimeHigh {
			o.reportedRegime = RegimeHigh
		} else {
			o.reportedRegime = RegimeMid
		}
	default:
		o.reportedRegime = RegimeMid
	}

	o.lastRaw = raw
	return nil
}

// percentileRank returns the fraction of sorted values <= v.
func percentileRank(sorted []float64, v float64) float64 {
	idx := sort.SearchFloat64s(sorted, v)
	// advance past any values equal to v to count the full tie group as "<=".
	for idx < len(sorted) && sorted[idx] == v {
		idx++
	}
	return float64(idx) / float64(len(sorted))
}

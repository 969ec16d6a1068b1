package oracle

import (
	"testing"
	"time"

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

func seedSamples(t *testing.T, s *store.Store, rates []float64) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(rates)) * time.Hour)
	for i, r := range rates {
		if err := s.RecordFeeSample(store.FeeSample{
			SampledAt:        base.Add(time.Duration(i) * time.Hour),
			FastestSatPerVB:  r,
			HalfHourSatPerVB: r,
			HourSatPerVB:     r,
		}); err != nil {
			t.Fatalf("RecordFeeSample() error = %v", err)
		}
	}
}

func TestCurrentRegimeMidUntilEnoughSamples(t *testing.T) {
	s := openTestStore(t)
	o := New("http://unused.invalid", s)

	seedSamples(t, s, make([]float64, 10))
	if err := o.updateRegime(); err != nil {
		t.Fatalf("updateRegime() error = %v", err)
	}

	if got := o.CurrentRegime(); got != RegimeMid {
		t.Fatalf("CurrentRegime() = %v, want Mid with fewer than 24 samples", got)
	}
}

func TestRegimeHysteresisRequiresTwoConsecutiveSamples(t *testing.T) {
	s := openTestStore(t)
	o := New("http://unused.invalid", s)

	// 24 descending values so the latest (last-appended) sample sits at
	// the bottom of the window.
	rates := make([]float64, 24)
	for i := range rates {
		rates[i] = float64(24 - i)
	}
	seedSamples(t, s, rates)
	if err := o.updateRegime(); err != nil {
		t.Fatalf("updateRegime() error = %v", err)
	}
	if got := o.CurrentRegime(); got != RegimeMid {
		t.Fatalf("first classification should still be conservative on first call, got %v", got)
	}

	// Re-run with the same tail: a second consecutive Low-raw observation.
	if err := o.updateRegime(); err != nil {
		t.Fatalf("updateRegime() error = %v", err)
	}
	if got := o.CurrentRegime(); got != RegimeLow {
		t.Fatalf("CurrentRegime() after two consecutive low samples = %v, want Low", got)
	}

	// Append a single high sample; must not jump straight back to High.
	if err := s.RecordFeeSample(store.FeeSample{SampledAt: time.Now(), FastestSatPerVB: 1000, HalfHourSatPerVB: 1000, HourSatPerVB: 1000}); err != nil {
		t.Fatalf("RecordFeeSample() error = %v", err)
	}
	if err := o.updateRegime(); err != nil {
		t.Fatalf("updateRegime() error = %v", err)
	}
	if got := o.CurrentRegime(); got == RegimeHigh {
		t.Fatal("a single high sample must not flip Low directly to High")
	}
}

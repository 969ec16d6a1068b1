package feecontroller

import (
	"testing"

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

func TestPriceTheoryColdStart(t *testing.T) {
	s := openTestStore(t)
	pt := NewPriceTheory(s, 5, 60, 1)

	mod, err := pt.Modifier("peer-1", 0)
	if err != nil {
		t.Fatalf("Modifier() error = %v", err)
	}
	if mod != 1.0 {
		t.Fatalf("cold-start multiplier = %v, want 1.0 (step 0)", mod)
	}
}

func TestPriceTheoryRotatesAfterZeroEarnings(t *testing.T) {
	s := openTestStore(t)
	pt := NewPriceTheory(s, 5, 60, 1)

	// Cold start deals step 0.
	if _, err := pt.Modifier("peer-1", 0); err != nil {
		t.Fatalf("Modifier() error = %v", err)
	}

	// 10 cycles with zero earnings attributed; min_cycles_per_card=5 means
	// the card must retire well before cycle 10.
	for i := 0; i < 10; i++ {
		if _, err := pt.Modifier("peer-1", 0); err != nil {
			t.Fatalf("Modifier() cycle %d error = %v", i, err)
		}
	}

	hand, err := s.PriceTheoryLoad("peer-1")
	if err != nil {
		t.Fatalf("PriceTheoryLoad() error = %v", err)
	}
	if hand.ActiveStep == 0 {
		t.Fatal("expected the zero-earning card to have retired to a non-zero step")
	}

	// Persistence across "restart": a fresh PriceTheory reading the same
	// store must see the same active step.
	restarted := NewPriceTheory(s, 5, 60, 2)
	hand2, err := s.PriceTheoryLoad("peer-1")
	if err != nil {
		t.Fatalf("PriceTheoryLoad() after restart error = %v", err)
	}
	if hand2.ActiveStep != hand.ActiveStep {
		t.Fatalf("active step did not survive restart: got %d, want %d", hand2.ActiveStep, hand.ActiveStep)
	}
	_ = restarted
}

func TestPriceTheoryKeepsEarningCard(t *testing.T) {
	s := openTestStore(t)
	pt := NewPriceTheory(s, 5, 60, 1)

	if _, err := pt.Modifier("peer-1", 0); err != nil {
		t.Fatalf("Modifier() error = %v", err)
	}

	total := int64(0)
	for i := 0; i < 10; i++ {
		total += 10_000 // well above the zero-earnings epsilon each cycle
		if _, err := pt.Modifier("peer-1", total); err != nil {
			t.Fatalf("Modifier() cycle %d error = %v", i, err)
		}
	}

	hand, err := s.PriceTheoryLoad("peer-1")
	if err != nil {
		t.Fatalf("PriceTheoryLoad() error = %v", err)
	}
	if hand.ActiveStep != 0 {
		t.Fatalf("an earning card must not be forced to rotate before max_age, got step %d", hand.ActiveStep)
	}
}

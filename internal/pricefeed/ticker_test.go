package pricefeed

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/store"
)

func TestWalkPrice_StaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	price := decimal.NewFromInt(1000)

	// Max move is ±0.05% plus the 2dp rounding step.
	maxDelta := decimal.NewFromFloat(0.51)

	for i := 0; i < 1000; i++ {
		next := walkPrice(price, rng)
		delta := next.Sub(price).Abs()
		if delta.GreaterThan(maxDelta) {
			t.Fatalf("step %d: move %s exceeds bound %s", i, delta, maxDelta)
		}
		if !next.IsPositive() {
			t.Fatalf("step %d: price went non-positive: %s", i, next)
		}
		price = next
	}
}

func TestTick_SeedsInitialQuote(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	if err := SeedStocks(ctx, ms); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ticker := NewTicker(ms, nil, time.Second)
	ticker.Tick(ctx)

	stocks, _ := ms.ListStocks(ctx)
	if len(stocks) == 0 {
		t.Fatal("no stocks seeded")
	}

	for _, s := range stocks {
		q, err := ms.GetQuote(ctx, s.Symbol)
		if err != nil {
			t.Fatalf("no quote for %s after tick: %v", s.Symbol, err)
		}
		if q.Price.LessThan(decimal.NewFromInt(100)) || q.Price.GreaterThanOrEqual(decimal.NewFromInt(5000)) {
			t.Errorf("%s initial price %s outside [100, 5000)", s.Symbol, q.Price)
		}
		if !q.BasePrice.Equal(q.Price) {
			t.Errorf("%s base price %s != initial price %s", s.Symbol, q.BasePrice, q.Price)
		}
		if q.Status != "neutral" {
			t.Errorf("%s initial status = %s, want neutral", s.Symbol, q.Status)
		}
	}
}

func TestTick_WalksExistingQuote(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	if err := SeedStocks(ctx, ms); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ticker := NewTicker(ms, nil, time.Second)
	ticker.Tick(ctx) // seed quotes
	before, _ := ms.GetQuote(ctx, "TCS")

	ticker.Tick(ctx) // walk
	after, err := ms.GetQuote(ctx, "TCS")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	// Base price is sticky; only the live price walks.
	if !after.BasePrice.Equal(before.BasePrice) {
		t.Errorf("base price moved from %s to %s", before.BasePrice, after.BasePrice)
	}

	wantChange := after.Price.Sub(after.BasePrice).Round(2)
	if !after.Change.Equal(wantChange) {
		t.Errorf("change = %s, want %s", after.Change, wantChange)
	}

	wantStatus := "down"
	if after.Price.GreaterThanOrEqual(after.BasePrice) {
		wantStatus = "up"
	}
	if after.Status != wantStatus {
		t.Errorf("status = %s, want %s", after.Status, wantStatus)
	}
}

func TestStoreOracle_Quote(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	if err := SeedStocks(ctx, ms); err != nil {
		t.Fatalf("seed: %v", err)
	}
	NewTicker(ms, nil, time.Second).Tick(ctx)

	oracle := NewStoreOracle(ms)
	q, err := oracle.Quote(ctx, "INFY")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Symbol != "INFY" || !q.Price.IsPositive() {
		t.Errorf("bad quote: %+v", q)
	}

	if _, err := oracle.Quote(ctx, "NOPE"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

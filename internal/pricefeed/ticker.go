package pricefeed

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
)

// maxMovePercent bounds one tick's price move at ±0.05%.
const maxMovePercent = 0.05

// Initial price range for a symbol's first quote: [100, 5000).
const (
	initialPriceFloor = 100
	initialPriceSpan  = 4900
)

// Ticker walks every listed symbol's price on a fixed interval and
// broadcasts each updated quote over the hub.
type Ticker struct {
	store    store.Store
	hub      *Hub
	interval time.Duration
	rng      *rand.Rand
}

// NewTicker creates a price ticker. Pass nil for hub if broadcasting is not
// needed (tests).
func NewTicker(st store.Store, hub *Hub, interval time.Duration) *Ticker {
	seed := uint64(time.Now().UnixNano())
	return &Ticker{
		store:    st,
		hub:      hub,
		interval: interval,
		rng:      rand.New(rand.NewPCG(seed, seed>>32)),
	}
}

// Run ticks until ctx is cancelled. Must be called in a goroutine.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	slog.Info("price ticker started", "interval", t.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("price ticker stopped")
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick walks every listed symbol once. A failure on one symbol is logged and
// does not stop the rest of the cycle.
func (t *Ticker) Tick(ctx context.Context) {
	stocks, err := t.store.ListStocks(ctx)
	if err != nil {
		slog.Error("price tick: list stocks failed", "err", err)
		return
	}

	for _, s := range stocks {
		if err := t.tickSymbol(ctx, s.Symbol); err != nil {
			slog.Error("price tick failed", "symbol", s.Symbol, "err", err)
		}
	}

	metrics.PriceTicks.Inc()
}

func (t *Ticker) tickSymbol(ctx context.Context, symbol string) error {
	now := time.Now().UTC()

	q, err := t.store.GetQuote(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		// First sighting: seed the quote at a random initial price, which
		// also becomes the base for cumulative change tracking.
		initial := decimal.NewFromInt(int64(t.rng.IntN(initialPriceSpan)) + initialPriceFloor)
		q = &model.PriceQuote{
			Symbol:    symbol,
			Price:     initial,
			BasePrice: initial,
			Status:    "neutral",
			UpdatedAt: now,
		}
		if err := t.store.UpsertQuote(ctx, q); err != nil {
			return err
		}
		t.broadcast(q)
		return nil
	}
	if err != nil {
		return err
	}

	base := q.BasePrice
	if !base.IsPositive() {
		base = q.Price
	}

	newPrice := walkPrice(q.Price, t.rng)
	change := newPrice.Sub(base).Round(2)

	changePercent := decimal.Zero
	if base.IsPositive() {
		changePercent = change.Div(base).Mul(decimal.NewFromInt(100)).Round(4)
	}

	status := "down"
	if newPrice.GreaterThanOrEqual(base) {
		status = "up"
	}

	q.Price = newPrice
	q.BasePrice = base
	q.Change = change
	q.ChangePercent = changePercent
	q.Status = status
	q.UpdatedAt = now

	if err := t.store.UpsertQuote(ctx, q); err != nil {
		return err
	}

	t.broadcast(q)
	return nil
}

func (t *Ticker) broadcast(q *model.PriceQuote) {
	if t.hub == nil {
		return
	}
	t.hub.Broadcast(TickMessage{
		Type:          "price_tick",
		Symbol:        q.Symbol,
		Price:         q.Price.String(),
		Change:        q.Change.String(),
		ChangePercent: q.ChangePercent.String(),
		Status:        q.Status,
	})
}

// walkPrice applies one random move of at most ±0.05% and rounds to 2dp.
func walkPrice(price decimal.Decimal, rng *rand.Rand) decimal.Decimal {
	pct := (rng.Float64()*2 - 1) * maxMovePercent
	move := price.Mul(decimal.NewFromFloat(pct / 100))
	return price.Add(move).Round(2)
}

// Package pricefeed simulates the market: a master list of tradable symbols,
// a random-walk ticker that refreshes every quote on a fixed interval, and a
// WebSocket hub broadcasting each tick. The settlement engine reads prices
// only through its Oracle interface, which StoreOracle satisfies.
package pricefeed

import (
	"context"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
)

// StoreOracle serves the latest persisted quote for a symbol. Reads are
// lock-free from the engine's point of view; the ticker refreshes quotes
// independently.
type StoreOracle struct {
	store store.Store
}

// NewStoreOracle creates a quote oracle backed by the store.
func NewStoreOracle(st store.Store) *StoreOracle {
	return &StoreOracle{store: st}
}

// Quote returns the most recent price for symbol.
func (o *StoreOracle) Quote(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	return o.store.GetQuote(ctx, symbol)
}

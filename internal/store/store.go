// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
// A missing Position means a flat holding, a defined state rather than a
// failure, so callers distinguish it with errors.Is.
var ErrNotFound = errors.New("not found")

// TradeUpdate is the full effect of one settled trade. Implementations must
// apply all three mutations atomically: a storage failure may not leave
// wallet, position and order log mutually inconsistent.
type TradeUpdate struct {
	AccountID  string
	NewBalance decimal.Decimal

	// Position is upserted when non-nil. DeleteSymbol, when set, removes the
	// position row for that symbol instead (a fully closed holding).
	Position     *model.Position
	DeleteSymbol string

	Order *model.Order
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Wallets ---

	// CreateWallet persists a new wallet. Fails if one exists for the account.
	CreateWallet(ctx context.Context, w *model.Wallet) error

	// GetWallet retrieves the wallet for an account.
	GetWallet(ctx context.Context, accountID string) (*model.Wallet, error)

	// ApplyWalletChange atomically persists a new balance and appends the
	// matching audit Transaction.
	ApplyWalletChange(ctx context.Context, accountID string, newBalance decimal.Decimal, txn *model.Transaction) error

	// TransactionsByAccount returns the wallet audit trail, newest first.
	TransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error)

	// --- Positions ---

	// GetPosition retrieves one holding; ErrNotFound means flat.
	GetPosition(ctx context.Context, accountID, symbol string) (*model.Position, error)

	// ListPositions returns all holdings for an account.
	ListPositions(ctx context.Context, accountID string) ([]model.Position, error)

	// --- Trades ---

	// ApplyTrade atomically applies one settled trade: wallet balance,
	// position upsert/delete, and the immutable order record.
	ApplyTrade(ctx context.Context, u *TradeUpdate) error

	// OrdersByAccount returns the trade log for an account, newest first.
	OrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error)

	// RealizedPnL sums pnl over all SELL orders for an account.
	RealizedPnL(ctx context.Context, accountID string) (decimal.Decimal, error)

	// --- Stocks & quotes ---

	// CreateStock adds a symbol to the master list. No-op if present.
	CreateStock(ctx context.Context, s *model.Stock) error

	// ListStocks returns the tradable-symbol master list.
	ListStocks(ctx context.Context) ([]model.Stock, error)

	// GetQuote retrieves the latest price for a symbol.
	GetQuote(ctx context.Context, symbol string) (*model.PriceQuote, error)

	// UpsertQuote writes the latest tick for a symbol.
	UpsertQuote(ctx context.Context, q *model.PriceQuote) error
}

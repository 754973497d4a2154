package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot reads: quotes (hit on every trade) and wallets. Writes go
// to the primary store and invalidate the cache; reads check Redis first then
// fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	if err := s.primary.CreateWallet(ctx, w); err != nil {
		return err
	}
	s.cacheWallet(ctx, w)
	return nil
}

func (s *CachedStore) ApplyWalletChange(ctx context.Context, accountID string, newBalance decimal.Decimal, txn *model.Transaction) error {
	if err := s.primary.ApplyWalletChange(ctx, accountID, newBalance, txn); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, walletKey(accountID))
	return nil
}

func (s *CachedStore) ApplyTrade(ctx context.Context, u *TradeUpdate) error {
	if err := s.primary.ApplyTrade(ctx, u); err != nil {
		return err
	}
	s.rdb.Del(ctx, walletKey(u.AccountID))
	return nil
}

func (s *CachedStore) UpsertQuote(ctx context.Context, q *model.PriceQuote) error {
	if err := s.primary.UpsertQuote(ctx, q); err != nil {
		return err
	}
	s.cacheQuote(ctx, q)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetWallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	data, err := s.rdb.Get(ctx, walletKey(accountID)).Bytes()
	if err == nil {
		var w model.Wallet
		if json.Unmarshal(data, &w) == nil {
			return &w, nil
		}
	}

	w, err := s.primary.GetWallet(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.cacheWallet(ctx, w)
	return w, nil
}

func (s *CachedStore) GetQuote(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	data, err := s.rdb.Get(ctx, quoteKey(symbol)).Bytes()
	if err == nil {
		var q model.PriceQuote
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	q, err := s.primary.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cacheQuote(ctx, q)
	return q, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) TransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	return s.primary.TransactionsByAccount(ctx, accountID)
}

func (s *CachedStore) GetPosition(ctx context.Context, accountID, symbol string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, accountID, symbol)
}

func (s *CachedStore) ListPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	return s.primary.ListPositions(ctx, accountID)
}

func (s *CachedStore) OrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error) {
	return s.primary.OrdersByAccount(ctx, accountID)
}

func (s *CachedStore) RealizedPnL(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.primary.RealizedPnL(ctx, accountID)
}

func (s *CachedStore) CreateStock(ctx context.Context, st *model.Stock) error {
	return s.primary.CreateStock(ctx, st)
}

func (s *CachedStore) ListStocks(ctx context.Context) ([]model.Stock, error) {
	return s.primary.ListStocks(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheWallet(ctx context.Context, w *model.Wallet) {
	if data, err := json.Marshal(w); err == nil {
		s.rdb.Set(ctx, walletKey(w.AccountID), data, s.ttl)
	}
}

func (s *CachedStore) cacheQuote(ctx context.Context, q *model.PriceQuote) {
	if data, err := json.Marshal(q); err == nil {
		s.rdb.Set(ctx, quoteKey(q.Symbol), data, s.ttl)
	}
}

func walletKey(accountID string) string { return fmt.Sprintf("wallet:%s", accountID) }
func quoteKey(symbol string) string     { return fmt.Sprintf("quote:%s", symbol) }

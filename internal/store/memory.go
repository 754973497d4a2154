package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	wallets   map[string]*model.Wallet
	positions map[string]map[string]*model.Position // accountID → symbol → position
	orders    []model.Order
	txns      []model.Transaction
	stocks    map[string]*model.Stock
	quotes    map[string]*model.PriceQuote
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:   make(map[string]*model.Wallet),
		positions: make(map[string]map[string]*model.Position),
		stocks:    make(map[string]*model.Stock),
		quotes:    make(map[string]*model.PriceQuote),
	}
}

// --- Wallets ---

func (s *MemoryStore) CreateWallet(_ context.Context, w *model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[w.AccountID]; ok {
		return fmt.Errorf("wallet for account %s already exists", w.AccountID)
	}

	// Store a copy to avoid external mutation.
	copy := *w
	s.wallets[w.AccountID] = &copy
	return nil
}

func (s *MemoryStore) GetWallet(_ context.Context, accountID string) (*model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[accountID]
	if !ok {
		return nil, fmt.Errorf("wallet for account %s: %w", accountID, ErrNotFound)
	}
	copy := *w
	return &copy, nil
}

func (s *MemoryStore) ApplyWalletChange(_ context.Context, accountID string, newBalance decimal.Decimal, txn *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[accountID]
	if !ok {
		return fmt.Errorf("wallet for account %s: %w", accountID, ErrNotFound)
	}
	w.Balance = newBalance
	s.txns = append(s.txns, *txn)
	return nil
}

func (s *MemoryStore) TransactionsByAccount(_ context.Context, accountID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, t := range s.txns {
		if t.AccountID == accountID {
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, accountID, symbol string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[accountID][symbol]
	if !ok {
		return nil, fmt.Errorf("position %s/%s: %w", accountID, symbol, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, accountID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions[accountID] {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

// --- Trades ---

func (s *MemoryStore) ApplyTrade(_ context.Context, u *TradeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[u.AccountID]
	if !ok {
		return fmt.Errorf("wallet for account %s: %w", u.AccountID, ErrNotFound)
	}

	w.Balance = u.NewBalance

	if u.Position != nil {
		bySymbol, ok := s.positions[u.AccountID]
		if !ok {
			bySymbol = make(map[string]*model.Position)
			s.positions[u.AccountID] = bySymbol
		}
		copy := *u.Position
		bySymbol[u.Position.Symbol] = &copy
	} else if u.DeleteSymbol != "" {
		delete(s.positions[u.AccountID], u.DeleteSymbol)
	}

	s.orders = append(s.orders, *u.Order)
	return nil
}

func (s *MemoryStore) OrdersByAccount(_ context.Context, accountID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.AccountID == accountID {
			result = append(result, o)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) RealizedPnL(_ context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, o := range s.orders {
		if o.AccountID == accountID && o.Side == model.SideSell && o.PnL != nil {
			total = total.Add(*o.PnL)
		}
	}
	return total, nil
}

// --- Stocks & quotes ---

func (s *MemoryStore) CreateStock(_ context.Context, st *model.Stock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stocks[st.Symbol]; ok {
		return nil
	}
	copy := *st
	s.stocks[st.Symbol] = &copy
	return nil
}

func (s *MemoryStore) ListStocks(_ context.Context) ([]model.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stocks := make([]model.Stock, 0, len(s.stocks))
	for _, st := range s.stocks {
		stocks = append(stocks, *st)
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].Symbol < stocks[j].Symbol })
	return stocks, nil
}

func (s *MemoryStore) GetQuote(_ context.Context, symbol string) (*model.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("quote for %s: %w", symbol, ErrNotFound)
	}
	copy := *q
	return &copy, nil
}

func (s *MemoryStore) UpsertQuote(_ context.Context, q *model.PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *q
	s.quotes[q.Symbol] = &copy
	return nil
}

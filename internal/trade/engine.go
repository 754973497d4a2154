// Package trade implements the settlement engine: the only code path that
// mutates wallets and positions. Every trade validates its preconditions,
// then applies the wallet debit/credit, the position change, and the
// immutable order record as one atomic store call.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/risk"
	"github.com/stocksim/trading-engine/internal/store"
)

// Oracle supplies the current market price for a symbol. The engine treats
// the latest quote as authoritative at the instant of execution: pure market
// order semantics, no price lock, no slippage window.
type Oracle interface {
	Quote(ctx context.Context, symbol string) (*model.PriceQuote, error)
}

// Engine settles trades and wallet movements against the store. Settlements
// are serialized per account: at most one in-flight mutation per accountID,
// while different accounts proceed fully in parallel. Quote reads are
// lock-free.
type Engine struct {
	store   store.Store
	oracle  Oracle
	limiter *risk.ExposureLimiter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a settlement engine over the given store and price oracle.
func NewEngine(st store.Store, oracle Oracle) *Engine {
	return &Engine{
		store:  st,
		oracle: oracle,
		locks:  make(map[string]*sync.Mutex),
	}
}

// WithLimiter enables buy-side exposure limits. Call before serving traffic.
func (e *Engine) WithLimiter(l *risk.ExposureLimiter) *Engine {
	e.limiter = l
	return e
}

// accountLock returns the mutex serializing settlements for one account,
// creating it on first use. Lock entries are never removed; the account set
// is small and long-lived.
func (e *Engine) accountLock(accountID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[accountID] = l
	}
	return l
}

// quote resolves the live price for a symbol. Any oracle failure, including
// an unknown symbol, is reported as ErrUnknownSymbol.
func (e *Engine) quote(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	q, err := e.oracle.Quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return q, nil
}

// checkExposure enforces configured risk limits against the current position
// book. Caller holds the account lock. A nil or unconfigured limiter passes
// everything.
func (e *Engine) checkExposure(ctx context.Context, accountID, symbol string, amount decimal.Decimal) error {
	if !e.limiter.Enabled() {
		return nil
	}

	positions, err := e.store.ListPositions(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	exposures := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		exposures[p.Symbol] = p.AvgPrice.Mul(decimal.NewFromInt(p.Quantity))
	}

	stocks, err := e.store.ListStocks(ctx)
	if err != nil {
		return fmt.Errorf("list stocks: %w", err)
	}
	sectors := make(map[string]string, len(stocks))
	for _, s := range stocks {
		sectors[s.Symbol] = s.Sector
	}

	return e.limiter.CheckBuy(symbol, amount, exposures, sectors)
}

// Buy executes a market buy of quantity shares at the current quote.
// Returns the new wallet balance.
func (e *Engine) Buy(ctx context.Context, accountID, symbol string, quantity int64) (decimal.Decimal, error) {
	start := time.Now()

	balance, err := e.buy(ctx, accountID, symbol, quantity)
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		return decimal.Zero, err
	}

	metrics.TradesTotal.WithLabelValues(model.SideBuy).Inc()
	metrics.TradeLatency.WithLabelValues(model.SideBuy).Observe(time.Since(start).Seconds())
	return balance, nil
}

func (e *Engine) buy(ctx context.Context, accountID, symbol string, quantity int64) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}

	q, err := e.quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	l := e.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	wallet, err := e.store.GetWallet(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}

	qty := decimal.NewFromInt(quantity)
	amount := q.Price.Mul(qty)

	if wallet.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}

	if err := e.checkExposure(ctx, accountID, symbol, amount); err != nil {
		return decimal.Zero, err
	}

	now := time.Now().UTC()

	// First buy creates the position at the fill price; subsequent buys
	// re-weight the moving average cost.
	pos, err := e.store.GetPosition(ctx, accountID, symbol)
	switch {
	case errors.Is(err, store.ErrNotFound):
		pos = &model.Position{
			AccountID: accountID,
			Symbol:    symbol,
			Quantity:  quantity,
			AvgPrice:  q.Price,
			UpdatedAt: now,
		}
	case err != nil:
		return decimal.Zero, err
	default:
		oldQty := decimal.NewFromInt(pos.Quantity)
		newQty := pos.Quantity + quantity
		pos.AvgPrice = pos.AvgPrice.Mul(oldQty).Add(amount).Div(decimal.NewFromInt(newQty))
		pos.Quantity = newQty
		pos.UpdatedAt = now
	}

	newBalance := wallet.Balance.Sub(amount)

	order := &model.Order{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Symbol:    symbol,
		Side:      model.SideBuy,
		Quantity:  quantity,
		Price:     q.Price,
		Amount:    amount,
		CreatedAt: now,
	}

	if err := e.store.ApplyTrade(ctx, &store.TradeUpdate{
		AccountID:  accountID,
		NewBalance: newBalance,
		Position:   pos,
		Order:      order,
	}); err != nil {
		return decimal.Zero, fmt.Errorf("apply buy: %w", err)
	}

	slog.Info("trade settled",
		"order_id", order.ID,
		"account", accountID,
		"symbol", symbol,
		"side", model.SideBuy,
		"qty", quantity,
		"price", q.Price.String(),
		"amount", amount.String(),
		"balance", newBalance.String(),
	)

	return newBalance, nil
}

// Sell executes a market sell of quantity shares at the current quote.
// Returns the new wallet balance and the realized P&L for this trade.
func (e *Engine) Sell(ctx context.Context, accountID, symbol string, quantity int64) (decimal.Decimal, decimal.Decimal, error) {
	start := time.Now()

	balance, pnl, err := e.sell(ctx, accountID, symbol, quantity)
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		return decimal.Zero, decimal.Zero, err
	}

	metrics.TradesTotal.WithLabelValues(model.SideSell).Inc()
	metrics.TradeLatency.WithLabelValues(model.SideSell).Observe(time.Since(start).Seconds())
	return balance, pnl, nil
}

func (e *Engine) sell(ctx context.Context, accountID, symbol string, quantity int64) (decimal.Decimal, decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, decimal.Zero, ErrInvalidQuantity
	}

	q, err := e.quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	l := e.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	pos, err := e.store.GetPosition(ctx, accountID, symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, decimal.Zero, ErrNoPosition
		}
		return decimal.Zero, decimal.Zero, err
	}
	if pos.Quantity < quantity {
		return decimal.Zero, decimal.Zero, ErrInsufficientQuantity
	}

	wallet, err := e.store.GetWallet(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, decimal.Zero, err
	}

	qty := decimal.NewFromInt(quantity)
	proceeds := q.Price.Mul(qty)
	costBasis := pos.AvgPrice.Mul(qty)
	pnl := proceeds.Sub(costBasis)

	now := time.Now().UTC()
	newBalance := wallet.Balance.Add(proceeds)

	update := &store.TradeUpdate{
		AccountID:  accountID,
		NewBalance: newBalance,
	}

	// avgPrice is a cost-basis figure; a partial sell reduces quantity only.
	// A full close deletes the row — positions are never stored at 0.
	remaining := pos.Quantity - quantity
	if remaining == 0 {
		update.DeleteSymbol = symbol
	} else {
		pos.Quantity = remaining
		pos.UpdatedAt = now
		update.Position = pos
	}

	update.Order = &model.Order{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Symbol:    symbol,
		Side:      model.SideSell,
		Quantity:  quantity,
		Price:     q.Price,
		Amount:    proceeds,
		PnL:       &pnl,
		CreatedAt: now,
	}

	if err := e.store.ApplyTrade(ctx, update); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("apply sell: %w", err)
	}

	slog.Info("trade settled",
		"order_id", update.Order.ID,
		"account", accountID,
		"symbol", symbol,
		"side", model.SideSell,
		"qty", quantity,
		"price", q.Price.String(),
		"proceeds", proceeds.String(),
		"pnl", pnl.String(),
		"balance", newBalance.String(),
	)

	return newBalance, pnl, nil
}

// PositionDetail is one portfolio row joined with the live quote.
type PositionDetail struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Unrealized   decimal.Decimal `json:"unrealized"`
	Percent      decimal.Decimal `json:"percent"`
}

// Positions returns the raw position book for an account.
func (e *Engine) Positions(ctx context.Context, accountID string) ([]model.Position, error) {
	return e.store.ListPositions(ctx, accountID)
}

// PortfolioDetail joins every position with its latest quote and computes
// unrealized P&L. A symbol without a quote marks to its own average cost —
// a defined degenerate case (unrealized 0), not an error. Pure read.
func (e *Engine) PortfolioDetail(ctx context.Context, accountID string) ([]PositionDetail, error) {
	positions, err := e.store.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)
	details := make([]PositionDetail, 0, len(positions))

	for _, p := range positions {
		current := p.AvgPrice
		if q, err := e.oracle.Quote(ctx, p.Symbol); err == nil {
			current = q.Price
		}

		qty := decimal.NewFromInt(p.Quantity)
		unrealized := current.Sub(p.AvgPrice).Mul(qty)
		percent := current.Sub(p.AvgPrice).Div(p.AvgPrice).Mul(hundred)

		details = append(details, PositionDetail{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AvgPrice:     p.AvgPrice,
			CurrentPrice: current,
			Unrealized:   unrealized.Round(2),
			Percent:      percent.Round(2),
		})
	}

	return details, nil
}

// RealizedPnL sums realized P&L over all SELL orders for the account.
func (e *Engine) RealizedPnL(ctx context.Context, accountID string) (decimal.Decimal, error) {
	total, err := e.store.RealizedPnL(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return total.Round(2), nil
}

// Orders returns the trade log for an account, newest first.
func (e *Engine) Orders(ctx context.Context, accountID string) ([]model.Order, error) {
	return e.store.OrdersByAccount(ctx, accountID)
}

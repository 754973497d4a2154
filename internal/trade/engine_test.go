package trade_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/risk"
	"github.com/stocksim/trading-engine/internal/store"
	"github.com/stocksim/trading-engine/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fixedOracle serves deterministic quotes for tests.
type fixedOracle struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func (o *fixedOracle) Quote(_ context.Context, symbol string) (*model.PriceQuote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &model.PriceQuote{Symbol: symbol, Price: p, UpdatedAt: time.Now().UTC()}, nil
}

func (o *fixedOracle) set(symbol string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[symbol] = price
}

// newTestEngine creates an engine over a fresh memory store with fixed quotes.
func newTestEngine(t *testing.T) (*trade.Engine, *store.MemoryStore, *fixedOracle) {
	t.Helper()
	ms := store.NewMemoryStore()
	oracle := &fixedOracle{prices: make(map[string]decimal.Decimal)}
	return trade.NewEngine(ms, oracle), ms, oracle
}

// seedWallet creates a funded wallet directly in the store.
func seedWallet(t *testing.T, ms *store.MemoryStore, accountID string, balance decimal.Decimal) {
	t.Helper()
	err := ms.CreateWallet(context.Background(), &model.Wallet{
		AccountID: accountID,
		Balance:   balance,
		Currency:  "INR",
		Status:    model.WalletActive,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed wallet: %v", err)
	}
}

// --- Buy ---

func TestBuy_FirstBuyCreatesPositionAtQuote(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(10000))
	oracle.set("TCS", d(100))

	balance, err := engine.Buy(ctx, "acct1", "TCS", 10)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if !balance.Equal(d(9000)) {
		t.Errorf("balance = %s, want 9000", balance)
	}

	pos, err := ms.GetPosition(ctx, "acct1", "TCS")
	if err != nil {
		t.Fatalf("position not created: %v", err)
	}
	if pos.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d(100)) {
		t.Errorf("avg price = %s, want 100", pos.AvgPrice)
	}

	orders, _ := ms.OrdersByAccount(ctx, "acct1")
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if orders[0].Side != model.SideBuy {
		t.Errorf("side = %s, want BUY", orders[0].Side)
	}
	if orders[0].PnL != nil {
		t.Error("buy order should carry no pnl")
	}
	if !orders[0].Amount.Equal(d(1000)) {
		t.Errorf("amount = %s, want 1000", orders[0].Amount)
	}
}

func TestBuy_ReweightsAverageCost(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(10000))

	oracle.set("TCS", d(100))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("first buy: %v", err)
	}

	oracle.set("TCS", d(200))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos, _ := ms.GetPosition(ctx, "acct1", "TCS")
	if pos.Quantity != 20 {
		t.Errorf("quantity = %d, want 20", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d(150)) {
		t.Errorf("avg price = %s, want 150", pos.AvgPrice)
	}
}

func TestBuy_SamePriceKeepsAverage(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(100000))
	oracle.set("INFY", d(250))

	if _, err := engine.Buy(ctx, "acct1", "INFY", 7); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := engine.Buy(ctx, "acct1", "INFY", 13); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos, _ := ms.GetPosition(ctx, "acct1", "INFY")
	if !pos.AvgPrice.Equal(d(250)) {
		t.Errorf("avg price = %s, want 250 regardless of quantity", pos.AvgPrice)
	}
}

func TestBuy_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(500))
	oracle.set("TCS", d(100))

	_, err := engine.Buy(ctx, "acct1", "TCS", 10)
	if !errors.Is(err, trade.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	w, _ := ms.GetWallet(ctx, "acct1")
	if !w.Balance.Equal(d(500)) {
		t.Errorf("balance mutated to %s on rejected buy", w.Balance)
	}
	if _, err := ms.GetPosition(ctx, "acct1", "TCS"); !errors.Is(err, store.ErrNotFound) {
		t.Error("position created on rejected buy")
	}
	orders, _ := ms.OrdersByAccount(ctx, "acct1")
	if len(orders) != 0 {
		t.Errorf("order recorded on rejected buy: %d", len(orders))
	}
}

func TestBuy_UnknownSymbol(t *testing.T) {
	engine, ms, _ := newTestEngine(t)
	seedWallet(t, ms, "acct1", d(1000))

	_, err := engine.Buy(context.Background(), "acct1", "NOPE", 1)
	if !errors.Is(err, trade.ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
}

func TestBuy_InvalidQuantity(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	seedWallet(t, ms, "acct1", d(1000))
	oracle.set("TCS", d(100))

	for _, qty := range []int64{0, -5} {
		if _, err := engine.Buy(context.Background(), "acct1", "TCS", qty); !errors.Is(err, trade.ErrInvalidQuantity) {
			t.Errorf("qty %d: err = %v, want ErrInvalidQuantity", qty, err)
		}
	}
}

func TestBuy_WalletNotFound(t *testing.T) {
	engine, _, oracle := newTestEngine(t)
	oracle.set("TCS", d(100))

	_, err := engine.Buy(context.Background(), "ghost", "TCS", 1)
	if !errors.Is(err, trade.ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
}

// --- Sell ---

func TestSell_RoundTrip(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(1000))

	oracle.set("TCS", d(100))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	oracle.set("TCS", d(110))
	balance, pnl, err := engine.Sell(ctx, "acct1", "TCS", 10)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	if !pnl.Equal(d(100)) {
		t.Errorf("pnl = %s, want 100", pnl)
	}
	if !balance.Equal(d(1100)) {
		t.Errorf("balance = %s, want 1100", balance)
	}

	// Fully closed positions are deleted, never stored at 0.
	if _, err := ms.GetPosition(ctx, "acct1", "TCS"); !errors.Is(err, store.ErrNotFound) {
		t.Error("closed position still present")
	}

	realized, err := engine.RealizedPnL(ctx, "acct1")
	if err != nil {
		t.Fatalf("realized pnl: %v", err)
	}
	if !realized.Equal(d(100)) {
		t.Errorf("realized pnl = %s, want 100", realized)
	}
}

func TestSell_PartialPreservesCostBasis(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(10000))

	oracle.set("TCS", d(100))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy 1: %v", err)
	}
	oracle.set("TCS", d(200))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy 2: %v", err)
	}

	oracle.set("TCS", d(300))
	_, pnl, err := engine.Sell(ctx, "acct1", "TCS", 5)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	if !pnl.Equal(d(750)) {
		t.Errorf("pnl = %s, want 750", pnl)
	}

	pos, _ := ms.GetPosition(ctx, "acct1", "TCS")
	if pos.Quantity != 15 {
		t.Errorf("quantity = %d, want 15", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d(150)) {
		t.Errorf("avg price = %s, want 150 (unchanged by sell)", pos.AvgPrice)
	}
}

func TestSell_NoPositionLeavesStateUntouched(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(1000))
	oracle.set("TCS", d(100))

	_, _, err := engine.Sell(ctx, "acct1", "TCS", 5)
	if !errors.Is(err, trade.ErrNoPosition) {
		t.Fatalf("err = %v, want ErrNoPosition", err)
	}

	w, _ := ms.GetWallet(ctx, "acct1")
	if !w.Balance.Equal(d(1000)) {
		t.Errorf("balance mutated to %s on rejected sell", w.Balance)
	}
	orders, _ := ms.OrdersByAccount(ctx, "acct1")
	if len(orders) != 0 {
		t.Errorf("order recorded on rejected sell: %d", len(orders))
	}
}

func TestSell_InsufficientQuantity(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(1000))
	oracle.set("TCS", d(100))

	if _, err := engine.Buy(ctx, "acct1", "TCS", 5); err != nil {
		t.Fatalf("buy: %v", err)
	}

	_, _, err := engine.Sell(ctx, "acct1", "TCS", 6)
	if !errors.Is(err, trade.ErrInsufficientQuantity) {
		t.Fatalf("err = %v, want ErrInsufficientQuantity", err)
	}

	pos, _ := ms.GetPosition(ctx, "acct1", "TCS")
	if pos.Quantity != 5 {
		t.Errorf("quantity mutated to %d on rejected sell", pos.Quantity)
	}
}

// --- Invariants ---

// Trading at fixed prices neither creates nor destroys money: cash plus
// position cost basis stays equal to the initial funding plus realized P&L.
func TestConservation(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	initial := d(100000)
	seedWallet(t, ms, "acct1", initial)

	oracle.set("TCS", d(120))
	oracle.set("INFY", d(80))

	steps := []struct {
		side   string
		symbol string
		qty    int64
		price  float64
	}{
		{"BUY", "TCS", 10, 120},
		{"BUY", "INFY", 20, 80},
		{"BUY", "TCS", 5, 150},
		{"SELL", "TCS", 8, 140},
		{"SELL", "INFY", 20, 60},
		{"BUY", "INFY", 3, 90},
		{"SELL", "TCS", 7, 100},
	}

	realized := decimal.Zero
	for i, s := range steps {
		oracle.set(s.symbol, d(s.price))
		if s.side == "BUY" {
			if _, err := engine.Buy(ctx, "acct1", s.symbol, s.qty); err != nil {
				t.Fatalf("step %d buy: %v", i, err)
			}
		} else {
			_, pnl, err := engine.Sell(ctx, "acct1", s.symbol, s.qty)
			if err != nil {
				t.Fatalf("step %d sell: %v", i, err)
			}
			realized = realized.Add(pnl)
		}
	}

	w, _ := ms.GetWallet(ctx, "acct1")
	positions, _ := ms.ListPositions(ctx, "acct1")

	holdings := decimal.Zero
	for _, p := range positions {
		holdings = holdings.Add(p.AvgPrice.Mul(decimal.NewFromInt(p.Quantity)))
	}

	got := w.Balance.Add(holdings)
	want := initial.Add(realized)
	if !got.Equal(want) {
		t.Errorf("balance+holdings = %s, want initial+realized = %s", got, want)
	}
}

func TestNoNegativeState(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(1000))
	oracle.set("TCS", d(100))

	// Drain the wallet exactly, then push past every boundary.
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := engine.Buy(ctx, "acct1", "TCS", 1); !errors.Is(err, trade.ErrInsufficientFunds) {
		t.Fatalf("overdraft buy: err = %v", err)
	}
	if _, _, err := engine.Sell(ctx, "acct1", "TCS", 11); !errors.Is(err, trade.ErrInsufficientQuantity) {
		t.Fatalf("oversell: err = %v", err)
	}

	w, _ := ms.GetWallet(ctx, "acct1")
	if w.Balance.IsNegative() {
		t.Errorf("balance went negative: %s", w.Balance)
	}
	positions, _ := ms.ListPositions(ctx, "acct1")
	for _, p := range positions {
		if p.Quantity <= 0 {
			t.Errorf("position %s stored at quantity %d", p.Symbol, p.Quantity)
		}
	}
}

// N concurrent 1-share buys against a wallet holding exactly N*price must
// all succeed exactly once: balance 0, quantity N, never an overspend.
func TestConcurrentBuysNeverOverspend(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()

	const n = 50
	price := d(100)
	seedWallet(t, ms, "acct1", price.Mul(decimal.NewFromInt(n)))
	oracle.set("TCS", price)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Buy(ctx, "acct1", "TCS", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent buy failed: %v", err)
		}
	}

	w, _ := ms.GetWallet(ctx, "acct1")
	if !w.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", w.Balance)
	}
	pos, err := ms.GetPosition(ctx, "acct1", "TCS")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Quantity != n {
		t.Errorf("quantity = %d, want %d", pos.Quantity, n)
	}
	orders, _ := ms.OrdersByAccount(ctx, "acct1")
	if len(orders) != n {
		t.Errorf("orders = %d, want %d", len(orders), n)
	}
}

// Settlements on different accounts are independent; one account's trades
// never touch another's wallet or positions.
func TestAccountsAreIsolated(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(1000))
	seedWallet(t, ms, "acct2", d(2000))
	oracle.set("TCS", d(100))

	if _, err := engine.Buy(ctx, "acct1", "TCS", 5); err != nil {
		t.Fatalf("buy: %v", err)
	}

	w2, _ := ms.GetWallet(ctx, "acct2")
	if !w2.Balance.Equal(d(2000)) {
		t.Errorf("acct2 balance changed: %s", w2.Balance)
	}
	if _, err := ms.GetPosition(ctx, "acct2", "TCS"); !errors.Is(err, store.ErrNotFound) {
		t.Error("acct2 gained a position from acct1's trade")
	}
}

// --- Portfolio queries ---

func TestPortfolioDetail(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(10000))

	oracle.set("TCS", d(100))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	oracle.set("TCS", d(130))
	details, err := engine.PortfolioDetail(ctx, "acct1")
	if err != nil {
		t.Fatalf("portfolio detail: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("expected 1 row, got %d", len(details))
	}

	row := details[0]
	if !row.CurrentPrice.Equal(d(130)) {
		t.Errorf("current price = %s, want 130", row.CurrentPrice)
	}
	if !row.Unrealized.Equal(d(300)) {
		t.Errorf("unrealized = %s, want 300", row.Unrealized)
	}
	if !row.Percent.Equal(d(30)) {
		t.Errorf("percent = %s, want 30", row.Percent)
	}
}

func TestPortfolioDetail_MissingQuoteFallsBackToAvgPrice(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(10000))

	oracle.set("TCS", d(100))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Simulate an oracle outage for the held symbol.
	oracle.mu.Lock()
	delete(oracle.prices, "TCS")
	oracle.mu.Unlock()

	details, err := engine.PortfolioDetail(ctx, "acct1")
	if err != nil {
		t.Fatalf("portfolio detail: %v", err)
	}
	row := details[0]
	if !row.CurrentPrice.Equal(d(100)) {
		t.Errorf("current price = %s, want avg price fallback 100", row.CurrentPrice)
	}
	if !row.Unrealized.IsZero() {
		t.Errorf("unrealized = %s, want 0", row.Unrealized)
	}
}

func TestRealizedPnL_SumsSellsOnly(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(100000))

	oracle.set("TCS", d(100))
	if _, err := engine.Buy(ctx, "acct1", "TCS", 20); err != nil {
		t.Fatalf("buy: %v", err)
	}

	oracle.set("TCS", d(110))
	if _, _, err := engine.Sell(ctx, "acct1", "TCS", 5); err != nil {
		t.Fatalf("sell 1: %v", err)
	}
	oracle.set("TCS", d(90))
	if _, _, err := engine.Sell(ctx, "acct1", "TCS", 5); err != nil {
		t.Fatalf("sell 2: %v", err)
	}

	// (110-100)*5 + (90-100)*5 = 0
	realized, err := engine.RealizedPnL(ctx, "acct1")
	if err != nil {
		t.Fatalf("realized pnl: %v", err)
	}
	if !realized.IsZero() {
		t.Errorf("realized pnl = %s, want 0", realized)
	}
}

// --- Exposure limits ---

func TestBuy_SymbolExposureLimitBlocksAndLeavesStateUntouched(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(100000))
	oracle.set("TCS", d(100))
	engine.WithLimiter(risk.NewExposureLimiter(d(1500), decimal.Zero))

	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy within limit: %v", err)
	}

	// 1000 held + 1000 more = 2000 > 1500.
	_, err := engine.Buy(ctx, "acct1", "TCS", 10)
	if !errors.Is(err, risk.ErrSymbolLimitExceeded) {
		t.Fatalf("err = %v, want ErrSymbolLimitExceeded", err)
	}

	w, _ := ms.GetWallet(ctx, "acct1")
	if !w.Balance.Equal(d(99000)) {
		t.Errorf("balance = %s, want 99000 (rejected buy must not debit)", w.Balance)
	}
	pos, _ := ms.GetPosition(ctx, "acct1", "TCS")
	if pos.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", pos.Quantity)
	}
	orders, _ := ms.OrdersByAccount(ctx, "acct1")
	if len(orders) != 1 {
		t.Errorf("expected 1 order, got %d", len(orders))
	}
}

func TestBuy_SectorExposureLimitSpansSymbols(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(100000))

	for _, s := range []model.Stock{
		{Symbol: "HDFCBANK", Name: "HDFC Bank", Sector: "Banking"},
		{Symbol: "SBIN", Name: "State Bank of India", Sector: "Banking"},
		{Symbol: "TCS", Name: "Tata Consultancy Services", Sector: "IT"},
	} {
		if err := ms.CreateStock(ctx, &s); err != nil {
			t.Fatalf("create stock: %v", err)
		}
	}
	oracle.set("HDFCBANK", d(100))
	oracle.set("SBIN", d(100))
	oracle.set("TCS", d(100))
	engine.WithLimiter(risk.NewExposureLimiter(decimal.Zero, d(1500)))

	if _, err := engine.Buy(ctx, "acct1", "HDFCBANK", 10); err != nil {
		t.Fatalf("first bank buy: %v", err)
	}

	// Banking total would reach 2000 > 1500.
	_, err := engine.Buy(ctx, "acct1", "SBIN", 10)
	if !errors.Is(err, risk.ErrSectorLimitExceeded) {
		t.Fatalf("err = %v, want ErrSectorLimitExceeded", err)
	}

	// A different sector is unaffected.
	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("IT buy should pass: %v", err)
	}
}

func TestSell_NeverBlockedByExposureLimits(t *testing.T) {
	engine, ms, oracle := newTestEngine(t)
	ctx := context.Background()
	seedWallet(t, ms, "acct1", d(100000))
	oracle.set("TCS", d(100))

	if _, err := engine.Buy(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Tighten limits below the held exposure; the sell must still settle.
	engine.WithLimiter(risk.NewExposureLimiter(d(1), d(1)))
	if _, _, err := engine.Sell(ctx, "acct1", "TCS", 10); err != nil {
		t.Fatalf("sell blocked by limiter: %v", err)
	}
}

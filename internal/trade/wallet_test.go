package trade_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/trade"
)

func TestInitWallet_Idempotent(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	w1, err := engine.InitWallet(ctx, "acct1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !w1.Balance.IsZero() {
		t.Errorf("new wallet balance = %s, want 0", w1.Balance)
	}
	if w1.Status != model.WalletActive {
		t.Errorf("status = %s, want active", w1.Status)
	}

	if _, err := engine.Credit(ctx, "acct1", d(500), "upi"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// Second init returns the existing wallet, balance intact.
	w2, err := engine.InitWallet(ctx, "acct1")
	if err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if !w2.Balance.Equal(d(500)) {
		t.Errorf("re-init balance = %s, want 500", w2.Balance)
	}
}

func TestCreditDebit_PersistAndAudit(t *testing.T) {
	engine, ms, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.InitWallet(ctx, "acct1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	balance, err := engine.Credit(ctx, "acct1", d(1000), "upi")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !balance.Equal(d(1000)) {
		t.Errorf("balance = %s, want 1000", balance)
	}

	balance, err = engine.Debit(ctx, "acct1", d(400), "withdrawal")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !balance.Equal(d(600)) {
		t.Errorf("balance = %s, want 600", balance)
	}

	// The debit must be persisted, not just applied in memory.
	w, _ := ms.GetWallet(ctx, "acct1")
	if !w.Balance.Equal(d(600)) {
		t.Errorf("stored balance = %s, want 600", w.Balance)
	}

	txns, err := engine.Transactions(ctx, "acct1")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	// Newest first.
	if txns[0].Type != model.TxnDebit || txns[1].Type != model.TxnCredit {
		t.Errorf("transaction order = %s, %s; want debit, credit", txns[0].Type, txns[1].Type)
	}
	if txns[0].Method != "withdrawal" {
		t.Errorf("method = %s, want withdrawal", txns[0].Method)
	}
	if txns[0].Status != "success" {
		t.Errorf("status = %s, want success", txns[0].Status)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.InitWallet(ctx, "acct1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := engine.Credit(ctx, "acct1", d(100), ""); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := engine.Debit(ctx, "acct1", d(101), "")
	if !errors.Is(err, trade.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	balance, _ := engine.Balance(ctx, "acct1")
	if !balance.Equal(d(100)) {
		t.Errorf("balance = %s, want 100 after rejected debit", balance)
	}

	txns, _ := engine.Transactions(ctx, "acct1")
	if len(txns) != 1 {
		t.Errorf("rejected debit recorded a transaction: %d", len(txns))
	}
}

func TestWalletMove_InvalidAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.InitWallet(ctx, "acct1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, amount := range []decimal.Decimal{decimal.Zero, d(-10)} {
		if _, err := engine.Credit(ctx, "acct1", amount, ""); !errors.Is(err, trade.ErrInvalidAmount) {
			t.Errorf("credit %s: err = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := engine.Debit(ctx, "acct1", amount, ""); !errors.Is(err, trade.ErrInvalidAmount) {
			t.Errorf("debit %s: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestWalletMove_MethodDefaultsToSystem(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.InitWallet(ctx, "acct1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := engine.Credit(ctx, "acct1", d(50), ""); err != nil {
		t.Fatalf("credit: %v", err)
	}

	txns, _ := engine.Transactions(ctx, "acct1")
	if txns[0].Method != "system" {
		t.Errorf("method = %s, want system", txns[0].Method)
	}
}

func TestBalance_WalletNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Balance(context.Background(), "ghost")
	if !errors.Is(err, trade.ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
}

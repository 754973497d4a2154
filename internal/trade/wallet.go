package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
)

const defaultCurrency = "INR"

// InitWallet creates the wallet for an account with a zero balance.
// Idempotent: an existing wallet is returned unchanged.
func (e *Engine) InitWallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	l := e.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	if w, err := e.store.GetWallet(ctx, accountID); err == nil {
		return w, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	w := &model.Wallet{
		AccountID: accountID,
		Balance:   decimal.Zero,
		Currency:  defaultCurrency,
		Status:    model.WalletActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	slog.Info("wallet created", "account", accountID)
	return w, nil
}

// Credit adds amount to the wallet and appends the audit Transaction in one
// atomic store call. Returns the new balance.
func (e *Engine) Credit(ctx context.Context, accountID string, amount decimal.Decimal, method string) (decimal.Decimal, error) {
	return e.move(ctx, accountID, amount, method, model.TxnCredit)
}

// Debit removes amount from the wallet, failing with ErrInsufficientFunds
// rather than going negative. The new balance and the audit Transaction are
// always persisted together. Returns the new balance.
func (e *Engine) Debit(ctx context.Context, accountID string, amount decimal.Decimal, method string) (decimal.Decimal, error) {
	return e.move(ctx, accountID, amount, method, model.TxnDebit)
}

func (e *Engine) move(ctx context.Context, accountID string, amount decimal.Decimal, method, kind string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}
	if method == "" {
		method = "system"
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

	var newBalance decimal.Decimal
	if kind == model.TxnCredit {
		newBalance = wallet.Balance.Add(amount)
	} else {
		if wallet.Balance.LessThan(amount) {
			return decimal.Zero, ErrInsufficientFunds
		}
		newBalance = wallet.Balance.Sub(amount)
	}

	txn := &model.Transaction{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Type:      kind,
		Amount:    amount,
		Method:    method,
		Status:    "success",
		CreatedAt: time.Now().UTC(),
	}

	if err := e.store.ApplyWalletChange(ctx, accountID, newBalance, txn); err != nil {
		return decimal.Zero, fmt.Errorf("apply wallet %s: %w", kind, err)
	}

	metrics.WalletMovements.WithLabelValues(kind).Inc()
	slog.Info("wallet movement",
		"account", accountID,
		"type", kind,
		"amount", amount.String(),
		"method", method,
		"balance", newBalance.String(),
	)

	return newBalance, nil
}

// Balance returns the current wallet balance.
func (e *Engine) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	wallet, err := e.store.GetWallet(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

// Transactions returns the wallet audit trail, newest first.
func (e *Engine) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	return e.store.TransactionsByAccount(ctx, accountID)
}

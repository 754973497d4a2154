// Package model defines the core domain types shared across the trading engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet status values. Status is recorded per wallet but does not gate
// settlement; frozen/disabled handling lives outside this core.
const (
	WalletActive   = "active"
	WalletFrozen   = "frozen"
	WalletDisabled = "disabled"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Transaction types for the wallet audit trail.
const (
	TxnCredit = "credit"
	TxnDebit  = "debit"
)

// Wallet is the single cash balance for an account. Exactly one per account.
// balance >= 0 at every observable instant; only the settlement engine and
// the wallet credit/debit flows mutate it.
type Wallet struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Currency  string          `json:"currency" db:"currency"`
	Status    string          `json:"status" db:"status"` // "active", "frozen", "disabled"
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Position is one account's holding in one symbol with its weighted-average
// acquisition cost. At most one row per (account, symbol); a flat position is
// deleted, never stored at quantity 0.
type Position struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Quantity  int64           `json:"quantity" db:"quantity"`   // always > 0
	AvgPrice  decimal.Decimal `json:"avg_price" db:"avg_price"` // always > 0
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Order is an immutable record of an executed trade. Once created, these are
// never modified or deleted. PnL is set only on SELL orders and equals
// amount - avgPriceAtSaleTime * quantity.
type Order struct {
	ID        string           `json:"id" db:"id"`
	AccountID string           `json:"account_id" db:"account_id"`
	Symbol    string           `json:"symbol" db:"symbol"`
	Side      string           `json:"side" db:"side"` // "BUY" or "SELL"
	Quantity  int64            `json:"quantity" db:"quantity"`
	Price     decimal.Decimal  `json:"price" db:"price"`   // execution quote
	Amount    decimal.Decimal  `json:"amount" db:"amount"` // price * quantity
	PnL       *decimal.Decimal `json:"pnl,omitempty" db:"pnl"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Transaction is one wallet movement: the cash audit trail, independent of
// the trade order log.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Type      string          `json:"type" db:"type"` // "credit" or "debit"
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Method    string          `json:"method" db:"method"`
	Status    string          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// PriceQuote is the current simulated market price for one symbol, refreshed
// by the price ticker. The settlement engine treats the latest quote as
// authoritative at the instant of execution.
type PriceQuote struct {
	Symbol        string          `json:"symbol" db:"symbol"`
	Price         decimal.Decimal `json:"price" db:"price"`
	BasePrice     decimal.Decimal `json:"base_price" db:"base_price"`
	Change        decimal.Decimal `json:"change" db:"change"`                 // price - basePrice
	ChangePercent decimal.Decimal `json:"change_percent" db:"change_percent"` // cumulative, 4dp
	Status        string          `json:"status" db:"status"`                 // "up", "down", "neutral"
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Stock is one entry in the tradable-symbol master list.
type Stock struct {
	Symbol string `json:"symbol" db:"symbol"`
	Name   string `json:"name" db:"name"`
	Sector string `json:"sector" db:"sector"`
}

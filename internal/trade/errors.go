package trade

import (
	"errors"

	"github.com/stocksim/trading-engine/internal/risk"
)

// Request-level settlement errors. All are recoverable: they are reported to
// the caller before any mutation happens.
var (
	// ErrUnknownSymbol means no quote exists for the requested symbol. A
	// price-oracle outage surfaces as this error rather than a crash.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrNoPosition means a sell was attempted against a flat holding.
	ErrNoPosition = errors.New("no position")

	// ErrInsufficientQuantity means a sell exceeds the held quantity.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrInsufficientFunds means a buy or debit would drive the wallet
	// balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidQuantity means a non-positive trade quantity.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")

	// ErrInvalidAmount means a non-positive wallet amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrWalletNotFound means no wallet exists for the account.
	ErrWalletNotFound = errors.New("wallet not found")
)

// rejectionReason maps a settlement error to a metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, ErrNoPosition):
		return "no_position"
	case errors.Is(err, ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, risk.ErrSymbolLimitExceeded), errors.Is(err, risk.ErrSectorLimitExceeded):
		return "exposure_limit"
	default:
		return "storage"
	}
}

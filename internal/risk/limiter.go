// Package risk enforces buy-side exposure limits on the position book.
//
// Two ceilings apply: a per-symbol cap on the cost basis held in any single
// stock, and a sector cap on the aggregate cost basis across every holding
// in the same sector. Sector concentration is the simulated-market analogue
// of correlated risk: twelve bank stocks move together, so a per-symbol cap
// alone does not bound the downside.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrSymbolLimitExceeded is returned when a buy would push a single
	// symbol's cost basis beyond the per-symbol maximum.
	ErrSymbolLimitExceeded = errors.New("risk: per-symbol exposure limit exceeded")

	// ErrSectorLimitExceeded is returned when a buy would push the aggregate
	// cost basis across one sector beyond the sector maximum.
	ErrSectorLimitExceeded = errors.New("risk: sector exposure limit exceeded")
)

// ExposureLimiter caps buy-side exposure. A zero limit means unlimited,
// so a partially configured limiter enforces only the ceiling that is set.
// Sells always pass: reducing exposure is never blocked.
type ExposureLimiter struct {
	// MaxPerSymbol is the maximum cost basis held in any single symbol.
	MaxPerSymbol decimal.Decimal

	// MaxPerSector is the maximum aggregate cost basis across all symbols
	// in the same sector.
	MaxPerSector decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-symbol and
// per-sector ceilings. Pass zero for either to leave it unenforced.
func NewExposureLimiter(maxPerSymbol, maxPerSector decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{MaxPerSymbol: maxPerSymbol, MaxPerSector: maxPerSector}
}

// Enabled reports whether any ceiling is configured.
func (l *ExposureLimiter) Enabled() bool {
	return l != nil && (l.MaxPerSymbol.IsPositive() || l.MaxPerSector.IsPositive())
}

// CheckBuy validates that adding delta of cost basis in symbol keeps the
// account within limits.
//
//   - symbol: the stock being bought
//   - delta: cost of the buy (price * quantity), always positive
//   - exposures: symbol → current cost basis (quantity * avgPrice)
//   - sectors: symbol → sector for every known stock
//
// Returns nil if the buy is within limits, or the first violated ceiling.
func (l *ExposureLimiter) CheckBuy(
	symbol string,
	delta decimal.Decimal,
	exposures map[string]decimal.Decimal,
	sectors map[string]string,
) error {
	newInSymbol := exposures[symbol].Add(delta)

	if l.MaxPerSymbol.IsPositive() && newInSymbol.GreaterThan(l.MaxPerSymbol) {
		return ErrSymbolLimitExceeded
	}

	if !l.MaxPerSector.IsPositive() {
		return nil
	}

	sector := sectors[symbol]
	inSector := newInSymbol
	for sym, exposure := range exposures {
		if sym == symbol {
			continue // counted via newInSymbol
		}
		if sectors[sym] == sector {
			inSector = inSector.Add(exposure)
		}
	}

	if inSector.GreaterThan(l.MaxPerSector) {
		return ErrSectorLimitExceeded
	}
	return nil
}

package pricefeed

import (
	"context"
	"log/slog"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
)

// defaultStocks is the built-in tradable-symbol master list. The ticker
// walks exactly this set; symbols gain a quote on their first tick.
var defaultStocks = []model.Stock{
	{Symbol: "RELIANCE", Name: "Reliance Industries", Sector: "Energy"},
	{Symbol: "TCS", Name: "Tata Consultancy Services", Sector: "IT"},
	{Symbol: "INFY", Name: "Infosys", Sector: "IT"},
	{Symbol: "HDFCBANK", Name: "HDFC Bank", Sector: "Banking"},
	{Symbol: "ICICIBANK", Name: "ICICI Bank", Sector: "Banking"},
	{Symbol: "SBIN", Name: "State Bank of India", Sector: "Banking"},
	{Symbol: "BHARTIARTL", Name: "Bharti Airtel", Sector: "Telecom"},
	{Symbol: "ITC", Name: "ITC Limited", Sector: "FMCG"},
	{Symbol: "LT", Name: "Larsen & Toubro", Sector: "Infrastructure"},
	{Symbol: "WIPRO", Name: "Wipro", Sector: "IT"},
	{Symbol: "TATAMOTORS", Name: "Tata Motors", Sector: "Auto"},
	{Symbol: "SUNPHARMA", Name: "Sun Pharmaceutical", Sector: "Pharma"},
}

// SeedStocks inserts the default master list. Existing symbols are left
// untouched, so this is safe to run on every startup.
func SeedStocks(ctx context.Context, st store.Store) error {
	for i := range defaultStocks {
		if err := st.CreateStock(ctx, &defaultStocks[i]); err != nil {
			return err
		}
	}
	slog.Info("stock master list seeded", "count", len(defaultStocks))
	return nil
}

package pricefeed

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocksim/trading-engine/internal/httputil"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
)

// Service exposes the stock list and quotes over HTTP.
type Service struct {
	store store.Store
}

// NewService creates the price feed HTTP layer.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// ListStocks handles GET /api/v1/stocks.
func (s *Service) ListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.store.ListStocks(r.Context())
	if err != nil {
		httputil.WriteError(w, "failed to list stocks", http.StatusInternalServerError)
		return
	}
	if stocks == nil {
		stocks = []model.Stock{}
	}

	httputil.WriteJSON(w, http.StatusOK, stocks)
}

// GetQuote handles GET /api/v1/stocks/{symbol}/quote.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	q, err := s.store.GetQuote(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteError(w, "no quote for symbol", http.StatusNotFound)
			return
		}
		httputil.WriteError(w, "failed to load quote", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, q)
}

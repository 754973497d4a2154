package trade

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/auth"
	"github.com/stocksim/trading-engine/internal/httputil"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/risk"
)

// Service exposes the settlement engine over HTTP. The authenticated account
// ID comes from the request context; handlers never accept one in the body.
type Service struct {
	engine *Engine
}

// NewService creates the HTTP layer over a settlement engine.
func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// TradeRequest is the JSON body for POST /trade/buy and /trade/sell.
type TradeRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// WalletRequest is the JSON body for POST /wallet/credit and /wallet/debit.
type WalletRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

// Buy handles POST /api/v1/trade/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := s.engine.Buy(r.Context(), accountID, req.Symbol, req.Quantity)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "BUY successful",
		"balance": balance,
	})
}

// Sell handles POST /api/v1/trade/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance, pnl, err := s.engine.Sell(r.Context(), accountID, req.Symbol, req.Quantity)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "SELL successful",
		"balance": balance,
		"pnl":     pnl,
	})
}

// Orders handles GET /api/v1/trade/orders. Newest first.
func (s *Service) Orders(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := s.engine.Orders(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, "failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	httputil.WriteJSON(w, http.StatusOK, orders)
}

// Portfolio handles GET /api/v1/portfolio.
func (s *Service) Portfolio(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	positions, err := s.engine.Positions(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	httputil.WriteJSON(w, http.StatusOK, positions)
}

// PortfolioDetail handles GET /api/v1/portfolio/detail.
func (s *Service) PortfolioDetail(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	details, err := s.engine.PortfolioDetail(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, details)
}

// RealizedPnL handles GET /api/v1/pnl/realized.
func (s *Service) RealizedPnL(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	total, err := s.engine.RealizedPnL(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, "failed to compute realized pnl", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"realizedPnL": total})
}

// InitWallet handles POST /api/v1/wallet/init.
func (s *Service) InitWallet(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wallet, err := s.engine.InitWallet(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, "failed to create wallet", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "wallet ready",
		"wallet":  wallet,
	})
}

// Credit handles POST /api/v1/wallet/credit.
func (s *Service) Credit(w http.ResponseWriter, r *http.Request) {
	s.walletMove(w, r, s.engine.Credit)
}

// Debit handles POST /api/v1/wallet/debit.
func (s *Service) Debit(w http.ResponseWriter, r *http.Request) {
	s.walletMove(w, r, s.engine.Debit)
}

func (s *Service) walletMove(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, decimal.Decimal, string) (decimal.Decimal, error)) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := apply(r.Context(), accountID, req.Amount, req.Method)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "wallet updated",
		"balance": balance,
	})
}

// Balance handles GET /api/v1/wallet/balance.
func (s *Service) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	balance, err := s.engine.Balance(r.Context(), accountID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// WalletTransactions handles GET /api/v1/wallet/transactions. Newest first.
func (s *Service) WalletTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r)
	if !ok {
		httputil.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	txns, err := s.engine.Transactions(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// writeEngineError maps settlement errors to HTTP statuses. All validation
// failures are 400s the caller can correct; a missing wallet is a 404.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		httputil.WriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnknownSymbol),
		errors.Is(err, ErrNoPosition),
		errors.Is(err, ErrInsufficientQuantity),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidAmount):
		httputil.WriteError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, risk.ErrSymbolLimitExceeded),
		errors.Is(err, risk.ErrSectorLimitExceeded):
		httputil.WriteError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		httputil.WriteError(w, "internal error", http.StatusInternalServerError)
	}
}

// Package api provides the HTTP handlers for account management, order
// execution, and portfolio queries.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/account"
	"github.com/finbook/accounting-engine/internal/metrics"
	"github.com/finbook/accounting-engine/internal/model"
	"github.com/finbook/accounting-engine/internal/money"
	"github.com/finbook/accounting-engine/internal/portfolio"
	"github.com/finbook/accounting-engine/internal/pricing"
	"github.com/finbook/accounting-engine/internal/store"
	"github.com/finbook/accounting-engine/internal/trading"
)

// Service handles HTTP operations over the account, trading and portfolio
// services. The store is optional; when set, account snapshots and ledger
// entries are persisted after each successful mutation.
type Service struct {
	accounts   *account.Service
	engine     *trading.Engine
	portfolios *portfolio.Service
	prices     pricing.Source
	store      store.Store // optional
	wsHub      *WSHub      // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new API service. Pass nil for st if persistence is
// not needed and nil for hub if WebSocket broadcasting is not needed.
func NewService(accounts *account.Service, engine *trading.Engine, portfolios *portfolio.Service, prices pricing.Source, st store.Store, hub *WSHub) *Service {
	return &Service{
		accounts:   accounts,
		engine:     engine,
		portfolios: portfolios,
		prices:     prices,
		store:      st,
		wsHub:      hub,
	}
}

// --- Request types ---

// CreateAccountRequest is the JSON body for account creation. ID is
// optional; a UUID is generated when omitted.
type CreateAccountRequest struct {
	ID             string          `json:"id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Memo           string          `json:"memo"`
}

// CashRequest is the JSON body for deposits and withdrawals.
type CashRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
}

// OrderRequest is the JSON body for POST /orders.
type OrderRequest struct {
	AccountID string          `json:"account_id"`
	Side      string          `json:"side"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Memo      string          `json:"memo"`
}

// CreatePortfolioRequest is the JSON body for portfolio creation.
type CreatePortfolioRequest struct {
	ID string `json:"id"`
}

// PortfolioTradeRequest is the JSON body for recording a portfolio trade.
type PortfolioTradeRequest struct {
	Side     string          `json:"side"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Memo     string          `json:"memo"`
}

// --- Account handlers ---

// CreateAccount handles POST /api/v1/accounts
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := s.accounts.Create(req.ID, req.InitialBalance, req.Memo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.AccountsCreated.Inc()

	acct, err := s.accounts.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.persist(r, id)

	slog.Info("account created", "id", id, "balance", acct.CashBalance.String())

	writeJSON(w, http.StatusCreated, acct)
}

// ListAccounts handles GET /api/v1/accounts
func (s *Service) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ids := s.accounts.List()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"accounts": ids})
}

// GetAccount handles GET /api/v1/accounts/{accountID}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.accounts.Get(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Deposit handles POST /api/v1/accounts/{accountID}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	s.applyCash(w, r, "deposit", s.accounts.Deposit)
}

// Withdraw handles POST /api/v1/accounts/{accountID}/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	s.applyCash(w, r, "withdrawal", s.accounts.Withdraw)
}

func (s *Service) applyCash(w http.ResponseWriter, r *http.Request, op string, fn func(string, any, string) (decimal.Decimal, error)) {
	accountID := chi.URLParam(r, "accountID")

	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := fn(accountID, req.Amount, req.Memo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if op == "deposit" {
		metrics.DepositsTotal.Inc()
	} else {
		metrics.WithdrawalsTotal.Inc()
	}
	s.persist(r, accountID)

	slog.Info(op, "account", accountID, "amount", req.Amount.String(), "balance", balance.String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      op,
			AccountID: accountID,
			Balance:   balance.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account_id": accountID,
		"balance":    balance.String(),
	})
}

// GetBalance handles GET /api/v1/accounts/{accountID}/balance
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	balance, err := s.accounts.Balance(accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account_id": accountID,
		"balance":    balance.String(),
	})
}

// GetPositions handles GET /api/v1/accounts/{accountID}/positions
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.accounts.Positions(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetLedger handles GET /api/v1/accounts/{accountID}/ledger
func (s *Service) GetLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.accounts.Ledger(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetAccountTrades handles GET /api/v1/accounts/{accountID}/trades
func (s *Service) GetAccountTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.engine.Trades(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetValuation handles GET /api/v1/accounts/{accountID}/valuation
func (s *Service) GetValuation(w http.ResponseWriter, r *http.Request) {
	val, err := s.engine.Valuation(r.Context(), chi.URLParam(r, "accountID"), s.prices)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, val)
}

// --- Order handlers ---

// PlaceOrder handles POST /api/v1/orders
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	rec, err := s.engine.PlaceOrder(req.AccountID, req.Side, req.Symbol, req.Quantity, req.Price, req.Memo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(rec.Side).Inc()
	metrics.OrderLatency.WithLabelValues(rec.Side).Observe(time.Since(start).Seconds())
	s.persist(r, req.AccountID)

	slog.Info("order executed",
		"account", rec.AccountID,
		"side", rec.Side,
		"symbol", rec.Symbol,
		"qty", rec.Quantity.String(),
		"price", rec.Price.String(),
		"total", rec.Total.String(),
		"balance", rec.CashBalanceAfter.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "trade_executed",
			AccountID: rec.AccountID,
			Side:      rec.Side,
			Symbol:    rec.Symbol,
			Quantity:  rec.Quantity.String(),
			Price:     rec.Price.String(),
			Total:     rec.Total.String(),
			Balance:   rec.CashBalanceAfter.String(),
		})
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListTrades handles GET /api/v1/trades
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.engine.AllTrades()
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// --- Portfolio handlers ---

// CreatePortfolio handles POST /api/v1/portfolios
func (s *Service) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := s.portfolios.Create(req.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("portfolio created", "id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// RecordPortfolioTrade handles POST /api/v1/portfolios/{portfolioID}/trades
func (s *Service) RecordPortfolioTrade(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	var req PortfolioTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := s.portfolios.RecordTrade(portfolioID, req.Side, req.Symbol, req.Quantity, req.Price, req.Memo)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(rec.Side).Inc()

	slog.Info("portfolio trade recorded",
		"portfolio", portfolioID,
		"side", rec.Side,
		"symbol", rec.Symbol,
		"qty", rec.Quantity.String(),
		"realized_pnl", rec.RealizedPnL.String(),
	)

	writeJSON(w, http.StatusOK, rec)
}

// GetPortfolioPositions handles GET /api/v1/portfolios/{portfolioID}/positions
func (s *Service) GetPortfolioPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.portfolios.Positions(chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetPortfolioTrades handles GET /api/v1/portfolios/{portfolioID}/trades
func (s *Service) GetPortfolioTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.portfolios.Trades(chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []model.PortfolioTrade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPortfolioValuation handles GET /api/v1/portfolios/{portfolioID}/valuation
// Pass ?strict=false to mark unpriced symbols to zero instead of failing.
func (s *Service) GetPortfolioValuation(w http.ResponseWriter, r *http.Request) {
	strict := r.URL.Query().Get("strict") != "false"

	val, err := s.portfolios.ValueAt(r.Context(), chi.URLParam(r, "portfolioID"), s.prices, strict)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, val)
}

// --- Persistence ---

// persist saves the account snapshot and its newest ledger entry after a
// successful mutation. Best effort: a storage failure is logged, never
// surfaced, because the in-memory state is authoritative.
func (s *Service) persist(r *http.Request, accountID string) {
	if s.store == nil {
		return
	}
	ctx := r.Context()

	acct, err := s.accounts.Get(accountID)
	if err != nil {
		return
	}
	if err := s.store.SaveAccount(ctx, &acct); err != nil {
		slog.Error("account snapshot persist failed", "account", accountID, "err", err)
		return
	}

	entries, err := s.accounts.Ledger(accountID)
	if err != nil || len(entries) == 0 {
		return
	}
	last := entries[len(entries)-1]
	if err := s.store.AppendLedgerEntry(ctx, &last); err != nil {
		slog.Error("ledger entry persist failed", "account", accountID, "err", err)
	}
}

// --- Error mapping ---

// writeServiceError maps domain errors onto HTTP statuses: unknown
// resources are 404, creation collisions are 409, validation failures are
// 400, and business rejections (funds, holdings, short floor) are 409.
func writeServiceError(w http.ResponseWriter, err error) {
	metrics.RejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()

	switch {
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, portfolio.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, pricing.ErrPriceUnavailable):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, account.ErrAlreadyExists),
		errors.Is(err, portfolio.ErrAlreadyExists):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, money.ErrInvalidValue):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, account.ErrInsufficientFunds),
		errors.Is(err, trading.ErrInsufficientCash),
		errors.Is(err, trading.ErrInsufficientHoldings),
		errors.Is(err, portfolio.ErrInsufficientHoldings),
		errors.Is(err, trading.ErrShortFloorBreached):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, account.ErrNotFound), errors.Is(err, portfolio.ErrNotFound):
		return "not_found"
	case errors.Is(err, money.ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, account.ErrInsufficientFunds), errors.Is(err, trading.ErrInsufficientCash):
		return "insufficient_funds"
	case errors.Is(err, trading.ErrInsufficientHoldings), errors.Is(err, portfolio.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, trading.ErrShortFloorBreached):
		return "short_floor"
	default:
		return "other"
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

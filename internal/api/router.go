package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/finbook/accounting-engine/internal/metrics"
)

// NewRouter builds the chi router with the standard middleware stack and
// all API routes. Pass nil for hub to skip the WebSocket endpoint.
func NewRouter(svc *Service, hub *WSHub) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"accounting-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if hub != nil {
			// WebSocket endpoint for real-time trade updates.
			r.Get("/ws", hub.HandleWS)
		}

		// Account management.
		r.Get("/accounts", svc.ListAccounts)
		r.Post("/accounts", svc.CreateAccount)
		r.Get("/accounts/{accountID}", svc.GetAccount)
		r.Post("/accounts/{accountID}/deposit", svc.Deposit)
		r.Post("/accounts/{accountID}/withdraw", svc.Withdraw)
		r.Get("/accounts/{accountID}/balance", svc.GetBalance)
		r.Get("/accounts/{accountID}/positions", svc.GetPositions)
		r.Get("/accounts/{accountID}/ledger", svc.GetLedger)
		r.Get("/accounts/{accountID}/trades", svc.GetAccountTrades)
		r.Get("/accounts/{accountID}/valuation", svc.GetValuation)

		// Order execution.
		r.Post("/orders", svc.PlaceOrder)
		r.Get("/trades", svc.ListTrades)

		// Average-cost portfolios.
		r.Post("/portfolios", svc.CreatePortfolio)
		r.Post("/portfolios/{portfolioID}/trades", svc.RecordPortfolioTrade)
		r.Get("/portfolios/{portfolioID}/positions", svc.GetPortfolioPositions)
		r.Get("/portfolios/{portfolioID}/trades", svc.GetPortfolioTrades)
		r.Get("/portfolios/{portfolioID}/valuation", svc.GetPortfolioValuation)
	})

	return r
}

// Package portfolio tracks average-cost positions and realized P&L
// independently of cash, for paper portfolios mirroring an external
// brokerage.
//
// Buys pool into a weighted-average cost per unit; sells realize P&L
// against that average. A position closed to exactly zero is removed; no
// residual dust is left behind.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/model"
	"github.com/finbook/accounting-engine/internal/money"
	"github.com/finbook/accounting-engine/internal/pricing"
)

var (
	// ErrNotFound is returned when a referenced portfolio does not exist.
	ErrNotFound = errors.New("portfolio: not found")

	// ErrAlreadyExists is returned on a creation collision for an
	// explicit portfolio id.
	ErrAlreadyExists = errors.New("portfolio: already exists")

	// ErrInsufficientHoldings is returned when a sell exceeds the held
	// quantity.
	ErrInsufficientHoldings = errors.New("portfolio: insufficient holdings")
)

type portfolioState struct {
	id          string
	createdAt   time.Time
	realizedPnL decimal.Decimal
	holdings    map[string]*model.Position
}

// Service manages portfolios, their positions and trade history.
type Service struct {
	rules money.Rules

	mu         sync.Mutex
	portfolios map[string]*portfolioState
	trades     []model.PortfolioTrade
	perID      map[string][]model.PortfolioTrade
}

// NewService creates an empty portfolio service.
func NewService(rules money.Rules) *Service {
	return &Service{
		rules:      rules,
		portfolios: make(map[string]*portfolioState),
		perID:      make(map[string][]model.PortfolioTrade),
	}
}

// Create registers a new, empty portfolio. An empty id generates one.
func (s *Service) Create(portfolioID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := portfolioID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := s.portfolios[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	s.portfolios[id] = &portfolioState{
		id:          id,
		createdAt:   time.Now().UTC(),
		realizedPnL: decimal.Zero,
		holdings:    make(map[string]*model.Position),
	}
	return id, nil
}

// RecordTrade applies one buy or sell to the portfolio using moving-average
// cost basis and returns the immutable trade record. A validation failure
// leaves all state unchanged.
func (s *Service) RecordTrade(portfolioID, side, symbol string, quantity, price any, memo string) (model.PortfolioTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.get(portfolioID)
	if err != nil {
		return model.PortfolioTrade{}, err
	}

	normSide, err := money.NormalizeSide(side)
	if err != nil {
		return model.PortfolioTrade{}, err
	}
	sym, err := money.NormalizeSymbol(symbol, false)
	if err != nil {
		return model.PortfolioTrade{}, err
	}
	qty, err := s.rules.RequirePositiveQty(quantity, "quantity")
	if err != nil {
		return model.PortfolioTrade{}, err
	}
	px, err := s.rules.RequirePositiveCash(price, "price")
	if err != nil {
		return model.PortfolioTrade{}, err
	}
	total := s.rules.QuantizeCash(qty.Mul(px))

	pos, held := pf.holdings[sym]
	if !held {
		pos = &model.Position{Symbol: sym, Quantity: decimal.Zero, TotalCost: decimal.Zero}
	}

	realized := decimal.Zero

	if normSide == model.SideBuy {
		pos.Quantity = s.rules.QuantizeQty(pos.Quantity.Add(qty))
		pos.TotalCost = s.rules.QuantizeCash(pos.TotalCost.Add(total))
		pf.holdings[sym] = pos
	} else {
		if qty.GreaterThan(pos.Quantity) {
			return model.PortfolioTrade{}, fmt.Errorf("%w: sell of %s exceeds position %s",
				ErrInsufficientHoldings, qty, pos.Quantity)
		}

		// The cost portion is quantized before subtraction; this ordering
		// keeps rounding reproducible across trade sequences.
		avgBefore := s.avgCost(pos)
		costPortion := s.rules.QuantizeCash(avgBefore.Mul(qty))
		realized = s.rules.QuantizeCash(total.Sub(costPortion))

		newQty := s.rules.QuantizeQty(pos.Quantity.Sub(qty))
		if newQty.IsZero() {
			delete(pf.holdings, sym)
			pos = &model.Position{Symbol: sym, Quantity: decimal.Zero, TotalCost: decimal.Zero}
		} else {
			pos.Quantity = newQty
			pos.TotalCost = s.rules.QuantizeCash(pos.TotalCost.Sub(costPortion))
		}
		pf.realizedPnL = s.rules.QuantizeCash(pf.realizedPnL.Add(realized))
	}

	rec := model.PortfolioTrade{
		Timestamp:     time.Now().UTC(),
		PortfolioID:   portfolioID,
		Side:          normSide,
		Symbol:        sym,
		Quantity:      qty,
		Price:         px,
		Total:         total,
		PositionAfter: pos.Quantity,
		AvgCostAfter:  s.avgCost(pos),
		RealizedPnL:   realized,
		Memo:          memo,
	}
	s.trades = append(s.trades, rec)
	s.perID[portfolioID] = append(s.perID[portfolioID], rec)
	return rec, nil
}

// Positions returns a copy of the symbol → quantity mapping.
func (s *Service) Positions(portfolioID string) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.get(portfolioID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(pf.holdings))
	for sym, pos := range pf.holdings {
		out[sym] = pos.Quantity
	}
	return out, nil
}

// Position returns the held quantity for one symbol (zero if none).
func (s *Service) Position(portfolioID, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.get(portfolioID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if pos, ok := pf.holdings[symbol]; ok {
		return pos.Quantity, nil
	}
	return decimal.Zero, nil
}

// RealizedPnL returns the portfolio's cumulative realized P&L.
func (s *Service) RealizedPnL(portfolioID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.get(portfolioID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return pf.realizedPnL, nil
}

// Trades returns a copy of one portfolio's trade records in order.
func (s *Service) Trades(portfolioID string) ([]model.PortfolioTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(portfolioID); err != nil {
		return nil, err
	}
	out := make([]model.PortfolioTrade, len(s.perID[portfolioID]))
	copy(out, s.perID[portfolioID])
	return out, nil
}

// AllTrades returns a copy of the global trade log.
func (s *Service) AllTrades() []model.PortfolioTrade {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PortfolioTrade, len(s.trades))
	copy(out, s.trades)
	return out
}

// List returns all known portfolio ids.
func (s *Service) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.portfolios))
	for id := range s.portfolios {
		ids = append(ids, id)
	}
	return ids
}

// Value computes the portfolio valuation from the supplied prices. In
// strict mode every held symbol needs a price; otherwise unpriced symbols
// are marked to zero, yielding an unrealized loss equal to the negated
// cost basis — intentional for unpriced assets, not an error state.
func (s *Service) Value(portfolioID string, prices map[string]decimal.Decimal, strict bool) (model.PortfolioValuation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.get(portfolioID)
	if err != nil {
		return model.PortfolioValuation{}, err
	}

	val := model.PortfolioValuation{
		PortfolioID:        portfolioID,
		Timestamp:          time.Now().UTC(),
		TotalMarketValue:   decimal.Zero,
		TotalUnrealizedPnL: decimal.Zero,
		RealizedPnLToDate:  pf.realizedPnL,
		Positions:          make([]model.PositionValuation, 0, len(pf.holdings)),
	}

	for sym, pos := range pf.holdings {
		px, ok := prices[sym]
		if !ok {
			if strict {
				return model.PortfolioValuation{}, fmt.Errorf("%w: %s", pricing.ErrPriceUnavailable, sym)
			}
			px = decimal.Zero
		}
		px = s.rules.QuantizeCash(px)

		mv := s.rules.QuantizeCash(pos.Quantity.Mul(px))
		avg := s.avgCost(pos)
		unrealized := s.rules.QuantizeCash(pos.Quantity.Mul(px.Sub(avg)))

		val.Positions = append(val.Positions, model.PositionValuation{
			Symbol:        sym,
			Quantity:      pos.Quantity,
			Price:         px,
			MarketValue:   mv,
			AvgCost:       avg,
			UnrealizedPnL: unrealized,
		})
		val.TotalMarketValue = s.rules.QuantizeCash(val.TotalMarketValue.Add(mv))
		val.TotalUnrealizedPnL = s.rules.QuantizeCash(val.TotalUnrealizedPnL.Add(unrealized))
	}
	return val, nil
}

// ValueAt fetches prices for the held symbols from the source and then
// values the portfolio. Prices are fetched with no lock held, so a slow
// collaborator never blocks trade recording.
func (s *Service) ValueAt(ctx context.Context, portfolioID string, src pricing.Source, strict bool) (model.PortfolioValuation, error) {
	positions, err := s.Positions(portfolioID)
	if err != nil {
		return model.PortfolioValuation{}, err
	}

	prices := make(map[string]decimal.Decimal, len(positions))
	for sym := range positions {
		px, err := src.Price(ctx, sym)
		if err != nil {
			if strict {
				return model.PortfolioValuation{}, err
			}
			continue
		}
		prices[sym] = px
	}
	return s.Value(portfolioID, prices, strict)
}

// avgCost derives the average cost per unit, quantized to cash precision
// (zero for an empty position).
func (s *Service) avgCost(pos *model.Position) decimal.Decimal {
	if pos.Quantity.IsZero() {
		return decimal.Zero
	}
	return s.rules.QuantizeCash(pos.TotalCost.Div(pos.Quantity))
}

func (s *Service) get(portfolioID string) (*portfolioState, error) {
	pf, ok := s.portfolios[portfolioID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, portfolioID)
	}
	return pf, nil
}

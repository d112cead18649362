// Package pricing defines the market-data collaborator boundary. The engine
// never caches or refreshes prices itself; it asks a Source at valuation
// time, outside any lock that would block trade execution.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/money"
)

// ErrPriceUnavailable is returned when a source has no price for a symbol.
var ErrPriceUnavailable = errors.New("pricing: price unavailable")

// Source supplies current prices for symbols.
type Source interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// StaticSource is a fixed-price source for tests and development.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticSource returns a source seeded with a few well-known test
// symbols. Symbols are matched case-insensitively.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		prices: map[string]decimal.Decimal{
			"AAPL":  decimal.RequireFromString("190.00"),
			"TSLA":  decimal.RequireFromString("250.00"),
			"GOOGL": decimal.RequireFromString("140.00"),
		},
	}
}

// Set installs or replaces the price for a symbol.
func (s *StaticSource) Set(symbol string, price decimal.Decimal) {
	sym, err := money.NormalizeSymbol(symbol, true)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.prices[sym] = price
	s.mu.Unlock()
}

// Price returns the configured price for the symbol.
func (s *StaticSource) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	sym, err := money.NormalizeSymbol(symbol, true)
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.mu.RLock()
	px, ok := s.prices[sym]
	s.mu.RUnlock()
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, sym)
	}
	return px, nil
}

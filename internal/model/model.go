// Package model defines the core domain types shared across the accounting
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types. The ledger also accepts free-form tags for
// caller-defined events (e.g. adjustments); these constants cover the
// entry kinds the engine itself produces.
const (
	EntryCreate     = "create"
	EntryDeposit    = "deposit"
	EntryWithdrawal = "withdrawal"
	EntryBuy        = "buy"
	EntrySell       = "sell"
)

// Order sides, always normalized to lowercase.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Account represents one account's tradable balance sheet: cash plus
// symbol → quantity holdings. Holdings never contain zero-quantity entries.
type Account struct {
	ID          string                     `json:"id" db:"id"`
	CashBalance decimal.Decimal            `json:"cash_balance" db:"cash_balance"`
	CreatedAt   time.Time                  `json:"created_at" db:"created_at"`
	Holdings    map[string]decimal.Decimal `json:"holdings" db:"holdings"`
}

// LedgerEntry is an immutable record of one account event.
// Entries are stored by value and every query returns copies, so callers
// can never mutate recorded history. Symbol, Quantity, Price and
// PositionAfter are only set for buy/sell entries.
type LedgerEntry struct {
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
	AccountID     string          `json:"account_id" db:"account_id"`
	Type          string          `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	Symbol        string          `json:"symbol,omitempty" db:"symbol"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	Price         decimal.Decimal `json:"price" db:"price"`
	PositionAfter decimal.Decimal `json:"position_after" db:"position_after"`
	Memo          string          `json:"memo,omitempty" db:"memo"`
}

// TradeRecord is the immutable result of one executed cash-settled order.
type TradeRecord struct {
	Timestamp        time.Time       `json:"timestamp"`
	AccountID        string          `json:"account_id"`
	Side             string          `json:"side"`
	Symbol           string          `json:"symbol"`
	Quantity         decimal.Decimal `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	Total            decimal.Decimal `json:"total"`
	CashBalanceAfter decimal.Decimal `json:"cash_balance_after"`
	PositionAfter    decimal.Decimal `json:"position_after"`
	Memo             string          `json:"memo,omitempty"`
}

// Position is an average-cost lot for one symbol within a portfolio.
// AvgCost is derived (TotalCost / Quantity), never stored.
type Position struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// PortfolioTrade is the immutable result of one trade applied to an
// average-cost portfolio. RealizedPnL is zero for buys.
type PortfolioTrade struct {
	Timestamp     time.Time       `json:"timestamp"`
	PortfolioID   string          `json:"portfolio_id"`
	Side          string          `json:"side"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Total         decimal.Decimal `json:"total"`
	PositionAfter decimal.Decimal `json:"position_after"`
	AvgCostAfter  decimal.Decimal `json:"avg_cost_after"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Memo          string          `json:"memo,omitempty"`
}

// PositionValuation is the valuation of a single portfolio position against
// a current price.
type PositionValuation struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioValuation is a derived snapshot combining stored positions with
// externally supplied prices. Never persisted.
type PortfolioValuation struct {
	PortfolioID        string              `json:"portfolio_id"`
	Timestamp          time.Time           `json:"timestamp"`
	TotalMarketValue   decimal.Decimal     `json:"total_market_value"`
	TotalUnrealizedPnL decimal.Decimal     `json:"total_unrealized_pnl"`
	RealizedPnLToDate  decimal.Decimal     `json:"realized_pnl_to_date"`
	Positions          []PositionValuation `json:"positions"`
}

// HoldingValue is the mark-to-market value of one cash-settled holding.
type HoldingValue struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// AccountValuation is a derived snapshot of a cash-settled account: cash
// plus holdings marked to live prices. NetContributions is the sum of cash
// put in minus cash taken out (create + deposits − withdrawals), and
// ProfitAndLoss is TotalValue measured against it.
type AccountValuation struct {
	AccountID        string          `json:"account_id"`
	Timestamp        time.Time       `json:"timestamp"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	MarketValue      decimal.Decimal `json:"market_value"`
	TotalValue       decimal.Decimal `json:"total_value"`
	NetContributions decimal.Decimal `json:"net_contributions"`
	ProfitAndLoss    decimal.Decimal `json:"profit_and_loss"`
	Holdings         []HoldingValue  `json:"holdings"`
}

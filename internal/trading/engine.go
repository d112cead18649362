// Package trading executes cash-settled buy/sell orders against an
// account's cash and holdings.
//
// The whole validate→mutate→log sequence for an order runs inside one
// account.Apply section, so concurrent orders against the same account can
// never observe or produce partially applied state.
package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/account"
	"github.com/finbook/accounting-engine/internal/ledger"
	"github.com/finbook/accounting-engine/internal/model"
	"github.com/finbook/accounting-engine/internal/money"
	"github.com/finbook/accounting-engine/internal/pricing"
)

var (
	// ErrInsufficientCash is returned when a buy's total exceeds the
	// account's cash balance.
	ErrInsufficientCash = errors.New("trading: insufficient cash")

	// ErrInsufficientHoldings is returned when a sell exceeds the held
	// quantity and short selling is not allowed.
	ErrInsufficientHoldings = errors.New("trading: insufficient holdings")

	// ErrShortFloorBreached is returned when a sell would take the
	// position's value past the configured short floor.
	ErrShortFloorBreached = errors.New("trading: short floor breached")
)

// ShortSellingPolicy controls whether sells may exceed holdings and how far.
// The strict policy ("cannot sell what you don't hold") and the bounded
// short policy are materially different risk models; the policy is fixed at
// engine construction and never mixed per call.
type ShortSellingPolicy struct {
	// Allowed permits negative positions when true.
	Allowed bool

	// Floor is the most negative post-trade position value permitted,
	// e.g. -1000. Only consulted when Allowed is true.
	Floor decimal.Decimal

	// InclusiveFloor permits a sell that lands the position value exactly
	// on the floor. When false, reaching the floor is already a breach.
	InclusiveFloor bool
}

// NoShort is the strict policy: sells must be covered by holdings.
func NoShort() ShortSellingPolicy {
	return ShortSellingPolicy{}
}

// BoundedShort permits negative positions down to the given value floor.
func BoundedShort(floor decimal.Decimal, inclusive bool) ShortSellingPolicy {
	return ShortSellingPolicy{Allowed: true, Floor: floor, InclusiveFloor: inclusive}
}

// Engine validates and executes orders, mutating account state and
// recording every execution in the ledger and the trade log.
type Engine struct {
	rules    money.Rules
	accounts *account.Service
	ledger   *ledger.Ledger
	policy   ShortSellingPolicy

	mu         sync.Mutex
	trades     []model.TradeRecord
	perAccount map[string][]model.TradeRecord
}

// NewEngine creates an engine over the given account service and ledger.
func NewEngine(accounts *account.Service, lg *ledger.Ledger, policy ShortSellingPolicy) *Engine {
	return &Engine{
		rules:      accounts.Rules(),
		accounts:   accounts,
		ledger:     lg,
		policy:     policy,
		perAccount: make(map[string][]model.TradeRecord),
	}
}

// PlaceOrder validates and executes one buy or sell order. Validation order:
// account exists, side, symbol, quantity, price, then sufficiency. A
// validation failure leaves all state unchanged.
func (e *Engine) PlaceOrder(accountID, side, symbol string, quantity, price any, memo string) (model.TradeRecord, error) {
	var rec model.TradeRecord

	err := e.accounts.Apply(func(tx *account.Txn) error {
		if !tx.Exists(accountID) {
			return fmt.Errorf("%w: %s", account.ErrNotFound, accountID)
		}

		normSide, err := money.NormalizeSide(side)
		if err != nil {
			return err
		}
		sym, err := money.NormalizeSymbol(symbol, false)
		if err != nil {
			return err
		}
		qty, err := e.rules.RequirePositiveQty(quantity, "quantity")
		if err != nil {
			return err
		}
		px, err := e.rules.RequirePositiveCash(price, "price")
		if err != nil {
			return err
		}
		total := e.rules.QuantizeCash(qty.Mul(px))

		var balanceAfter, positionAfter decimal.Decimal

		switch normSide {
		case model.SideBuy:
			balance, err := tx.Balance(accountID)
			if err != nil {
				return err
			}
			// A buy whose total equals the balance succeeds.
			if total.GreaterThan(balance) {
				return fmt.Errorf("%w: total %s exceeds balance %s",
					ErrInsufficientCash, total, balance)
			}
			if balanceAfter, err = tx.Debit(accountID, total); err != nil {
				return err
			}
			if positionAfter, err = tx.AdjustPosition(accountID, sym, qty); err != nil {
				return err
			}
			if _, err := e.ledger.RecordBuy(accountID, sym, qty, px, balanceAfter, positionAfter, memo); err != nil {
				return err
			}

		case model.SideSell:
			pos, err := tx.Position(accountID, sym)
			if err != nil {
				return err
			}
			if err := e.checkSell(pos, qty, px); err != nil {
				return err
			}
			if balanceAfter, err = tx.Credit(accountID, total); err != nil {
				return err
			}
			if positionAfter, err = tx.AdjustPosition(accountID, sym, qty.Neg()); err != nil {
				return err
			}
			if _, err := e.ledger.RecordSell(accountID, sym, qty, px, balanceAfter, positionAfter, memo); err != nil {
				return err
			}
		}

		rec = model.TradeRecord{
			Timestamp:        time.Now().UTC(),
			AccountID:        accountID,
			Side:             normSide,
			Symbol:           sym,
			Quantity:         qty,
			Price:            px,
			Total:            total,
			CashBalanceAfter: balanceAfter,
			PositionAfter:    positionAfter,
			Memo:             memo,
		}
		return nil
	})
	if err != nil {
		return model.TradeRecord{}, err
	}

	e.mu.Lock()
	e.trades = append(e.trades, rec)
	e.perAccount[accountID] = append(e.perAccount[accountID], rec)
	e.mu.Unlock()

	return rec, nil
}

// checkSell enforces the engine's sell-side policy against the current
// position.
func (e *Engine) checkSell(position, qty, price decimal.Decimal) error {
	if !e.policy.Allowed {
		// A sell of exactly the held quantity succeeds.
		if qty.GreaterThan(position) {
			return fmt.Errorf("%w: sell of %s exceeds position %s",
				ErrInsufficientHoldings, qty, position)
		}
		return nil
	}

	newValue := e.rules.QuantizeCash(position.Sub(qty).Mul(price))
	if newValue.LessThan(e.policy.Floor) {
		return fmt.Errorf("%w: position value %s below floor %s",
			ErrShortFloorBreached, newValue, e.policy.Floor)
	}
	if !e.policy.InclusiveFloor && newValue.Equal(e.policy.Floor) {
		return fmt.Errorf("%w: position value %s at floor %s",
			ErrShortFloorBreached, newValue, e.policy.Floor)
	}
	return nil
}

// Trades returns a copy of one account's trade records in execution order.
func (e *Engine) Trades(accountID string) ([]model.TradeRecord, error) {
	if _, err := e.accounts.Balance(accountID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.TradeRecord, len(e.perAccount[accountID]))
	copy(out, e.perAccount[accountID])
	return out, nil
}

// AllTrades returns a copy of the global trade log.
func (e *Engine) AllTrades() []model.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.TradeRecord, len(e.trades))
	copy(out, e.trades)
	return out
}

// Valuation marks the account's holdings to prices from the source. The
// holdings snapshot is taken first and prices are fetched with no lock
// held, so a slow collaborator never blocks trade execution.
func (e *Engine) Valuation(ctx context.Context, accountID string, src pricing.Source) (model.AccountValuation, error) {
	acct, err := e.accounts.Get(accountID)
	if err != nil {
		return model.AccountValuation{}, err
	}

	val := model.AccountValuation{
		AccountID:   accountID,
		Timestamp:   time.Now().UTC(),
		CashBalance: acct.CashBalance,
		MarketValue: decimal.Zero,
		Holdings:    make([]model.HoldingValue, 0, len(acct.Holdings)),
	}

	for sym, qty := range acct.Holdings {
		px, err := src.Price(ctx, sym)
		if err != nil {
			return model.AccountValuation{}, err
		}
		px = e.rules.QuantizeCash(px)
		mv := e.rules.QuantizeCash(qty.Mul(px))
		val.MarketValue = e.rules.QuantizeCash(val.MarketValue.Add(mv))
		val.Holdings = append(val.Holdings, model.HoldingValue{
			Symbol:      sym,
			Quantity:    qty,
			Price:       px,
			MarketValue: mv,
		})
	}

	val.TotalValue = e.rules.QuantizeCash(val.CashBalance.Add(val.MarketValue))

	// P&L is measured against net cash contributions, reconstructed from
	// the ledger: opening balance plus deposits minus withdrawals.
	for _, entry := range e.ledger.Entries(accountID) {
		switch entry.Type {
		case model.EntryCreate, model.EntryDeposit:
			val.NetContributions = val.NetContributions.Add(entry.Amount)
		case model.EntryWithdrawal:
			val.NetContributions = val.NetContributions.Sub(entry.Amount)
		}
	}
	val.NetContributions = e.rules.QuantizeCash(val.NetContributions)
	val.ProfitAndLoss = e.rules.QuantizeCash(val.TotalValue.Sub(val.NetContributions))
	return val, nil
}

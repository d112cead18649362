// Package ledger keeps the append-only record of account events.
//
// Entries are appended to a global sequence and a per-account sequence in
// operation order, stamped with non-decreasing UTC timestamps. Once appended
// an entry is never modified; queries return defensive copies.
package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/model"
	"github.com/finbook/accounting-engine/internal/money"
)

// Ledger is the in-memory append-only event log. Safe for concurrent use;
// the lock only protects appends and copy-on-read — recorded entries rely
// on immutability, not the lock.
type Ledger struct {
	rules money.Rules

	mu         sync.Mutex
	entries    []model.LedgerEntry
	perAccount map[string][]model.LedgerEntry
	lastStamp  time.Time
}

// New creates an empty ledger using the given normalization rules.
func New(rules money.Rules) *Ledger {
	return &Ledger{
		rules:      rules,
		perAccount: make(map[string][]model.LedgerEntry),
	}
}

// Record appends a free-form entry. The type tag is caller-defined (e.g.
// "adjust"); amount must quantize to a non-negative cash value.
func (l *Ledger) Record(accountID, entryType string, amount any, balanceAfter decimal.Decimal, memo string) (model.LedgerEntry, error) {
	amt, err := l.rules.RequireNonNegativeCash(amount, "amount")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return l.append(model.LedgerEntry{
		AccountID:    accountID,
		Type:         entryType,
		Amount:       amt,
		BalanceAfter: l.rules.QuantizeCash(balanceAfter),
		Memo:         memo,
	}), nil
}

// RecordCreate appends an account-creation entry. The amount is the initial
// balance and may be zero.
func (l *Ledger) RecordCreate(accountID string, initialBalance decimal.Decimal, memo string) (model.LedgerEntry, error) {
	amt, err := l.rules.RequireNonNegativeCash(initialBalance, "initial balance")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return l.append(model.LedgerEntry{
		AccountID:    accountID,
		Type:         model.EntryCreate,
		Amount:       amt,
		BalanceAfter: amt,
		Memo:         memo,
	}), nil
}

// RecordDeposit appends a deposit entry. The amount must quantize strictly
// positive.
func (l *Ledger) RecordDeposit(accountID string, amount any, balanceAfter decimal.Decimal, memo string) (model.LedgerEntry, error) {
	amt, err := l.rules.RequirePositiveCash(amount, "deposit amount")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return l.append(model.LedgerEntry{
		AccountID:    accountID,
		Type:         model.EntryDeposit,
		Amount:       amt,
		BalanceAfter: l.rules.QuantizeCash(balanceAfter),
		Memo:         memo,
	}), nil
}

// RecordWithdrawal appends a withdrawal entry. The amount must quantize
// strictly positive.
func (l *Ledger) RecordWithdrawal(accountID string, amount any, balanceAfter decimal.Decimal, memo string) (model.LedgerEntry, error) {
	amt, err := l.rules.RequirePositiveCash(amount, "withdrawal amount")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return l.append(model.LedgerEntry{
		AccountID:    accountID,
		Type:         model.EntryWithdrawal,
		Amount:       amt,
		BalanceAfter: l.rules.QuantizeCash(balanceAfter),
		Memo:         memo,
	}), nil
}

// RecordBuy appends a buy trade entry. Quantity and price must each
// independently quantize strictly positive.
func (l *Ledger) RecordBuy(accountID, symbol string, quantity, price any, balanceAfter, positionAfter decimal.Decimal, memo string) (model.LedgerEntry, error) {
	return l.recordTrade(accountID, model.EntryBuy, symbol, quantity, price, balanceAfter, positionAfter, memo)
}

// RecordSell appends a sell trade entry. Quantity and price must each
// independently quantize strictly positive.
func (l *Ledger) RecordSell(accountID, symbol string, quantity, price any, balanceAfter, positionAfter decimal.Decimal, memo string) (model.LedgerEntry, error) {
	return l.recordTrade(accountID, model.EntrySell, symbol, quantity, price, balanceAfter, positionAfter, memo)
}

func (l *Ledger) recordTrade(accountID, entryType, symbol string, quantity, price any, balanceAfter, positionAfter decimal.Decimal, memo string) (model.LedgerEntry, error) {
	sym, err := money.NormalizeSymbol(symbol, false)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	qty, err := l.rules.RequirePositiveQty(quantity, "quantity")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	px, err := l.rules.RequirePositiveCash(price, "price")
	if err != nil {
		return model.LedgerEntry{}, err
	}
	total := l.rules.QuantizeCash(qty.Mul(px))

	return l.append(model.LedgerEntry{
		AccountID:     accountID,
		Type:          entryType,
		Amount:        total,
		BalanceAfter:  l.rules.QuantizeCash(balanceAfter),
		Symbol:        sym,
		Quantity:      qty,
		Price:         px,
		PositionAfter: l.rules.QuantizeQty(positionAfter),
		Memo:          memo,
	}), nil
}

// append stamps and stores the entry under the lock. Timestamps are clamped
// to be non-decreasing across the global sequence.
func (l *Ledger) append(e model.LedgerEntry) model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if now.Before(l.lastStamp) {
		now = l.lastStamp
	}
	l.lastStamp = now
	e.Timestamp = now

	l.entries = append(l.entries, e)
	l.perAccount[e.AccountID] = append(l.perAccount[e.AccountID], e)
	return e
}

// Entries returns a copy of one account's entries in append order. An
// account with no recorded entries yields an empty slice; existence checks
// belong to the account service, not the ledger.
func (l *Ledger) Entries(accountID string) []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.LedgerEntry, len(l.perAccount[accountID]))
	copy(out, l.perAccount[accountID])
	return out
}

// All returns a copy of the global sequence in append order.
func (l *Ledger) All() []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of entries in the global sequence.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

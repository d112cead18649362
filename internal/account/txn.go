package account

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Txn is a view of the service state valid only inside Apply. Its methods
// assume the service lock is held and must not be retained after the
// callback returns.
//
// Composing already-atomic single calls does not give atomicity across the
// sequence; Apply exists so a caller grouping cash, position and ledger
// mutations gets one lock acquisition for the whole group.
type Txn struct {
	s *Service
}

// Apply runs fn under the service lock. If fn returns an error, it is the
// callback's responsibility not to have mutated state first — validate
// fully before touching balances or positions.
func (s *Service) Apply(fn func(*Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Txn{s: s})
}

// Exists reports whether the account is known.
func (t *Txn) Exists(accountID string) bool {
	_, ok := t.s.accounts[accountID]
	return ok
}

// Balance returns the account's cash balance.
func (t *Txn) Balance(accountID string) (decimal.Decimal, error) {
	acct, err := t.s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acct.CashBalance, nil
}

// Position returns the held quantity for one symbol (zero if none).
func (t *Txn) Position(accountID, symbol string) (decimal.Decimal, error) {
	acct, err := t.s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acct.Holdings[symbol], nil
}

// Credit adds an already-normalized amount to the cash balance and returns
// the new balance.
func (t *Txn) Credit(accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, err := t.s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	acct.CashBalance = t.s.rules.QuantizeCash(acct.CashBalance.Add(amount))
	return acct.CashBalance, nil
}

// Debit subtracts an already-normalized amount from the cash balance. A
// debit equal to the balance succeeds; one unit of precision more fails
// with ErrInsufficientFunds.
func (t *Txn) Debit(accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, err := t.s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if amount.GreaterThan(acct.CashBalance) {
		return decimal.Decimal{}, fmt.Errorf("%w: debit of %s exceeds balance %s",
			ErrInsufficientFunds, amount, acct.CashBalance)
	}
	acct.CashBalance = t.s.rules.QuantizeCash(acct.CashBalance.Sub(amount))
	return acct.CashBalance, nil
}

// AdjustPosition applies a signed, already-normalized quantity delta to one
// symbol and returns the new position. A position reaching exactly zero is
// removed from the holdings map, never stored as a zero entry.
func (t *Txn) AdjustPosition(accountID, symbol string, delta decimal.Decimal) (decimal.Decimal, error) {
	acct, err := t.s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	newQty := t.s.rules.QuantizeQty(acct.Holdings[symbol].Add(delta))
	if newQty.IsZero() {
		delete(acct.Holdings, symbol)
		return decimal.Decimal{}, nil
	}
	acct.Holdings[symbol] = newQty
	return newQty, nil
}

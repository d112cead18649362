// Package account owns cash balances and holdings for a set of accounts.
//
// A single mutex per Service guards every validate→mutate→log sequence, so
// check-then-act races (two withdrawals both observing sufficient balance)
// cannot occur. Reads that return collections copy under the lock.
package account

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/ledger"
	"github.com/finbook/accounting-engine/internal/model"
	"github.com/finbook/accounting-engine/internal/money"
)

var (
	// ErrNotFound is returned when a referenced account does not exist.
	ErrNotFound = errors.New("account: not found")

	// ErrAlreadyExists is returned on a creation collision for an
	// explicit account id.
	ErrAlreadyExists = errors.New("account: already exists")

	// ErrInsufficientFunds is returned when a debit would drive the cash
	// balance negative.
	ErrInsufficientFunds = errors.New("account: insufficient funds")
)

// Service manages accounts, balances, holdings and the transaction ledger.
type Service struct {
	rules  money.Rules
	ledger *ledger.Ledger

	mu       sync.Mutex
	accounts map[string]*model.Account
}

// NewService creates an empty account service writing to the given ledger.
func NewService(rules money.Rules, lg *ledger.Ledger) *Service {
	return &Service{
		rules:    rules,
		ledger:   lg,
		accounts: make(map[string]*model.Account),
	}
}

// Rules returns the normalization rules the service was built with.
func (s *Service) Rules() money.Rules { return s.rules }

// Create registers a new account. An empty accountID generates one. The
// initial balance must quantize non-negative; a create ledger entry is
// written even when it is zero.
func (s *Service) Create(accountID string, initialBalance any, memo string) (string, error) {
	balance, err := s.rules.RequireNonNegativeCash(initialBalance, "initial balance")
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := accountID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := s.accounts[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	s.accounts[id] = &model.Account{
		ID:          id,
		CashBalance: balance,
		CreatedAt:   time.Now().UTC(),
		Holdings:    make(map[string]decimal.Decimal),
	}

	if _, err := s.ledger.RecordCreate(id, balance, memo); err != nil {
		delete(s.accounts, id)
		return "", err
	}
	return id, nil
}

// Deposit adds a strictly positive amount to the account's cash balance and
// returns the new balance.
func (s *Service) Deposit(accountID string, amount any, memo string) (decimal.Decimal, error) {
	amt, err := s.rules.RequirePositiveCash(amount, "deposit amount")
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	acct.CashBalance = s.rules.QuantizeCash(acct.CashBalance.Add(amt))
	if _, err := s.ledger.RecordDeposit(accountID, amt, acct.CashBalance, memo); err != nil {
		return decimal.Decimal{}, err
	}
	return acct.CashBalance, nil
}

// Withdraw removes a strictly positive amount from the account's cash
// balance and returns the new balance. Plain withdrawals never go negative.
func (s *Service) Withdraw(accountID string, amount any, memo string) (decimal.Decimal, error) {
	amt, err := s.rules.RequirePositiveCash(amount, "withdrawal amount")
	if err != nil {
		return decimal.Decimal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if amt.GreaterThan(acct.CashBalance) {
		return decimal.Decimal{}, fmt.Errorf("%w: withdrawal of %s exceeds balance %s",
			ErrInsufficientFunds, amt, acct.CashBalance)
	}

	acct.CashBalance = s.rules.QuantizeCash(acct.CashBalance.Sub(amt))
	if _, err := s.ledger.RecordWithdrawal(accountID, amt, acct.CashBalance, memo); err != nil {
		return decimal.Decimal{}, err
	}
	return acct.CashBalance, nil
}

// Balance returns the account's current cash balance.
func (s *Service) Balance(accountID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acct.CashBalance, nil
}

// Positions returns a copy of the account's symbol → quantity holdings.
func (s *Service) Positions(accountID string) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.get(accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(acct.Holdings))
	for sym, qty := range acct.Holdings {
		out[sym] = qty
	}
	return out, nil
}

// Position returns the held quantity for one symbol (zero if none).
func (s *Service) Position(accountID, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.get(accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acct.Holdings[symbol], nil
}

// Get returns a snapshot copy of the account, holdings included.
func (s *Service) Get(accountID string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.get(accountID)
	if err != nil {
		return model.Account{}, err
	}
	snap := *acct
	snap.Holdings = make(map[string]decimal.Decimal, len(acct.Holdings))
	for sym, qty := range acct.Holdings {
		snap.Holdings[sym] = qty
	}
	return snap, nil
}

// List returns all known account ids.
func (s *Service) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids
}

// Ledger returns the account's ledger entries in chronological order.
// Unknown accounts return ErrNotFound; this service is the strict variant
// of that contract, the ledger itself stays permissive.
func (s *Service) Ledger(accountID string) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	exists := s.accounts[accountID] != nil
	s.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	return s.ledger.Entries(accountID), nil
}

// AllLedger returns the global ledger sequence.
func (s *Service) AllLedger() []model.LedgerEntry {
	return s.ledger.All()
}

// get returns the live account pointer. Callers must hold s.mu.
func (s *Service) get(accountID string) (*model.Account, error) {
	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	return acct, nil
}

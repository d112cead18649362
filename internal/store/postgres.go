package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// holdings are stored as a JSONB symbol→quantity map with string values.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveAccount(ctx context.Context, acct *model.Account) error {
	holdings, err := marshalHoldings(acct.Holdings)
	if err != nil {
		return fmt.Errorf("save account %s: %w", acct.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (id, cash_balance, holdings, created_at)
		 VALUES ($1, $2::NUMERIC, $3::JSONB, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET cash_balance = EXCLUDED.cash_balance, holdings = EXCLUDED.holdings`,
		acct.ID, acct.CashBalance.String(), holdings, acct.CreatedAt,
	)
	return err
}

func (s *PostgresStore) LoadAccount(ctx context.Context, id string) (*model.Account, error) {
	var acct model.Account
	var balance string
	var holdings []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, cash_balance::TEXT, holdings, created_at
		 FROM accounts WHERE id = $1`, id).
		Scan(&acct.ID, &balance, &holdings, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}

	acct.CashBalance, _ = decimal.NewFromString(balance)
	acct.Holdings, err = unmarshalHoldings(holdings)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	return &acct, nil
}

func (s *PostgresStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) AppendLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries
		   (account_id, type, amount, balance_after, symbol, quantity, price, position_after, memo, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		e.AccountID, e.Type,
		e.Amount.String(), e.BalanceAfter.String(),
		e.Symbol, e.Quantity.String(), e.Price.String(), e.PositionAfter.String(),
		e.Memo, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, type, amount::TEXT, balance_after::TEXT,
		        symbol, quantity::TEXT, price::TEXT, position_after::TEXT,
		        memo, timestamp
		 FROM ledger_entries WHERE account_id = $1 ORDER BY timestamp, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var amountS, balanceS, qtyS, priceS, posS string

		if err := rows.Scan(&e.AccountID, &e.Type, &amountS, &balanceS,
			&e.Symbol, &qtyS, &priceS, &posS,
			&e.Memo, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Amount, _ = decimal.NewFromString(amountS)
		e.BalanceAfter, _ = decimal.NewFromString(balanceS)
		e.Quantity, _ = decimal.NewFromString(qtyS)
		e.Price, _ = decimal.NewFromString(priceS)
		e.PositionAfter, _ = decimal.NewFromString(posS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// marshalHoldings encodes holdings as a JSON object with string quantities,
// preserving decimal exactness across the round trip.
func marshalHoldings(holdings map[string]decimal.Decimal) ([]byte, error) {
	out := make(map[string]string, len(holdings))
	for sym, qty := range holdings {
		out[sym] = qty.String()
	}
	return json.Marshal(out)
}

func unmarshalHoldings(data []byte) (map[string]decimal.Decimal, error) {
	raw := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for sym, qtyS := range raw {
		qty, err := decimal.NewFromString(qtyS)
		if err != nil {
			return nil, fmt.Errorf("holdings %s: %w", sym, err)
		}
		out[sym] = qty
	}
	return out, nil
}

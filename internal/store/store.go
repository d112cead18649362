// Package store defines the persistence interface for account snapshots
// and the ledger. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/finbook/accounting-engine/internal/model"
)

// ErrNotFound is returned when a requested account has no stored snapshot.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Account snapshots are last-writer-wins;
// ledger entries are append-only and never updated or deleted.
type Store interface {
	// --- Account snapshots ---

	// SaveAccount upserts the account snapshot.
	SaveAccount(ctx context.Context, acct *model.Account) error

	// LoadAccount retrieves an account snapshot by id.
	LoadAccount(ctx context.Context, id string) (*model.Account, error)

	// ListAccountIDs returns the ids of all stored accounts.
	ListAccountIDs(ctx context.Context) ([]string, error)

	// --- Immutable ledger ---

	// AppendLedgerEntry appends one immutable ledger entry.
	AppendLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// LedgerEntries returns an account's ledger in append order.
	LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error)
}

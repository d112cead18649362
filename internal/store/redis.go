package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finbook/accounting-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) SaveAccount(ctx context.Context, acct *model.Account) error {
	if err := s.primary.SaveAccount(ctx, acct); err != nil {
		return err
	}
	s.cacheAccount(ctx, acct)
	return nil
}

func (s *CachedStore) AppendLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := s.primary.AppendLedgerEntry(ctx, entry); err != nil {
		return err
	}
	// Invalidate the ledger cache; next read re-populates.
	s.rdb.Del(ctx, ledgerKey(entry.AccountID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var acct model.Account
		if json.Unmarshal(data, &acct) == nil {
			return &acct, nil
		}
	}

	// Cache miss: read from primary.
	acct, err := s.primary.LoadAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, acct)
	return acct, nil
}

func (s *CachedStore) LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	data, err := s.rdb.Get(ctx, ledgerKey(accountID)).Bytes()
	if err == nil {
		var entries []model.LedgerEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss.
	entries, err := s.primary.LedgerEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, ledgerKey(accountID), data, s.ttl)
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	return s.primary.ListAccountIDs(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, acct *model.Account) {
	if data, err := json.Marshal(acct); err == nil {
		s.rdb.Set(ctx, accountKey(acct.ID), data, s.ttl)
	}
}

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
func ledgerKey(id string) string  { return fmt.Sprintf("ledger:%s", id) }

package ledger

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/model"
	"github.com/finbook/accounting-engine/internal/money"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(money.DefaultRules())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRecord_AppendOrder(t *testing.T) {
	l := newLedger(t)

	_, err := l.RecordCreate("acct-1", d("0"), "")
	require.NoError(t, err)
	_, err = l.RecordDeposit("acct-1", "100.00", d("100.00"), "")
	require.NoError(t, err)
	_, err = l.RecordBuy("acct-1", "XYZ", "2", "10.00", d("80.00"), d("2"), "")
	require.NoError(t, err)
	_, err = l.RecordSell("acct-1", "XYZ", "1", "12.00", d("92.00"), d("1"), "")
	require.NoError(t, err)

	entries := l.Entries("acct-1")
	require.Len(t, entries, 4)

	wantTypes := []string{model.EntryCreate, model.EntryDeposit, model.EntryBuy, model.EntrySell}
	for i, e := range entries {
		require.Equal(t, wantTypes[i], e.Type, "entry %d", i)
	}

	for i := 1; i < len(entries); i++ {
		require.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp),
			"timestamps must be non-decreasing")
	}
}

func TestRecordTrade_RequiresPositiveQuantityAndPrice(t *testing.T) {
	l := newLedger(t)

	_, err := l.RecordBuy("a", "XYZ", "0", "10", d("0"), d("0"), "")
	require.ErrorIs(t, err, money.ErrInvalidValue)

	_, err = l.RecordBuy("a", "XYZ", "1", "0", d("0"), d("0"), "")
	require.ErrorIs(t, err, money.ErrInvalidValue)

	_, err = l.RecordSell("a", "  ", "1", "10", d("0"), d("0"), "")
	require.ErrorIs(t, err, money.ErrInvalidValue)

	// Quantity that quantizes to zero at 8 places is rejected too.
	_, err = l.RecordBuy("a", "XYZ", "0.000000001", "10", d("0"), d("0"), "")
	require.ErrorIs(t, err, money.ErrInvalidValue)

	require.Equal(t, 0, l.Len(), "failed records must not append")
}

func TestEntries_ReturnsIsolatedCopy(t *testing.T) {
	l := newLedger(t)
	_, err := l.RecordDeposit("a", "10", d("10"), "")
	require.NoError(t, err)

	got := l.Entries("a")
	require.Len(t, got, 1)

	// Mutating the returned slice or entry must not affect stored state.
	got[0].Amount = d("9999")
	got = append(got, model.LedgerEntry{AccountID: "a", Type: "bogus"})
	_ = got

	again := l.Entries("a")
	require.Len(t, again, 1)
	require.True(t, again[0].Amount.Equal(d("10")), "stored entry was mutated")
}

func TestEntries_UnknownAccountEmpty(t *testing.T) {
	l := newLedger(t)

	got := l.Entries("nobody")
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestRecord_FreeFormTag(t *testing.T) {
	l := newLedger(t)

	e, err := l.Record("a", "adjust", "5.00", d("105.00"), "manual correction")
	require.NoError(t, err)
	require.Equal(t, "adjust", e.Type)
	require.Equal(t, "manual correction", e.Memo)
	require.True(t, e.Amount.Equal(d("5.00")))
}

func TestRecord_ConcurrentAppends(t *testing.T) {
	l := newLedger(t)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := l.RecordDeposit("shared", "1.00", d("0"), ""); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, l.Len())
	require.Len(t, l.Entries("shared"), workers*perWorker)

	all := l.All()
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}
}

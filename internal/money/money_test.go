package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToCash_SupportedTypes(t *testing.T) {
	r := DefaultRules()

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"decimal", decimal.RequireFromString("10.5"), "10.5"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float", 19.99, "19.99"},
		{"string", "3.14159", "3.14"},
		{"padded string", "  100.00 ", "100"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.ToCash(tc.in)
			require.NoError(t, err)
			require.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"got %s, want %s", got, tc.want)
		})
	}
}

func TestToCash_Unparsable(t *testing.T) {
	r := DefaultRules()

	for _, in := range []any{"not-a-number", "", struct{}{}, nil, []byte("1")} {
		_, err := r.ToCash(in)
		require.ErrorIs(t, err, ErrInvalidValue, "input %v", in)
	}
}

func TestToCash_Idempotent(t *testing.T) {
	r := DefaultRules()

	for _, in := range []string{"1.005", "2.675", "-0.125", "99.994", "0.01"} {
		once, err := r.ToCash(decimal.RequireFromString(in))
		require.NoError(t, err)
		twice, err := r.ToCash(once)
		require.NoError(t, err)
		require.True(t, once.Equal(twice), "re-quantizing %s changed %s to %s", in, once, twice)
	}
}

func TestToCash_HalfEvenTies(t *testing.T) {
	r := DefaultRules()

	cases := []struct{ in, want string }{
		{"1.005", "1.00"},
		{"1.015", "1.02"},
		{"2.675", "2.68"},
		{"-1.005", "-1.00"},
	}

	for _, tc := range cases {
		got, err := r.ToCash(decimal.RequireFromString(tc.in))
		require.NoError(t, err)
		require.True(t, got.Equal(decimal.RequireFromString(tc.want)),
			"ToCash(%s) = %s, want %s", tc.in, got, tc.want)
	}
}

func TestToCash_HalfAwayFromZero(t *testing.T) {
	r := Rules{CashPlaces: 2, QtyPlaces: 8, Rounding: RoundHalfAwayFromZero}

	got, err := r.ToCash("1.005")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("1.01")),
		"ToCash(1.005) = %s, want 1.01", got)
}

func TestRequirePositiveCash_RejectsZeroRounding(t *testing.T) {
	r := DefaultRules()

	// 0.004 quantizes to 0.00 at 2 places and must be rejected, not
	// silently accepted.
	_, err := r.RequirePositiveCash(decimal.RequireFromString("0.004"), "amount")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = r.RequirePositiveCash("0", "amount")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = r.RequirePositiveCash("-5", "amount")
	require.ErrorIs(t, err, ErrInvalidValue)

	// 0.005 also ties to even zero at 2 places.
	_, err = r.RequirePositiveCash("0.005", "amount")
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestRequirePositiveCash_Boundary(t *testing.T) {
	r := DefaultRules()

	got, err := r.RequirePositiveCash("0.01", "amount")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("0.01")))
}

func TestRequireNonNegative(t *testing.T) {
	r := DefaultRules()

	got, err := r.RequireNonNegativeCash(0, "amount")
	require.NoError(t, err)
	require.True(t, got.IsZero())

	_, err = r.RequireNonNegativeCash("-0.01", "amount")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = r.RequireNonNegativeQty(-1, "quantity")
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestNormalizeSymbol(t *testing.T) {
	sym, err := NormalizeSymbol("  aapl ", true)
	require.NoError(t, err)
	require.Equal(t, "AAPL", sym)

	sym, err = NormalizeSymbol("Xyz", false)
	require.NoError(t, err)
	require.Equal(t, "Xyz", sym)

	for _, in := range []string{"", "   ", "\t"} {
		_, err := NormalizeSymbol(in, false)
		require.ErrorIs(t, err, ErrInvalidValue)
	}
}

func TestNormalizeSide(t *testing.T) {
	for in, want := range map[string]string{"BUY": "buy", " Sell ": "sell", "buy": "buy"} {
		got, err := NormalizeSide(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	for _, in := range []string{"", "hold", "short"} {
		_, err := NormalizeSide(in)
		require.ErrorIs(t, err, ErrInvalidValue)
	}
}

func TestTotalCash(t *testing.T) {
	r := DefaultRules()

	total, err := r.TotalCash("2", "10.00")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("20.00")))

	// Fractional quantity times price quantized at cash precision.
	total, err = r.TotalCash("1.5", "11")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("16.50")))

	// 0.333333 * 3 = 0.999999 → 1.00 at cash precision.
	total, err = r.TotalCash("0.333333", "3")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("1.00")), "got %s", total)

	_, err = r.TotalCash("x", "3")
	require.True(t, errors.Is(err, ErrInvalidValue))
}

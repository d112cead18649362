package trading_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/finbook/accounting-engine/internal/account"
	"github.com/finbook/accounting-engine/internal/ledger"
	"github.com/finbook/accounting-engine/internal/model"
	"github.com/finbook/accounting-engine/internal/money"
	"github.com/finbook/accounting-engine/internal/pricing"
	"github.com/finbook/accounting-engine/internal/trading"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newEngine(t *testing.T, policy trading.ShortSellingPolicy) (*trading.Engine, *account.Service) {
	t.Helper()
	rules := money.DefaultRules()
	lg := ledger.New(rules)
	accounts := account.NewService(rules, lg)
	return trading.NewEngine(accounts, lg, policy), accounts
}

func TestPlaceOrder_EndToEnd(t *testing.T) {
	eng, accounts := newEngine(t, trading.NoShort())

	if _, err := accounts.Create("alice", 0, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := accounts.Deposit("alice", "100.00", ""); err != nil {
		t.Fatal(err)
	}

	buy, err := eng.PlaceOrder("alice", "buy", "XYZ", 2, "10.00", "")
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if !buy.Total.Equal(d("20.00")) {
		t.Errorf("buy total: got %s", buy.Total)
	}
	if !buy.CashBalanceAfter.Equal(d("80.00")) {
		t.Errorf("balance after buy: got %s", buy.CashBalanceAfter)
	}
	if !buy.PositionAfter.Equal(d("2")) {
		t.Errorf("position after buy: got %s", buy.PositionAfter)
	}

	sell, err := eng.PlaceOrder("alice", "SELL", "XYZ", 1, "12.00", "")
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if sell.Side != model.SideSell {
		t.Errorf("side not normalized: %s", sell.Side)
	}
	if !sell.CashBalanceAfter.Equal(d("92.00")) {
		t.Errorf("balance after sell: got %s", sell.CashBalanceAfter)
	}

	positions, _ := accounts.Positions("alice")
	if !positions["XYZ"].Equal(d("1")) {
		t.Errorf("expected holdings {XYZ: 1}, got %v", positions)
	}

	entries, _ := accounts.Ledger("alice")
	wantTypes := []string{model.EntryCreate, model.EntryDeposit, model.EntryBuy, model.EntrySell}
	if len(entries) != len(wantTypes) {
		t.Fatalf("expected %d ledger entries, got %d", len(wantTypes), len(entries))
	}
	for i, want := range wantTypes {
		if entries[i].Type != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, entries[i].Type)
		}
	}
}

func TestPlaceOrder_ValidationOrder(t *testing.T) {
	eng, accounts := newEngine(t, trading.NoShort())
	if _, err := accounts.Create("alice", "100.00", ""); err != nil {
		t.Fatal(err)
	}

	// Unknown account wins over a bad side.
	_, err := eng.PlaceOrder("nobody", "hold", "XYZ", 1, 1, "")
	if !errors.Is(err, account.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	cases := []struct {
		name     string
		side     string
		symbol   string
		qty, px  any
	}{
		{"bad side", "hold", "XYZ", 1, 1},
		{"empty symbol", "buy", "  ", 1, 1},
		{"zero quantity", "buy", "XYZ", 0, 1},
		{"negative quantity", "buy", "XYZ", -1, 1},
		{"zero price", "buy", "XYZ", 1, 0},
		{"garbage price", "buy", "XYZ", 1, "oops"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.PlaceOrder("alice", tc.side, tc.symbol, tc.qty, tc.px, "")
			if !errors.Is(err, money.ErrInvalidValue) {
				t.Errorf("expected ErrInvalidValue, got %v", err)
			}
		})
	}

	// No mutation happened.
	bal, _ := accounts.Balance("alice")
	if !bal.Equal(d("100.00")) {
		t.Errorf("failed orders mutated balance: %s", bal)
	}
	entries, _ := accounts.Ledger("alice")
	if len(entries) != 1 {
		t.Errorf("failed orders appended ledger entries: %d", len(entries))
	}
}

func TestPlaceOrder_InsufficientCashBoundary(t *testing.T) {
	eng, accounts := newEngine(t, trading.NoShort())
	if _, err := accounts.Create("alice", "100.00", ""); err != nil {
		t.Fatal(err)
	}

	// Total exactly equal to balance succeeds.
	rec, err := eng.PlaceOrder("alice", "buy", "XYZ", 10, "10.00", "")
	if err != nil {
		t.Fatalf("boundary buy failed: %v", err)
	}
	if !rec.CashBalanceAfter.IsZero() {
		t.Errorf("expected zero balance, got %s", rec.CashBalanceAfter)
	}

	// One cent more fails.
	if _, err := accounts.Deposit("alice", "100.00", ""); err != nil {
		t.Fatal(err)
	}
	_, err = eng.PlaceOrder("alice", "buy", "XYZ", 1, "100.01", "")
	if !errors.Is(err, trading.ErrInsufficientCash) {
		t.Errorf("expected ErrInsufficientCash, got %v", err)
	}
}

func TestPlaceOrder_InsufficientHoldingsBoundary(t *testing.T) {
	eng, accounts := newEngine(t, trading.NoShort())
	if _, err := accounts.Create("alice", "100.00", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.PlaceOrder("alice", "buy", "XYZ", 5, "10.00", ""); err != nil {
		t.Fatal(err)
	}

	// Selling more than held fails.
	_, err := eng.PlaceOrder("alice", "sell", "XYZ", "5.00000001", "10.00", "")
	if !errors.Is(err, trading.ErrInsufficientHoldings) {
		t.Errorf("expected ErrInsufficientHoldings, got %v", err)
	}

	// Selling exactly the held quantity succeeds and removes the symbol.
	rec, err := eng.PlaceOrder("alice", "sell", "XYZ", 5, "10.00", "")
	if err != nil {
		t.Fatalf("full close failed: %v", err)
	}
	if !rec.PositionAfter.IsZero() {
		t.Errorf("expected zero position, got %s", rec.PositionAfter)
	}
	positions, _ := accounts.Positions("alice")
	if _, ok := positions["XYZ"]; ok {
		t.Error("closed position must be removed from holdings")
	}
}

func TestPlaceOrder_Conservation(t *testing.T) {
	// Trading is spread-free: cash plus position value at trade prices is
	// conserved across any sequence of successful trades.
	eng, accounts := newEngine(t, trading.NoShort())
	if _, err := accounts.Create("alice", "1000.00", ""); err != nil {
		t.Fatal(err)
	}

	type order struct {
		side, symbol string
		qty, px      string
	}
	orders := []order{
		{"buy", "ABC", "3", "50.00"},
		{"buy", "DEF", "10", "12.25"},
		{"sell", "ABC", "1", "50.00"},
		{"buy", "ABC", "2", "50.00"},
		{"sell", "DEF", "10", "12.25"},
	}

	for _, o := range orders {
		if _, err := eng.PlaceOrder("alice", o.side, o.symbol, o.qty, o.px, ""); err != nil {
			t.Fatalf("%s %s failed: %v", o.side, o.symbol, err)
		}
	}

	// All trades in each symbol executed at a single price, so position
	// value at trade price is qty * that price.
	bal, _ := accounts.Balance("alice")
	positions, _ := accounts.Positions("alice")
	held := positions["ABC"].Mul(d("50.00")).Add(positions["DEF"].Mul(d("12.25")))
	total := bal.Add(held)
	if !total.Equal(d("1000.00")) {
		t.Errorf("conservation violated: cash %s + holdings %s = %s, want 1000.00",
			bal, held, total)
	}
}

func TestPlaceOrder_BoundedShort(t *testing.T) {
	floor := d("-1000.00")
	eng, accounts := newEngine(t, trading.BoundedShort(floor, false))
	if _, err := accounts.Create("alice", 0, ""); err != nil {
		t.Fatal(err)
	}

	// Selling shares not held is allowed under the bounded-short policy.
	rec, err := eng.PlaceOrder("alice", "sell", "XYZ", 5, "100.00", "")
	if err != nil {
		t.Fatalf("short sell failed: %v", err)
	}
	if !rec.PositionAfter.Equal(d("-5")) {
		t.Errorf("expected position -5, got %s", rec.PositionAfter)
	}
	bal, _ := accounts.Balance("alice")
	if !bal.Equal(d("500.00")) {
		t.Errorf("expected 500.00 proceeds, got %s", bal)
	}

	// Position value is now -500. Selling 5 more would land exactly on the
	// floor; the exclusive policy rejects that.
	_, err = eng.PlaceOrder("alice", "sell", "XYZ", 5, "100.00", "")
	if !errors.Is(err, trading.ErrShortFloorBreached) {
		t.Errorf("expected ErrShortFloorBreached at floor, got %v", err)
	}

	// Negative short positions stay in the holdings map.
	positions, _ := accounts.Positions("alice")
	if !positions["XYZ"].Equal(d("-5")) {
		t.Errorf("expected holdings {XYZ: -5}, got %v", positions)
	}
}

func TestPlaceOrder_BoundedShortInclusiveFloor(t *testing.T) {
	floor := d("-1000.00")
	eng, accounts := newEngine(t, trading.BoundedShort(floor, true))
	if _, err := accounts.Create("alice", 0, ""); err != nil {
		t.Fatal(err)
	}

	// Landing exactly on the floor is permitted when inclusive.
	rec, err := eng.PlaceOrder("alice", "sell", "XYZ", 10, "100.00", "")
	if err != nil {
		t.Fatalf("sell to floor failed: %v", err)
	}
	if !rec.PositionAfter.Equal(d("-10")) {
		t.Errorf("expected position -10, got %s", rec.PositionAfter)
	}

	// Going past it is not.
	_, err = eng.PlaceOrder("alice", "sell", "XYZ", "0.01", "100.00", "")
	if !errors.Is(err, trading.ErrShortFloorBreached) {
		t.Errorf("expected ErrShortFloorBreached past floor, got %v", err)
	}
}

func TestTrades_PerAccountLog(t *testing.T) {
	eng, accounts := newEngine(t, trading.NoShort())
	if _, err := accounts.Create("alice", "100.00", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := accounts.Create("bob", "100.00", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.PlaceOrder("alice", "buy", "XYZ", 1, "10.00", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.PlaceOrder("bob", "buy", "XYZ", 2, "10.00", ""); err != nil {
		t.Fatal(err)
	}

	trades, err := eng.Trades("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Memo != "first" {
		t.Errorf("memo not carried: %q", trades[0].Memo)
	}

	if len(eng.AllTrades()) != 2 {
		t.Errorf("expected 2 global trades")
	}

	if _, err := eng.Trades("nobody"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestValuation(t *testing.T) {
	eng, accounts := newEngine(t, trading.NoShort())
	if _, err := accounts.Create("alice", "1000.00", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.PlaceOrder("alice", "buy", "AAPL", 2, "190.00", ""); err != nil {
		t.Fatal(err)
	}

	src := pricing.NewStaticSource()
	val, err := eng.Valuation(context.Background(), "alice", src)
	if err != nil {
		t.Fatalf("valuation failed: %v", err)
	}
	if !val.CashBalance.Equal(d("620.00")) {
		t.Errorf("cash: got %s", val.CashBalance)
	}
	if !val.MarketValue.Equal(d("380.00")) {
		t.Errorf("market value: got %s", val.MarketValue)
	}
	if !val.TotalValue.Equal(d("1000.00")) {
		t.Errorf("total value: got %s", val.TotalValue)
	}
	if !val.NetContributions.Equal(d("1000.00")) {
		t.Errorf("net contributions: got %s", val.NetContributions)
	}
	// Every trade executed at the valuation price, so nothing was gained.
	if !val.ProfitAndLoss.IsZero() {
		t.Errorf("expected zero P&L, got %s", val.ProfitAndLoss)
	}

	// Unknown symbol propagates the collaborator's error.
	if _, err := eng.PlaceOrder("alice", "buy", "ZZZZ", 1, "1.00", ""); err != nil {
		t.Fatal(err)
	}
	_, err = eng.Valuation(context.Background(), "alice", src)
	if !errors.Is(err, pricing.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}

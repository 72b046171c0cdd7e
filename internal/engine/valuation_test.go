package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundbuilder/types"

	"github.com/shopspring/decimal"
)

// seedPreviousPeriod sets up a one-position account valued at previous:
// unit price 2, alice holding 150 units and bob 50.
func seedPreviousPeriod(store *fakeStore, previous time.Time) {
	store.putRecord(previous, types.Position{
		Name:         "Acme",
		Quantity:     decimal.NewFromInt(100),
		AveragePrice: decimal.NewFromInt(5),
		TotalCost:    decimal.NewFromInt(500),
		SharePrice:   decimal.NewFromInt(5),
	})
	store.putCapital(previous, "alice", decimal.NewFromInt(150))
	store.putCapital(previous, "bob", decimal.NewFromInt(50))
	store.unitHistory = append(store.unitHistory, unitPoint{date: previous, price: decimal.NewFromInt(2)})
}

func TestBuildAssetReport(t *testing.T) {
	previous := time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)
	date := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)

	store := newFakeStore(testAccount())
	seedPreviousPeriod(store, previous)

	// March ledger: alice subscribes 100, 60 spent on stock, 40 left in
	// the bank. Receipts and payments tie at 100.
	store.addCash(date, types.TxSubscription, "alice", decimal.NewFromInt(100))
	store.addCash(date, types.TxPurchase, "Acme", decimal.NewFromInt(60))
	store.addCash(date, types.TxBalanceInHandCF, types.TxBalanceInHandCF, decimal.NewFromInt(40))

	eng, sink := newTestEngine(store, map[string]decimal.Decimal{"Acme": decimal.NewFromInt(5)})

	report, err := eng.BuildAssetReport(adminToken(), date, true, nil, nil, context.Background())
	if err != nil {
		t.Fatalf("BuildAssetReport: %v", err)
	}

	if !report.BankBalance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("bank balance = %s, want 40", report.BankBalance)
	}
	// 100 shares at 5, plus cash.
	if !report.TotalAssetValue.Equal(decimal.NewFromInt(500)) {
		t.Errorf("total asset value = %s, want 500", report.TotalAssetValue)
	}
	if !report.NetAssets.Equal(decimal.NewFromInt(540)) {
		t.Errorf("net assets = %s, want 540", report.NetAssets)
	}

	// Alice's 100 subscription buys 50 units at the previous price of 2:
	// 150+50 for alice plus bob's 50.
	if !report.IssuedUnits.Equal(decimal.NewFromInt(250)) {
		t.Errorf("issued units = %s, want 250", report.IssuedUnits)
	}
	wantUnit := decimal.NewFromFloat(2.16)
	if !report.UnitPrice.Equal(wantUnit) {
		t.Errorf("unit price = %s, want %s", report.UnitPrice, wantUnit)
	}

	// NAV identity: unit price times issued units returns net assets.
	if !report.UnitPrice.Mul(report.IssuedUnits).Equal(report.NetAssets) {
		t.Errorf("unit price * issued units = %s, want %s",
			report.UnitPrice.Mul(report.IssuedUnits), report.NetAssets)
	}

	// No December price last year: year-to-date measures against 1.0.
	if !report.YearToDatePerformance.Equal(decimal.NewFromInt(116)) {
		t.Errorf("ytd = %s, want 116", report.YearToDatePerformance)
	}

	// The new unit price is persisted and the report written out.
	saved, _ := store.UnitPrice(adminToken(), date, context.Background())
	if !saved.Equal(wantUnit) {
		t.Errorf("saved unit price = %s, want %s", saved, wantUnit)
	}
	if len(sink.reports) != 1 {
		t.Fatalf("reports written = %d, want 1", len(sink.reports))
	}

	// Member capital is conserved: the sum of holdings equals the issue.
	capital, _ := store.MemberCapital(adminToken(), date, context.Background())
	total := decimal.Zero
	for _, units := range capital {
		total = total.Add(units)
	}
	if !total.Equal(report.IssuedUnits) {
		t.Errorf("member units sum = %s, want %s", total, report.IssuedUnits)
	}
}

func TestBuildAssetReportNewAccountUnitPriceIsOne(t *testing.T) {
	date := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)

	store := newFakeStore(testAccount())
	store.addCash(date, types.TxSubscription, "alice", decimal.NewFromInt(100))
	store.addCash(date, types.TxSubscription, "bob", decimal.NewFromInt(100))
	store.addCash(date, types.TxPurchase, "Acme", decimal.NewFromInt(150))
	store.addCash(date, types.TxBalanceInHandCF, types.TxBalanceInHandCF, decimal.NewFromInt(50))

	eng, _ := newTestEngine(store, nil)

	report, err := eng.BuildAssetReport(adminToken(), date, true, nil, nil, context.Background())
	if err != nil {
		t.Fatalf("BuildAssetReport: %v", err)
	}

	// A brand-new account issues units equal to net assets, so the first
	// unit price is exactly 1.
	if !report.NetAssets.Equal(decimal.NewFromInt(50)) {
		t.Errorf("net assets = %s, want 50", report.NetAssets)
	}
	if !report.IssuedUnits.Equal(decimal.NewFromInt(50)) {
		t.Errorf("issued units = %s, want 50", report.IssuedUnits)
	}
	if !report.UnitPrice.Equal(decimal.NewFromInt(1)) {
		t.Errorf("unit price = %s, want 1", report.UnitPrice)
	}

	// The issue splits evenly across the members.
	capital, _ := store.MemberCapital(adminToken(), date, context.Background())
	if !capital["alice"].Equal(decimal.NewFromInt(25)) || !capital["bob"].Equal(decimal.NewFromInt(25)) {
		t.Errorf("member capital = %v, want 25 each", capital)
	}
}

func TestBuildAssetReportOncePerDay(t *testing.T) {
	previous := time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)
	date := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)

	store := newFakeStore(testAccount())
	seedPreviousPeriod(store, previous)
	store.addCash(date, types.TxSubscription, "alice", decimal.NewFromInt(100))
	store.addCash(date, types.TxPurchase, "Acme", decimal.NewFromInt(60))
	store.addCash(date, types.TxBalanceInHandCF, types.TxBalanceInHandCF, decimal.NewFromInt(40))

	eng, sink := newTestEngine(store, map[string]decimal.Decimal{"Acme": decimal.NewFromInt(5)})

	first, err := eng.BuildAssetReport(adminToken(), date, true, nil, nil, context.Background())
	if err != nil {
		t.Fatalf("first build: %v", err)
	}

	// A second update on the same day downgrades to a snapshot: nothing
	// new is written and the figures repeat.
	second, err := eng.BuildAssetReport(adminToken(), date, true, nil, nil, context.Background())
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !second.UnitPrice.Equal(first.UnitPrice) {
		t.Errorf("second unit price = %s, want %s", second.UnitPrice, first.UnitPrice)
	}
	if !second.IssuedUnits.Equal(first.IssuedUnits) {
		t.Errorf("second issued units = %s, want %s", second.IssuedUnits, first.IssuedUnits)
	}
	if len(sink.reports) != 1 {
		t.Errorf("reports written = %d, want 1 (second run must not persist)", len(sink.reports))
	}
}

func TestBuildAssetReportGates(t *testing.T) {
	previous := time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)
	date := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("unauthorized", func(t *testing.T) {
		store := newFakeStore(testAccount())
		eng, _ := newTestEngine(store, nil)
		token := &types.UserToken{User: "mallory", Account: types.AccountID{ID: 1}, Level: types.AuthNone}
		_, err := eng.BuildAssetReport(token, date, false, nil, nil, context.Background())
		if !errors.Is(err, types.ErrNotAuthorized) {
			t.Errorf("error = %v, want ErrNotAuthorized", err)
		}
	})

	t.Run("read token cannot run an update build", func(t *testing.T) {
		store := newFakeStore(testAccount())
		seedPreviousPeriod(store, previous)
		store.addCash(date, types.TxSubscription, "alice", decimal.NewFromInt(100))
		store.addCash(date, types.TxPurchase, "Acme", decimal.NewFromInt(60))
		store.addCash(date, types.TxBalanceInHandCF, types.TxBalanceInHandCF, decimal.NewFromInt(40))
		eng, sink := newTestEngine(store, map[string]decimal.Decimal{"Acme": decimal.NewFromInt(5)})
		token := &types.UserToken{User: "carol", Account: types.AccountID{Name: "TestClub", ID: 1}, Level: types.AuthRead}
		_, err := eng.BuildAssetReport(token, date, true, nil, nil, context.Background())
		if !errors.Is(err, types.ErrNotAuthorized) {
			t.Errorf("error = %v, want ErrNotAuthorized", err)
		}
		if saved, _ := store.UnitPrice(adminToken(), date, context.Background()); !saved.IsZero() {
			t.Errorf("unit price %s persisted by a read-level token", saved)
		}
		if len(sink.reports) != 0 {
			t.Errorf("reports written = %d, want 0", len(sink.reports))
		}
	})

	t.Run("unbalanced cash account", func(t *testing.T) {
		store := newFakeStore(testAccount())
		seedPreviousPeriod(store, previous)
		store.addCash(date, types.TxSubscription, "alice", decimal.NewFromInt(100))
		eng, _ := newTestEngine(store, nil)
		_, err := eng.BuildAssetReport(adminToken(), date, true, nil, nil, context.Background())
		if !errors.Is(err, ErrCashAccountInvalid) {
			t.Errorf("error = %v, want ErrCashAccountInvalid", err)
		}
	})

	t.Run("excessive price move aborts the build", func(t *testing.T) {
		store := newFakeStore(testAccount())
		seedPreviousPeriod(store, previous)
		eng, _ := newTestEngine(store, map[string]decimal.Decimal{"Acme": decimal.NewFromInt(50)})
		report, err := eng.BuildAssetReport(adminToken(), date, true, nil, nil, context.Background())
		if !errors.Is(err, ErrExcessivePriceMove) {
			t.Errorf("error = %v, want ErrExcessivePriceMove", err)
		}
		if report != nil {
			t.Error("report returned despite rejected price")
		}
	})

	t.Run("record date not later", func(t *testing.T) {
		store := newFakeStore(testAccount())
		seedPreviousPeriod(store, previous)
		// Positions already recorded beyond the requested build date.
		later := date.AddDate(0, 1, 0)
		store.putRecord(later, types.Position{Name: "Acme", Quantity: decimal.NewFromInt(1)})
		eng, _ := newTestEngine(store, nil)
		_, err := eng.BuildAssetReport(adminToken(), date, true, nil, nil, context.Background())
		if !errors.Is(err, ErrRecordDateNotLater) {
			t.Errorf("error = %v, want ErrRecordDateNotLater", err)
		}
	})
}

func TestYearToDateUsesLastDecemberPrice(t *testing.T) {
	december := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	date := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)

	store := newFakeStore(testAccount())
	store.unitHistory = append(store.unitHistory, unitPoint{date: december, price: decimal.NewFromInt(2)})
	eng, _ := newTestEngine(store, nil)

	ytd, err := eng.yearToDate(adminToken(), date, decimal.NewFromFloat(2.5), context.Background())
	if err != nil {
		t.Fatalf("yearToDate: %v", err)
	}
	// (2.5 - 2) / 2 * 100
	if !ytd.Equal(decimal.NewFromInt(25)) {
		t.Errorf("ytd = %s, want 25", ytd)
	}
}

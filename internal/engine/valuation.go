package engine

import (
	"context"
	"fundbuilder/types"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BuildAssetReport runs one full valuation for the account on the token:
// validate the cash ledger, roll and price the positions, compute NAV and
// unit price, allocate member capital, and settle pending redemptions.
//
// When update is false the build is a read-only snapshot and persists
// nothing. An account must not be rebuilt more than once per calendar
// day; a second update request on the same day is silently downgraded to
// a snapshot, since transactions for the current day would otherwise be
// double-counted into dividends and allocated units.
//
// Validation failures return a nil report with a sentinel error; no
// state has been mutated for the failing step.
func (e *Engine) BuildAssetReport(token *types.UserToken, valuationDate time.Time, update bool, manualPrices types.ManualPrices, progress *Progress, ctx context.Context) (*types.AssetReport, error) {
	required := types.AuthRead
	if update {
		required = types.AuthUpdate
	}
	if err := token.Authorize(required); err != nil {
		return nil, err
	}

	latest, err := e.capital.LatestValuationDate(token, ctx)
	if err != nil {
		return nil, err
	}
	if update && latest != nil && !dateOnly(valuationDate).After(dateOnly(*latest)) {
		log.Printf("cannot build account %s more than once a day. returning previous report", token.Account)
		update = false
	}

	ok, err := e.ValidateCashAccount(token, valuationDate, ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCashAccountInvalid
	}

	account, err := e.capital.Account(token, ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNoAccount
	}

	previous, err := e.capital.PreviousValuationDate(token, valuationDate, ctx)
	if err != nil {
		return nil, err
	}

	// A rerun of the current period must reverse any settled redemption
	// first, or the bank balance (and so the unit price) comes out wrong.
	if update && previous != nil {
		if err := e.rollbackRedemptions(token, valuationDate, *previous, ctx); err != nil {
			return nil, err
		}
	}

	cashData, err := e.cash.CashBalance(token, valuationDate, ctx)
	if err != nil {
		return nil, err
	}

	tradeDate := valuationDate
	recordDate, err := e.positions.LatestRecordDate(token, ctx)
	if err != nil {
		return nil, err
	}
	if update {
		if recordDate != nil && !valuationDate.After(*recordDate) {
			log.Printf("record date %s must be later than the previous record valuation date %s", valuationDate, *recordDate)
			return nil, ErrRecordDateNotLater
		}
		// Trades are submitted separately via UpdateTrades; the build
		// itself rolls the book forward with an empty batch.
		if err := e.UpdatePositions(token, account, &types.TradeBatch{}, cashData, valuationDate, manualPrices, previous, progress, ctx); err != nil {
			return nil, err
		}
	} else if recordDate != nil {
		tradeDate = *recordDate
	}

	progress.Initialise("building asset report", 2)

	records, err := e.InvestmentRecords(token, account, tradeDate, previous, nil, false, ctx)
	if err != nil {
		return nil, err
	}
	progress.Increment()

	report, err := e.buildReport(token, valuationDate, previous, account, records, cashData.BankBalance, update, ctx)
	if err != nil {
		return nil, err
	}
	progress.Increment()

	if previous != nil {
		report, err = e.processRedemptions(token, report, account, *previous, update, ctx)
		if err != nil {
			return nil, err
		}
	}

	if update && e.reports != nil {
		if err := e.reports.WriteAssetReport(report); err != nil {
			log.Printf("writing asset report failed: %v", err)
		}
	}
	return report, nil
}

// buildReport aggregates the position rows and the bank balance into the
// asset report, allocating member capital and persisting the unit price
// when update is set.
func (e *Engine) buildReport(token *types.UserToken, valuationDate time.Time, previous *time.Time, account *types.Account, records []types.Position, bankBalance decimal.Decimal, update bool, ctx context.Context) (*types.AssetReport, error) {
	report := &types.AssetReport{
		AccountName:       account.ID,
		ReportingCurrency: account.ReportingCurrency,
		ValuationDate:     dateOnly(valuationDate),
		Assets:            records,
		BankBalance:       bankBalance,
	}

	for _, pos := range records {
		report.TotalAssetValue = report.TotalAssetValue.Add(pos.NetSellingValue)
		report.MonthlyPnL = report.MonthlyPnL.Add(pos.MonthChange)
	}
	report.TotalAssets = report.BankBalance.Add(report.TotalAssetValue)
	report.TotalLiabilities = decimal.Zero // reserved, nothing records liabilities yet
	report.NetAssets = report.TotalAssets.Sub(report.TotalLiabilities)

	var err error
	if update {
		report.IssuedUnits, err = e.allocateCapital(token, previous, valuationDate, report.NetAssets, ctx)
	} else {
		report.IssuedUnits, err = e.capital.IssuedUnits(token, valuationDate, ctx)
	}
	if err != nil {
		return nil, err
	}

	if report.IssuedUnits.IsPositive() {
		report.UnitPrice = report.NetAssets.Div(report.IssuedUnits)
	} else {
		report.UnitPrice = decimal.NewFromInt(1)
	}

	if update {
		if err := e.capital.SaveUnitPrice(token, valuationDate, report.UnitPrice, ctx); err != nil {
			return nil, err
		}
	}

	report.YearToDatePerformance, err = e.yearToDate(token, valuationDate, report.UnitPrice, ctx)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// allocateCapital updates every member's unit balance for the new period
// and returns the total issued units.
//
// With a prior valuation, each member's subscription for the period buys
// units at the previous unit price. With none (a brand-new account) the
// issued units are set equal to net assets, split evenly across the
// members, which forces the first unit price to exactly 1.
func (e *Engine) allocateCapital(token *types.UserToken, previous *time.Time, valuationDate time.Time, netAssets decimal.Decimal, ctx context.Context) (decimal.Decimal, error) {
	if previous == nil {
		log.Printf("new account %s. setting issued units equal to net assets", token.Account)
		members, err := e.capital.Members(token, time.Now(), ctx)
		if err != nil {
			return decimal.Zero, err
		}
		if len(members) == 0 {
			return decimal.Zero, nil
		}
		each := netAssets.Div(decimal.NewFromInt(int64(len(members))))
		for _, member := range members {
			if err := e.capital.SetMemberCapital(token, valuationDate, member, each, ctx); err != nil {
				return decimal.Zero, err
			}
		}
		return netAssets, nil
	}

	previousUnitPrice, err := e.capital.UnitPrice(token, *previous, ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if previousUnitPrice.IsZero() {
		previousUnitPrice = decimal.NewFromInt(1)
	}

	capital, err := e.capital.MemberCapital(token, *previous, ctx)
	if err != nil {
		return decimal.Zero, err
	}

	members := make([]string, 0, len(capital))
	for member := range capital {
		members = append(members, member)
	}
	sort.Strings(members)

	total := decimal.Zero
	for _, member := range members {
		subscription, err := e.capital.MemberSubscription(token, valuationDate, member, ctx)
		if err != nil {
			return decimal.Zero, err
		}
		units := capital[member].Add(subscription.Div(previousUnitPrice))
		total = total.Add(units)
		if err := e.capital.SetMemberCapital(token, valuationDate, member, units, ctx); err != nil {
			return decimal.Zero, err
		}
	}
	return total, nil
}

// yearToDate compares the unit price against the one recorded for
// December of the previous year, falling back to 1.0 for young accounts.
func (e *Engine) yearToDate(token *types.UserToken, valuationDate time.Time, unitPrice decimal.Decimal, ctx context.Context) (decimal.Decimal, error) {
	from := time.Date(valuationDate.Year()-1, time.December, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(valuationDate.Year()-1, time.December, 31, 0, 0, 0, 0, time.UTC)
	prices, err := e.capital.UnitPriceRange(token, from, to, ctx)
	if err != nil {
		return decimal.Zero, err
	}
	startOfYear := decimal.NewFromInt(1)
	if len(prices) > 0 {
		startOfYear = prices[len(prices)-1]
	}
	return unitPrice.Sub(startOfYear).Div(startOfYear).Mul(decimal.NewFromInt(100)), nil
}

// ParametersForTransactionType returns the valid values of a cash
// transaction's parameter field: dividend receipts name an active
// instrument, subscriptions name an account member. The dispatch is a
// fixed table of typed accessors.
func (e *Engine) ParametersForTransactionType(token *types.UserToken, date time.Time, transactionType string, ctx context.Context) ([]string, error) {
	fn, ok := transactionParameters[transactionType]
	if !ok {
		return nil, nil
	}
	return fn(e, token, date, ctx)
}

var transactionParameters = map[string]func(e *Engine, token *types.UserToken, date time.Time, ctx context.Context) ([]string, error){
	types.TxDividend: func(e *Engine, token *types.UserToken, date time.Time, ctx context.Context) ([]string, error) {
		positions, err := e.positions.ActivePositions(token, date, ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(positions))
		for _, pos := range positions {
			names = append(names, pos.Name)
		}
		return names, nil
	},
	types.TxSubscription: func(e *Engine, token *types.UserToken, date time.Time, ctx context.Context) ([]string, error) {
		return e.capital.Members(token, date, ctx)
	},
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

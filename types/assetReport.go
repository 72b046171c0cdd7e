package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetReport is the full valuation of an account on one date: every
// position, the cash balance, the derived NAV and unit price, and the
// redemptions applied during the run.
type AssetReport struct {
	AccountName       AccountID
	ReportingCurrency string
	ValuationDate     time.Time
	Assets            []Position

	TotalAssetValue  decimal.Decimal
	BankBalance      decimal.Decimal
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	NetAssets        decimal.Decimal
	IssuedUnits      decimal.Decimal
	UnitPrice        decimal.Decimal
	MonthlyPnL       decimal.Decimal

	// YearToDatePerformance compares the unit price against the last
	// unit price of the previous year, as a percentage.
	YearToDatePerformance decimal.Decimal

	Redemptions []Redemption
}

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentInfo holds the market-data coordinates of one instrument.
// ScalingFactor is applied to quoted prices (e.g. pence to pounds).
type InstrumentInfo struct {
	Symbol        string
	Exchange      string
	Currency      string
	ScalingFactor decimal.Decimal
}

// Position is the valuation row for one instrument on one valuation date.
// A quantity of zero marks the position inactive.
type Position struct {
	Name             string
	ValuationDate    time.Time
	LastBought       time.Time
	Quantity         decimal.Decimal
	AveragePrice     decimal.Decimal
	TotalCost        decimal.Decimal
	SharePrice       decimal.Decimal
	NetSellingValue  decimal.Decimal
	MonthChange      decimal.Decimal
	MonthChangeRatio decimal.Decimal
	Dividend         decimal.Decimal
	ProfitLoss       decimal.Decimal
	TotalReturn      decimal.Decimal

	// ManualPrice is set when the share price was entered by hand rather
	// than resolved from market data.
	ManualPrice string
}

// ManualPrices maps an instrument name to a price override. An override
// always wins over market data and is assumed to be quoted in the
// account's reporting currency.
type ManualPrices map[string]decimal.Decimal

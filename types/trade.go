package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeType string

const (
	TradeBuy    TradeType = "BUY"
	TradeSell   TradeType = "SELL"
	TradeModify TradeType = "MODIFY"
)

// Trade is a single buy/sell/quantity-change line for one instrument.
type Trade struct {
	Name            string
	TransactionDate time.Time
	Symbol          string
	Exchange        string
	Currency        string
	Quantity        decimal.Decimal
	TotalCost       decimal.Decimal
	ScalingFactor   decimal.Decimal
}

// TradeBatch groups the trade lines submitted for one valuation period.
type TradeBatch struct {
	Buys    []Trade
	Sells   []Trade
	Changed []Trade
}

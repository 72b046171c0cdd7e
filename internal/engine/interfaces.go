package engine

import (
	"context"
	"fundbuilder/types"
	"time"

	"github.com/shopspring/decimal"
)

// The engine owns no persistence of its own; every read and write goes
// through one of these ports. All state behind them is partitioned by
// the account carried on the token.

type positionStore interface {
	// ActivePositions returns the active valuation rows as of date.
	ActivePositions(token *types.UserToken, date time.Time, ctx context.Context) ([]types.Position, error)
	// PositionRecords returns every valuation row recorded for date.
	PositionRecords(token *types.UserToken, date time.Time, ctx context.Context) ([]types.Position, error)
	InstrumentInfo(name string, ctx context.Context) (*types.InstrumentInfo, error)

	LatestRecordDate(token *types.UserToken, ctx context.Context) (*time.Time, error)
	PreviousRecordDate(token *types.UserToken, date time.Time, ctx context.Context) (*time.Time, error)
	IsRecordDate(token *types.UserToken, date time.Time, ctx context.Context) (bool, error)

	RollPosition(token *types.UserToken, name string, date, previous time.Time, ctx context.Context) error
	SellShares(token *types.UserToken, name string, quantity decimal.Decimal, date time.Time, ctx context.Context) error
	SetQuantity(token *types.UserToken, name string, date time.Time, quantity decimal.Decimal, ctx context.Context) error
	AddShares(token *types.UserToken, name string, quantity decimal.Decimal, date time.Time, totalCost decimal.Decimal, ctx context.Context) error
	SetDividend(token *types.UserToken, name string, date time.Time, dividend decimal.Decimal, ctx context.Context) error
	SetClosingPrice(token *types.UserToken, name string, date time.Time, price decimal.Decimal, ctx context.Context) error
	CreatePosition(token *types.UserToken, trade types.Trade, date time.Time, closing decimal.Decimal, ctx context.Context) error
	DeactivatePosition(token *types.UserToken, name string, ctx context.Context) error

	AddTradeHistory(token *types.UserToken, trades []types.Trade, tradeType types.TradeType, date time.Time, ctx context.Context) error
	TradesBetween(token *types.UserToken, from, to time.Time, ctx context.Context) (*types.TradeBatch, error)
}

type cashStore interface {
	CashBalance(token *types.UserToken, date time.Time, ctx context.Context) (*types.CashBalance, error)
	BalanceInHand(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error)
	Transactions(token *types.UserToken, side types.CashSide, date time.Time, ctx context.Context) ([]types.CashTransaction, error)
	AddTransaction(token *types.UserToken, tx types.CashTransaction, ctx context.Context) (string, error)
	RemoveTransaction(token *types.UserToken, id string, ctx context.Context) error
}

type capitalStore interface {
	Account(token *types.UserToken, ctx context.Context) (*types.Account, error)
	Members(token *types.UserToken, date time.Time, ctx context.Context) ([]string, error)
	MemberCapital(token *types.UserToken, date time.Time, ctx context.Context) (map[string]decimal.Decimal, error)
	SetMemberCapital(token *types.UserToken, date time.Time, member string, units decimal.Decimal, ctx context.Context) error
	MemberSubscription(token *types.UserToken, date time.Time, member string, ctx context.Context) (decimal.Decimal, error)

	UnitPrice(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error)
	SaveUnitPrice(token *types.UserToken, date time.Time, price decimal.Decimal, ctx context.Context) error
	UnitPriceRange(token *types.UserToken, from, to time.Time, ctx context.Context) ([]decimal.Decimal, error)
	IssuedUnits(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error)

	LatestValuationDate(token *types.UserToken, ctx context.Context) (*time.Time, error)
	PreviousValuationDate(token *types.UserToken, date time.Time, ctx context.Context) (*time.Time, error)
}

type redemptionStore interface {
	// Redemptions returns every request recorded on or after since.
	Redemptions(token *types.UserToken, since time.Time, ctx context.Context) ([]types.Redemption, error)
	AddRedemption(token *types.UserToken, member string, transactionDate time.Time, amount decimal.Decimal, ctx context.Context) error
	UpdateRedemption(token *types.UserToken, member string, transactionDate time.Time, amount, units decimal.Decimal, ctx context.Context) (types.RedemptionStatus, error)
}

// priceSource resolves a closing price in the account's reporting
// currency. A non-nil override always wins over market data. The bool
// result is false when no price could be resolved.
type priceSource interface {
	ClosingPrice(info types.InstrumentInfo, name, reportingCurrency string, override *decimal.Decimal) (decimal.Decimal, bool)
}

// feeModel converts a gross position value into a net selling value by
// applying the account broker's fee schedule.
type feeModel interface {
	NetSellingValue(broker string, quantity, price decimal.Decimal) decimal.Decimal
}

// reportSink receives the finished asset report when a build persists.
type reportSink interface {
	WriteAssetReport(report *types.AssetReport) error
}

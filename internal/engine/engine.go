package engine

import "errors"

// Validation failures. Each is returned with a nil report and before any
// mutation has been made for the failing step.
var (
	ErrCashAccountInvalid = errors.New("cash account receipts and payments do not balance")
	ErrExcessivePriceMove = errors.New("closing price moved more than 90% from previous price")
	ErrRecordDateNotLater = errors.New("record date must be later than the latest existing record date")
	ErrNoPreviousRecord   = errors.New("no previous record date for account")
)

// Precondition failures for individual operations.
var (
	ErrNoAccount           = errors.New("no account for user")
	ErrNoPreviousValuation = errors.New("account has not yet been valued")
	ErrNotAMember          = errors.New("user is not a member of the account")
	ErrInsufficientFunds   = errors.New("requested amount exceeds available funds")
	ErrExceedsHolding      = errors.New("requested amount exceeds the member's unit holding")
)

// Engine turns a month's trades, dividends and cash movements into a new
// account valuation: NAV, unit price, member capital balances and settled
// redemptions. One Build call is a single synchronous unit of work; the
// host must serialize builds per account.
type Engine struct {
	positions   positionStore
	cash        cashStore
	capital     capitalStore
	redemptions redemptionStore
	prices      priceSource
	fees        feeModel
	reports     reportSink
}

func New(positions positionStore, cash cashStore, capital capitalStore, redemptions redemptionStore, prices priceSource, fees feeModel, reports reportSink) *Engine {
	return &Engine{
		positions:   positions,
		cash:        cash,
		capital:     capital,
		redemptions: redemptions,
		prices:      prices,
		fees:        fees,
		reports:     reports,
	}
}

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "Pending"
	RedemptionComplete RedemptionStatus = "Complete"
	RedemptionFailed   RedemptionStatus = "Failed"
)

// Redemption is a member's request to withdraw cash by surrendering
// units. It is recorded when requested and settled at the next valuation
// run, once a unit price exists for the period. An Amount of zero is the
// reserved sentinel for "redeem the member's entire holding".
type Redemption struct {
	ID              string
	Member          string
	Amount          decimal.Decimal
	TransactionDate time.Time
	RedeemedUnits   decimal.Decimal
	Status          RedemptionStatus
}

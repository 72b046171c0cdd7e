package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashSide selects one side of the cash ledger.
type CashSide string

const (
	SideReceipt CashSide = "R"
	SidePayment CashSide = "P"
)

// Cash transaction type vocabulary. Receipts and payments each have their
// own fixed set; BalanceInHand and BalanceInHandCF are synthesized by the
// engine rather than entered by users.
const (
	TxSubscription    = "Subscription"
	TxBalanceInHand   = "BalanceInHand"
	TxSale            = "Sale"
	TxDividend        = "Dividend"
	TxInterest        = "Interest"
	TxAdminFee        = "Admin Fee"
	TxPurchase        = "Purchase"
	TxRedemption      = "Redemption"
	TxBalanceInHandCF = "BalanceInHandCF"
	TxTotal           = "TOTAL"
)

// CashTransaction is one recorded cash movement for an account.
type CashTransaction struct {
	ID              string
	ValuationDate   time.Time
	TransactionDate time.Time
	Type            string
	Parameter       string
	Amount          decimal.Decimal

	// Added marks rows the engine synthesized (balance in hand carry).
	Added bool
	// IsTotal marks the aggregate display row appended to a listing.
	IsTotal bool
}

// ReceiptRow is a receipt-side transaction spread over display columns.
type ReceiptRow struct {
	CashTransaction
	Subscription decimal.Decimal
	Sale         decimal.Decimal
	Dividend     decimal.Decimal
	Other        decimal.Decimal
}

// PaymentRow is a payment-side transaction spread over display columns.
type PaymentRow struct {
	CashTransaction
	Withdrawals decimal.Decimal
	Purchases   decimal.Decimal
	Other       decimal.Decimal
}

// CashBalance is the derived cash state of an account at a valuation
// date: the bank balance plus the dividends received per instrument.
type CashBalance struct {
	BankBalance decimal.Decimal
	Dividends   map[string]decimal.Decimal
}

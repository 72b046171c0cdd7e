package engine

import (
	"context"
	"fundbuilder/types"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Each transaction type maps onto one display column on its side of the
// ledger. The mapping is a fixed table; a type missing from it is not a
// ledger transaction and is skipped.

type receiptColumn int

const (
	colSubscription receiptColumn = iota
	colSale
	colReceiptDividend
	colReceiptOther
)

var receiptColumns = map[string]receiptColumn{
	types.TxSubscription:  colSubscription,
	types.TxBalanceInHand: colSubscription,
	types.TxSale:          colSale,
	types.TxDividend:      colReceiptDividend,
	types.TxInterest:      colReceiptOther,
}

type paymentColumn int

const (
	colWithdrawals paymentColumn = iota
	colPurchases
	colPaymentOther
)

var paymentColumns = map[string]paymentColumn{
	types.TxRedemption:      colWithdrawals,
	types.TxPurchase:        colPurchases,
	types.TxAdminFee:        colPaymentOther,
	types.TxBalanceInHandCF: colPaymentOther,
}

// TransactionTypes returns the valid transaction types for one side of
// the cash ledger.
func (e *Engine) TransactionTypes(side types.CashSide) []string {
	var out []string
	switch side {
	case types.SideReceipt:
		for t := range receiptColumns {
			out = append(out, t)
		}
	case types.SidePayment:
		for t := range paymentColumns {
			out = append(out, t)
		}
	}
	return out
}

// ValidateCashAccount checks that recorded receipts equal recorded
// payments for the period ending at date, both rounded to two decimal
// places. It is the gating precondition for a valuation build.
func (e *Engine) ValidateCashAccount(token *types.UserToken, date time.Time, ctx context.Context) (bool, error) {
	receipts, err := e.receiptRows(token, date, ctx)
	if err != nil {
		return false, err
	}
	payments, err := e.paymentRows(token, date, ctx)
	if err != nil {
		return false, err
	}

	receiptTotal := decimal.Zero
	for _, r := range receipts {
		receiptTotal = receiptTotal.Add(r.Amount)
	}
	paymentTotal := decimal.Zero
	for _, p := range payments {
		paymentTotal = paymentTotal.Add(p.Amount)
	}

	if !amountsMatch(receiptTotal, paymentTotal) {
		log.Printf("cash account validation failed. receipts %s, payments %s", receiptTotal, paymentTotal)
		return false, nil
	}
	return true, nil
}

// ReceiptTransactions returns the receipt side of the ledger for the
// period ending at date, with a TOTAL row appended, and the total amount.
//
// When the caller is an administrator and a prior valuation exists, a
// BalanceInHand entry carrying the prior period's bank balance is
// synthesized if missing. The synthesized row is also persisted so that
// re-validation sees it. An existing entry is moved to the top of the
// list; that affects display ordering only.
func (e *Engine) ReceiptTransactions(token *types.UserToken, date time.Time, previous *time.Time, ctx context.Context) ([]types.ReceiptRow, decimal.Decimal, error) {
	rows, err := e.receiptRows(token, date, ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if token.IsAdministrator() && previous != nil && date.After(*previous) {
		carried := -1
		for i, r := range rows {
			if r.Type == types.TxBalanceInHand {
				carried = i
				break
			}
		}
		if carried < 0 {
			amount, err := e.cash.BalanceInHand(token, *previous, ctx)
			if err != nil {
				return nil, decimal.Zero, err
			}
			row := types.ReceiptRow{
				CashTransaction: types.CashTransaction{
					ValuationDate:   date,
					TransactionDate: date,
					Type:            types.TxBalanceInHand,
					Parameter:       types.TxBalanceInHand,
					Amount:          amount,
					Added:           true,
				},
				Subscription: amount,
			}
			rows = append(rows, row)
			if _, err := e.AddTransaction(token, date, date, row.Type, row.Parameter, amount, ctx); err != nil {
				return nil, decimal.Zero, err
			}
		} else if carried > 0 {
			row := rows[carried]
			rows = append(rows[:carried], rows[carried+1:]...)
			rows = append([]types.ReceiptRow{row}, rows...)
		}
	}

	total := decimal.Zero
	totalRow := types.ReceiptRow{}
	for _, r := range rows {
		total = total.Add(r.Amount)
		totalRow.Subscription = totalRow.Subscription.Add(r.Subscription)
		totalRow.Sale = totalRow.Sale.Add(r.Sale)
		totalRow.Dividend = totalRow.Dividend.Add(r.Dividend)
		totalRow.Other = totalRow.Other.Add(r.Other)
	}
	totalRow.Amount = total
	totalRow.Parameter = types.TxTotal
	totalRow.IsTotal = true
	totalRow.TransactionDate = date
	rows = append(rows, totalRow)

	return rows, total, nil
}

// PaymentTransactions returns the payment side of the ledger for the
// period ending at date, with a TOTAL row appended, and the total amount.
func (e *Engine) PaymentTransactions(token *types.UserToken, date time.Time, ctx context.Context) ([]types.PaymentRow, decimal.Decimal, error) {
	rows, err := e.paymentRows(token, date, ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}

	total := decimal.Zero
	totalRow := types.PaymentRow{}
	for _, p := range rows {
		total = total.Add(p.Amount)
		totalRow.Withdrawals = totalRow.Withdrawals.Add(p.Withdrawals)
		totalRow.Purchases = totalRow.Purchases.Add(p.Purchases)
		totalRow.Other = totalRow.Other.Add(p.Other)
	}
	totalRow.Amount = total
	totalRow.Parameter = types.TxTotal
	totalRow.IsTotal = true
	totalRow.TransactionDate = date
	rows = append(rows, totalRow)

	return rows, total, nil
}

// AddTransaction records a single cash movement and returns its id.
func (e *Engine) AddTransaction(token *types.UserToken, valuationDate, transactionDate time.Time, txType, parameter string, amount decimal.Decimal, ctx context.Context) (string, error) {
	if err := token.Authorize(types.AuthUpdate); err != nil {
		return "", err
	}
	tx := types.CashTransaction{
		ID:              uuid.NewString(),
		ValuationDate:   valuationDate,
		TransactionDate: transactionDate,
		Type:            txType,
		Parameter:       parameter,
		Amount:          amount,
	}
	return e.cash.AddTransaction(token, tx, ctx)
}

// RemoveTransaction deletes a cash movement by id.
func (e *Engine) RemoveTransaction(token *types.UserToken, id string, ctx context.Context) error {
	if err := token.Authorize(types.AuthUpdate); err != nil {
		return err
	}
	return e.cash.RemoveTransaction(token, id, ctx)
}

func (e *Engine) receiptRows(token *types.UserToken, date time.Time, ctx context.Context) ([]types.ReceiptRow, error) {
	txs, err := e.cash.Transactions(token, types.SideReceipt, date, ctx)
	if err != nil {
		return nil, err
	}
	var rows []types.ReceiptRow
	for _, tx := range txs {
		col, ok := receiptColumns[tx.Type]
		if !ok {
			continue
		}
		row := types.ReceiptRow{CashTransaction: tx}
		switch col {
		case colSubscription:
			row.Subscription = tx.Amount
		case colSale:
			row.Sale = tx.Amount
		case colReceiptDividend:
			row.Dividend = tx.Amount
		case colReceiptOther:
			row.Other = tx.Amount
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (e *Engine) paymentRows(token *types.UserToken, date time.Time, ctx context.Context) ([]types.PaymentRow, error) {
	txs, err := e.cash.Transactions(token, types.SidePayment, date, ctx)
	if err != nil {
		return nil, err
	}
	var rows []types.PaymentRow
	for _, tx := range txs {
		col, ok := paymentColumns[tx.Type]
		if !ok {
			continue
		}
		row := types.PaymentRow{CashTransaction: tx}
		switch col {
		case colWithdrawals:
			row.Withdrawals = tx.Amount
		case colPurchases:
			row.Purchases = tx.Amount
		case colPaymentOther:
			row.Other = tx.Amount
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// amountsMatch compares two amounts to two decimal places.
func amountsMatch(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}

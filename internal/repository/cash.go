package repository

import (
	"context"
	"fmt"
	"time"

	"fundbuilder/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// receiptTypes partitions the transaction vocabulary into ledger sides.
// Anything not listed here is a payment.
var receiptTypes = map[string]bool{
	types.TxSubscription:  true,
	types.TxBalanceInHand: true,
	types.TxSale:          true,
	types.TxDividend:      true,
	types.TxInterest:      true,
}

func sideOf(txType string) types.CashSide {
	if receiptTypes[txType] {
		return types.SideReceipt
	}
	return types.SidePayment
}

// balanceQuery derives the bank balance at a valuation date. The
// carried-forward rows are the closing balance of the period: the
// treasurer enters one to tie payments to receipts, and the engine adds
// negative ones when redemptions pay out. Their sum is the balance.
const balanceQuery = `
	SELECT COALESCE(SUM(amount), 0)
	FROM cash_transaction
	WHERE account_id = $1 AND valuation_date = $2 AND tx_type = 'BalanceInHandCF'`

// CashBalance derives the bank balance and the per-instrument dividend
// totals from the transactions recorded at the valuation date.
func (db *Database) CashBalance(token *types.UserToken, date time.Time, ctx context.Context) (*types.CashBalance, error) {
	const dividendQuery = `
		SELECT parameter, SUM(amount)
		FROM cash_transaction
		WHERE account_id = $1 AND valuation_date = $2 AND tx_type = $3
		GROUP BY parameter`

	balance := &types.CashBalance{Dividends: make(map[string]decimal.Decimal)}
	err := db.conn.QueryRow(ctx, balanceQuery, token.Account.ID, date).
		Scan(&balance.BankBalance)
	if err != nil {
		return nil, fmt.Errorf("query cash balance: %w", err)
	}

	rows, err := db.conn.Query(ctx, dividendQuery, token.Account.ID, date, types.TxDividend)
	if err != nil {
		return nil, fmt.Errorf("query dividends: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var amount decimal.Decimal
		if err := rows.Scan(&name, &amount); err != nil {
			return nil, fmt.Errorf("scan dividend: %w", err)
		}
		balance.Dividends[name] = amount
	}
	return balance, rows.Err()
}

// BalanceInHand is the net cash position at the date, carried forward
// as the opening receipt of the next period.
func (db *Database) BalanceInHand(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := db.conn.QueryRow(ctx, balanceQuery, token.Account.ID, date).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query balance in hand: %w", err)
	}
	return balance, nil
}

func (db *Database) Transactions(token *types.UserToken, side types.CashSide, date time.Time, ctx context.Context) ([]types.CashTransaction, error) {
	const query = `
		SELECT id, valuation_date, transaction_date, tx_type, parameter, amount
		FROM cash_transaction
		WHERE account_id = $1 AND side = $2 AND valuation_date = $3
		ORDER BY transaction_date, id`

	rows, err := db.conn.Query(ctx, query, token.Account.ID, string(side), date)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []types.CashTransaction
	for rows.Next() {
		var tx types.CashTransaction
		if err := rows.Scan(&tx.ID, &tx.ValuationDate, &tx.TransactionDate,
			&tx.Type, &tx.Parameter, &tx.Amount); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (db *Database) AddTransaction(token *types.UserToken, tx types.CashTransaction, ctx context.Context) (string, error) {
	const query = `
		INSERT INTO cash_transaction
			(id, account_id, valuation_date, transaction_date, side, tx_type, parameter, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	id := tx.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := db.conn.Exec(ctx, query, id, token.Account.ID, tx.ValuationDate,
		tx.TransactionDate, string(sideOf(tx.Type)), tx.Type, tx.Parameter, tx.Amount)
	if err != nil {
		return "", fmt.Errorf("add %s transaction: %w", tx.Type, err)
	}
	return id, nil
}

func (db *Database) RemoveTransaction(token *types.UserToken, id string, ctx context.Context) error {
	const query = `
		DELETE FROM cash_transaction
		WHERE account_id = $1 AND id = $2`

	tag, err := db.conn.Exec(ctx, query, token.Account.ID, id)
	if err != nil {
		return fmt.Errorf("remove transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"fundbuilder/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Redemptions returns every redemption request recorded strictly after
// since, oldest first. Requests dated on a valuation date belong to the
// period that valuation settled.
func (db *Database) Redemptions(token *types.UserToken, since time.Time, ctx context.Context) ([]types.Redemption, error) {
	const query = `
		SELECT id, member, amount, transaction_date, units, status
		FROM redemption
		WHERE account_id = $1 AND transaction_date > $2
		ORDER BY transaction_date, member`

	rows, err := db.conn.Query(ctx, query, token.Account.ID, since)
	if err != nil {
		return nil, fmt.Errorf("query redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []types.Redemption
	for rows.Next() {
		var r types.Redemption
		var status string
		if err := rows.Scan(&r.ID, &r.Member, &r.Amount, &r.TransactionDate,
			&r.RedeemedUnits, &status); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		r.Status = types.RedemptionStatus(status)
		redemptions = append(redemptions, r)
	}
	return redemptions, rows.Err()
}

func (db *Database) AddRedemption(token *types.UserToken, member string, transactionDate time.Time, amount decimal.Decimal, ctx context.Context) error {
	const query = `
		INSERT INTO redemption (id, account_id, member, transaction_date, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := db.conn.Exec(ctx, query, uuid.NewString(), token.Account.ID,
		member, transactionDate, amount, string(types.RedemptionPending))
	if err != nil {
		return fmt.Errorf("add redemption for %s: %w", member, err)
	}
	return nil
}

// UpdateRedemption marks a pending request complete, recording the
// amount actually paid out and the units surrendered.
func (db *Database) UpdateRedemption(token *types.UserToken, member string, transactionDate time.Time, amount, units decimal.Decimal, ctx context.Context) (types.RedemptionStatus, error) {
	const query = `
		UPDATE redemption
		SET amount = $4, units = $5, status = $6
		WHERE account_id = $1 AND member = $2 AND transaction_date = $3`

	tag, err := db.conn.Exec(ctx, query, token.Account.ID, member, transactionDate,
		amount, units, string(types.RedemptionComplete))
	if err != nil {
		return types.RedemptionFailed, fmt.Errorf("update redemption for %s: %w", member, err)
	}
	if tag.RowsAffected() == 0 {
		return types.RedemptionFailed, ErrRedemptionNotFound
	}
	return types.RedemptionComplete, nil
}

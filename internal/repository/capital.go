package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundbuilder/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Account loads the account identified by the token, including its
// member list. A missing account returns nil without error.
func (db *Database) Account(token *types.UserToken, ctx context.Context) (*types.Account, error) {
	const accountQuery = `
		SELECT id, name, description, currency, account_type, enabled, broker
		FROM account
		WHERE id = $1`

	const memberQuery = `
		SELECT user_name, auth_level
		FROM account_member
		WHERE account_id = $1
		ORDER BY user_name`

	var account types.Account
	err := db.conn.QueryRow(ctx, accountQuery, token.Account.ID).
		Scan(&account.ID.ID, &account.ID.Name, &account.Description,
			&account.ReportingCurrency, &account.Type, &account.Enabled, &account.Broker)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}

	rows, err := db.conn.Query(ctx, memberQuery, token.Account.ID)
	if err != nil {
		return nil, fmt.Errorf("query account members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member types.AccountMember
		if err := rows.Scan(&member.Name, &member.Level); err != nil {
			return nil, fmt.Errorf("scan account member: %w", err)
		}
		account.Members = append(account.Members, member)
	}
	return &account, rows.Err()
}

// UserAuthLevel returns the access level a user holds on an account,
// AuthNone when the user is not a member.
func (db *Database) UserAuthLevel(user string, accountID int, ctx context.Context) (types.AuthLevel, error) {
	const query = `
		SELECT auth_level
		FROM account_member
		WHERE account_id = $1 AND user_name = $2`

	var level types.AuthLevel
	err := db.conn.QueryRow(ctx, query, accountID, user).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.AuthNone, nil
	}
	if err != nil {
		return types.AuthNone, fmt.Errorf("query auth level for %s: %w", user, err)
	}
	return level, nil
}

func (db *Database) Members(token *types.UserToken, date time.Time, ctx context.Context) ([]string, error) {
	const query = `
		SELECT user_name
		FROM account_member
		WHERE account_id = $1
		ORDER BY user_name`

	rows, err := db.conn.Query(ctx, query, token.Account.ID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, name)
	}
	return members, rows.Err()
}

// MemberCapital returns each member's unit holding at the valuation date.
func (db *Database) MemberCapital(token *types.UserToken, date time.Time, ctx context.Context) (map[string]decimal.Decimal, error) {
	const query = `
		SELECT member, units
		FROM member_capital
		WHERE account_id = $1 AND valuation_date = $2`

	rows, err := db.conn.Query(ctx, query, token.Account.ID, date)
	if err != nil {
		return nil, fmt.Errorf("query member capital: %w", err)
	}
	defer rows.Close()

	capital := make(map[string]decimal.Decimal)
	for rows.Next() {
		var member string
		var units decimal.Decimal
		if err := rows.Scan(&member, &units); err != nil {
			return nil, fmt.Errorf("scan member capital: %w", err)
		}
		capital[member] = units
	}
	return capital, rows.Err()
}

func (db *Database) SetMemberCapital(token *types.UserToken, date time.Time, member string, units decimal.Decimal, ctx context.Context) error {
	const query = `
		INSERT INTO member_capital (account_id, valuation_date, member, units)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, valuation_date, member) DO UPDATE SET units = EXCLUDED.units`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, date, member, units); err != nil {
		return fmt.Errorf("set member capital %s: %w", member, err)
	}
	return nil
}

// MemberSubscription sums the subscriptions a member paid in during the
// period ending at the valuation date.
func (db *Database) MemberSubscription(token *types.UserToken, date time.Time, member string, ctx context.Context) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM cash_transaction
		WHERE account_id = $1 AND valuation_date = $2 AND tx_type = $3 AND parameter = $4`

	var amount decimal.Decimal
	err := db.conn.QueryRow(ctx, query, token.Account.ID, date, types.TxSubscription, member).Scan(&amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query subscription for %s: %w", member, err)
	}
	return amount, nil
}

// UnitPrice returns the unit valuation saved for the date, or zero when
// the date was never valued.
func (db *Database) UnitPrice(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error) {
	const query = `
		SELECT unit_price
		FROM unit_valuation
		WHERE account_id = $1 AND valuation_date = $2`

	var price decimal.Decimal
	err := db.conn.QueryRow(ctx, query, token.Account.ID, date).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query unit price: %w", err)
	}
	return price, nil
}

func (db *Database) SaveUnitPrice(token *types.UserToken, date time.Time, price decimal.Decimal, ctx context.Context) error {
	const query = `
		INSERT INTO unit_valuation (account_id, valuation_date, unit_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, valuation_date) DO UPDATE SET unit_price = EXCLUDED.unit_price`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, date, price); err != nil {
		return fmt.Errorf("save unit price: %w", err)
	}
	return nil
}

// UnitPriceRange returns the saved unit valuations between the two
// dates inclusive, in date order.
func (db *Database) UnitPriceRange(token *types.UserToken, from, to time.Time, ctx context.Context) ([]decimal.Decimal, error) {
	const query = `
		SELECT unit_price
		FROM unit_valuation
		WHERE account_id = $1 AND valuation_date BETWEEN $2 AND $3
		ORDER BY valuation_date`

	rows, err := db.conn.Query(ctx, query, token.Account.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query unit price range: %w", err)
	}
	defer rows.Close()

	var prices []decimal.Decimal
	for rows.Next() {
		var price decimal.Decimal
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("scan unit price: %w", err)
		}
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

func (db *Database) IssuedUnits(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(units), 0)
		FROM member_capital
		WHERE account_id = $1 AND valuation_date = $2`

	var units decimal.Decimal
	if err := db.conn.QueryRow(ctx, query, token.Account.ID, date).Scan(&units); err != nil {
		return decimal.Zero, fmt.Errorf("query issued units: %w", err)
	}
	return units, nil
}

func (db *Database) LatestValuationDate(token *types.UserToken, ctx context.Context) (*time.Time, error) {
	const query = `
		SELECT MAX(valuation_date)
		FROM unit_valuation
		WHERE account_id = $1`

	return db.queryDate(ctx, query, token.Account.ID)
}

func (db *Database) PreviousValuationDate(token *types.UserToken, date time.Time, ctx context.Context) (*time.Time, error) {
	const query = `
		SELECT MAX(valuation_date)
		FROM unit_valuation
		WHERE account_id = $1 AND valuation_date < $2`

	return db.queryDate(ctx, query, token.Account.ID, date)
}

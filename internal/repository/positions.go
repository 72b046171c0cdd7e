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

// ActivePositions returns the valuation rows for instruments still held
// (or still marked active) at the given date.
func (db *Database) ActivePositions(token *types.UserToken, date time.Time, ctx context.Context) ([]types.Position, error) {
	const query = `
		SELECT r.name, r.valuation_date, r.last_bought, r.quantity, r.average_price,
		       r.total_cost, r.share_price, r.dividend, r.manual_price
		FROM investment_record r
		JOIN investment i ON i.account_id = r.account_id AND i.name = r.name
		WHERE r.account_id = $1 AND r.valuation_date = $2 AND i.active
		ORDER BY r.name`

	return db.queryPositions(ctx, query, token.Account.ID, date)
}

// PositionRecords returns every valuation row recorded for the date,
// including rows for deactivated instruments.
func (db *Database) PositionRecords(token *types.UserToken, date time.Time, ctx context.Context) ([]types.Position, error) {
	const query = `
		SELECT name, valuation_date, last_bought, quantity, average_price,
		       total_cost, share_price, dividend, manual_price
		FROM investment_record
		WHERE account_id = $1 AND valuation_date = $2
		ORDER BY name`

	return db.queryPositions(ctx, query, token.Account.ID, date)
}

func (db *Database) queryPositions(ctx context.Context, query string, args ...any) ([]types.Position, error) {
	rows, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		var pos types.Position
		var manualPrice *string
		var lb *time.Time
		if err := rows.Scan(&pos.Name, &pos.ValuationDate, &lb, &pos.Quantity,
			&pos.AveragePrice, &pos.TotalCost, &pos.SharePrice, &pos.Dividend, &manualPrice); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if lb != nil {
			pos.LastBought = *lb
		}
		if manualPrice != nil {
			pos.ManualPrice = *manualPrice
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (db *Database) InstrumentInfo(name string, ctx context.Context) (*types.InstrumentInfo, error) {
	const query = `
		SELECT symbol, exchange, currency, scaling_factor
		FROM investment
		WHERE name = $1
		LIMIT 1`

	var info types.InstrumentInfo
	err := db.conn.QueryRow(ctx, query, name).
		Scan(&info.Symbol, &info.Exchange, &info.Currency, &info.ScalingFactor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query instrument %s: %w", name, err)
	}
	return &info, nil
}

func (db *Database) LatestRecordDate(token *types.UserToken, ctx context.Context) (*time.Time, error) {
	const query = `
		SELECT MAX(valuation_date)
		FROM investment_record
		WHERE account_id = $1`

	return db.queryDate(ctx, query, token.Account.ID)
}

func (db *Database) PreviousRecordDate(token *types.UserToken, date time.Time, ctx context.Context) (*time.Time, error) {
	const query = `
		SELECT MAX(valuation_date)
		FROM investment_record
		WHERE account_id = $1 AND valuation_date < $2`

	return db.queryDate(ctx, query, token.Account.ID, date)
}

func (db *Database) IsRecordDate(token *types.UserToken, date time.Time, ctx context.Context) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM investment_record
			WHERE account_id = $1 AND valuation_date = $2
		)`

	var exists bool
	if err := db.conn.QueryRow(ctx, query, token.Account.ID, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("query record date: %w", err)
	}
	return exists, nil
}

func (db *Database) queryDate(ctx context.Context, query string, args ...any) (*time.Time, error) {
	var date *time.Time
	if err := db.conn.QueryRow(ctx, query, args...).Scan(&date); err != nil {
		return nil, fmt.Errorf("query date: %w", err)
	}
	return date, nil
}

// RollPosition copies an instrument's previous valuation row forward to
// the new date. Rolling the same instrument twice for one date is a
// no-op.
func (db *Database) RollPosition(token *types.UserToken, name string, date, previous time.Time, ctx context.Context) error {
	const query = `
		INSERT INTO investment_record
			(account_id, name, valuation_date, last_bought, quantity,
			 average_price, total_cost, share_price, dividend, manual_price)
		SELECT account_id, name, $3, last_bought, quantity,
		       average_price, total_cost, share_price, dividend, manual_price
		FROM investment_record
		WHERE account_id = $1 AND name = $2 AND valuation_date = $4
		ON CONFLICT (account_id, name, valuation_date) DO NOTHING`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, name, date, previous); err != nil {
		return fmt.Errorf("roll position %s: %w", name, err)
	}
	return nil
}

func (db *Database) SellShares(token *types.UserToken, name string, quantity decimal.Decimal, date time.Time, ctx context.Context) error {
	const query = `
		UPDATE investment_record
		SET quantity = quantity - $4
		WHERE account_id = $1 AND name = $2 AND valuation_date = $3`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, name, date, quantity); err != nil {
		return fmt.Errorf("sell shares %s: %w", name, err)
	}
	return nil
}

func (db *Database) SetQuantity(token *types.UserToken, name string, date time.Time, quantity decimal.Decimal, ctx context.Context) error {
	const query = `
		UPDATE investment_record
		SET quantity = $4
		WHERE account_id = $1 AND name = $2 AND valuation_date = $3`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, name, date, quantity); err != nil {
		return fmt.Errorf("set quantity %s: %w", name, err)
	}
	return nil
}

// AddShares applies a purchase to an existing row: quantity and total
// cost grow, the average price is re-derived, and the last-bought date
// moves to the trade date.
func (db *Database) AddShares(token *types.UserToken, name string, quantity decimal.Decimal, date time.Time, totalCost decimal.Decimal, ctx context.Context) error {
	const query = `
		UPDATE investment_record
		SET quantity = quantity + $4,
		    total_cost = total_cost + $5,
		    average_price = (total_cost + $5) / NULLIF(quantity + $4, 0),
		    last_bought = $3
		WHERE account_id = $1 AND name = $2 AND valuation_date = $3`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, name, date, quantity, totalCost); err != nil {
		return fmt.Errorf("add shares %s: %w", name, err)
	}
	return nil
}

func (db *Database) SetDividend(token *types.UserToken, name string, date time.Time, dividend decimal.Decimal, ctx context.Context) error {
	const query = `
		UPDATE investment_record
		SET dividend = $4
		WHERE account_id = $1 AND name = $2 AND valuation_date = $3`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, name, date, dividend); err != nil {
		return fmt.Errorf("set dividend %s: %w", name, err)
	}
	return nil
}

func (db *Database) SetClosingPrice(token *types.UserToken, name string, date time.Time, price decimal.Decimal, ctx context.Context) error {
	const query = `
		UPDATE investment_record
		SET share_price = $4
		WHERE account_id = $1 AND name = $2 AND valuation_date = $3`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, name, date, price); err != nil {
		return fmt.Errorf("set closing price %s: %w", name, err)
	}
	return nil
}

// CreatePosition registers a new instrument for the account and writes
// its first valuation row from the opening trade.
func (db *Database) CreatePosition(token *types.UserToken, trade types.Trade, date time.Time, closing decimal.Decimal, ctx context.Context) error {
	const insertInvestment = `
		INSERT INTO investment (account_id, name, symbol, exchange, currency, scaling_factor, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (account_id, name) DO UPDATE SET active = TRUE`

	const insertRecord = `
		INSERT INTO investment_record
			(account_id, name, valuation_date, last_bought, quantity,
			 average_price, total_cost, share_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, name, valuation_date) DO UPDATE
		SET last_bought = EXCLUDED.last_bought,
		    quantity = EXCLUDED.quantity,
		    average_price = EXCLUDED.average_price,
		    total_cost = EXCLUDED.total_cost,
		    share_price = EXCLUDED.share_price`

	tx, err := db.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create position: %w", err)
	}
	defer tx.Rollback(ctx)

	scaling := trade.ScalingFactor
	if scaling.IsZero() {
		scaling = decimal.NewFromInt(1)
	}
	if _, err := tx.Exec(ctx, insertInvestment, token.Account.ID, trade.Name,
		trade.Symbol, trade.Exchange, trade.Currency, scaling); err != nil {
		return fmt.Errorf("create instrument %s: %w", trade.Name, err)
	}

	averagePrice := decimal.Zero
	if !trade.Quantity.IsZero() {
		averagePrice = trade.TotalCost.Div(trade.Quantity)
	}
	if _, err := tx.Exec(ctx, insertRecord, token.Account.ID, trade.Name, date,
		trade.TransactionDate, trade.Quantity, averagePrice, trade.TotalCost, closing); err != nil {
		return fmt.Errorf("create position record %s: %w", trade.Name, err)
	}

	return tx.Commit(ctx)
}

func (db *Database) DeactivatePosition(token *types.UserToken, name string, ctx context.Context) error {
	const query = `
		UPDATE investment
		SET active = FALSE
		WHERE account_id = $1 AND name = $2`

	if _, err := db.conn.Exec(ctx, query, token.Account.ID, name); err != nil {
		return fmt.Errorf("deactivate position %s: %w", name, err)
	}
	return nil
}

func (db *Database) AddTradeHistory(token *types.UserToken, trades []types.Trade, tradeType types.TradeType, date time.Time, ctx context.Context) error {
	const query = `
		INSERT INTO trade_history (account_id, valuation_date, name, trade_type, quantity, total_cost)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, trade := range trades {
		if _, err := db.conn.Exec(ctx, query, token.Account.ID, date,
			trade.Name, string(tradeType), trade.Quantity, trade.TotalCost); err != nil {
			return fmt.Errorf("record %s trade %s: %w", tradeType, trade.Name, err)
		}
	}
	return nil
}

// TradesBetween returns the recorded trade history for the period,
// inclusive of both bounds, grouped by trade type.
func (db *Database) TradesBetween(token *types.UserToken, from, to time.Time, ctx context.Context) (*types.TradeBatch, error) {
	const query = `
		SELECT name, trade_type, quantity, total_cost, valuation_date
		FROM trade_history
		WHERE account_id = $1 AND valuation_date >= $2 AND valuation_date <= $3
		ORDER BY valuation_date`

	rows, err := db.conn.Query(ctx, query, token.Account.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	batch := &types.TradeBatch{}
	for rows.Next() {
		var trade types.Trade
		var tradeType string
		if err := rows.Scan(&trade.Name, &tradeType, &trade.Quantity,
			&trade.TotalCost, &trade.TransactionDate); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		switch types.TradeType(tradeType) {
		case types.TradeBuy:
			batch.Buys = append(batch.Buys, trade)
		case types.TradeSell:
			batch.Sells = append(batch.Sells, trade)
		case types.TradeModify:
			batch.Changed = append(batch.Changed, trade)
		}
	}
	return batch, rows.Err()
}

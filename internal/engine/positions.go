package engine

import (
	"context"
	"fmt"
	"fundbuilder/types"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// priceResult reports how a closing price was obtained.
type priceResult int

const (
	noPrice priceResult = iota
	foundPrice
	useOverride
)

// UpdatePositions rolls every currently-held instrument forward to date,
// applies the period's trades and accumulated dividends, resolves new
// closing prices, and creates positions for instruments traded for the
// first time.
//
// A validation pass runs first and writes nothing: any market price that
// moved more than 90% from the previous recorded price aborts the whole
// operation with ErrExcessivePriceMove. The guard keeps corrupt market
// data out of the NAV.
func (e *Engine) UpdatePositions(token *types.UserToken, account *types.Account, trades *types.TradeBatch, cashData *types.CashBalance, date time.Time, manualPrices types.ManualPrices, previous *time.Time, progress *Progress, ctx context.Context) error {
	var buys, sells, changed []types.Trade
	if trades != nil {
		buys = aggregateTrades(trades.Buys)
		sells = aggregateTrades(trades.Sells)
		changed = trades.Changed
	}

	previousRecord, err := e.positions.LatestRecordDate(token, ctx)
	if err != nil {
		return err
	}
	recordDate := date
	if previousRecord != nil {
		recordDate = *previousRecord
	}
	held, err := e.positions.ActivePositions(token, recordDate, ctx)
	if err != nil {
		return err
	}

	progress.Initialise("updating investment records", len(held)+1)

	// Validation pass. No position is mutated until every resolved price
	// has passed the sanity check.
	for _, pos := range held {
		info, err := e.positions.InstrumentInfo(pos.Name, ctx)
		if err != nil {
			return err
		}
		if info == nil {
			continue
		}
		price, result := e.resolveClosingPrice(*info, pos.Name, account.ReportingCurrency, manualPrices)
		if result != foundPrice {
			continue
		}
		// Reject a move beyond 90% of the previous price.
		margin := pos.SharePrice.Sub(pos.SharePrice.Div(decimal.NewFromInt(10)))
		if price.Sub(pos.SharePrice).Abs().GreaterThan(margin) {
			log.Printf("invalid price for %s. excessive price movement. price = %s: previous = %s", pos.Name, price, pos.SharePrice)
			return ErrExcessivePriceMove
		}
	}

	for _, pos := range held {
		if previousRecord == nil {
			return fmt.Errorf("%w: %s", ErrNoPreviousRecord, account.ID)
		}

		if err := e.positions.RollPosition(token, pos.Name, date, *previousRecord, ctx); err != nil {
			return err
		}

		if sell := matchTrade(sells, pos.Name); sell != nil {
			log.Printf("company %s sold %s shares", pos.Name, sell.Quantity)
			if err := e.positions.SellShares(token, pos.Name, sell.Quantity, date, ctx); err != nil {
				return err
			}
		}

		if change := matchTrade(changed, pos.Name); change != nil {
			log.Printf("company share number changed %s", pos.Name)
			if err := e.positions.SetQuantity(token, pos.Name, date, change.Quantity, ctx); err != nil {
				return err
			}
		}

		if buy := matchTrade(buys, pos.Name); buy != nil {
			if err := e.positions.AddShares(token, pos.Name, buy.Quantity, date, buy.TotalCost, ctx); err != nil {
				return err
			}
			// Consume the buy so it is not re-applied as a new position.
			buys = removeTrade(buys, buy.Name)
		}

		if err := e.updateDividend(token, pos.Name, date, previous, cashData, ctx); err != nil {
			return err
		}

		info, err := e.positions.InstrumentInfo(pos.Name, ctx)
		if err != nil {
			return err
		}
		if info != nil {
			price, result := e.resolveClosingPrice(*info, pos.Name, account.ReportingCurrency, manualPrices)
			if result != noPrice {
				if err := e.positions.SetClosingPrice(token, pos.Name, date, price, ctx); err != nil {
					return err
				}
			}
		}

		progress.Increment()
	}

	// Any buy left over is an instrument traded for the first time.
	for _, buy := range buys {
		log.Printf("adding new trade %s", buy.Name)
		info := types.InstrumentInfo{
			Symbol:        buy.Symbol,
			Exchange:      buy.Exchange,
			Currency:      buy.Currency,
			ScalingFactor: buy.ScalingFactor,
		}
		closing, _ := e.resolveClosingPrice(info, buy.Name, account.ReportingCurrency, manualPrices)
		if err := e.positions.CreatePosition(token, buy, date, closing, ctx); err != nil {
			return err
		}
	}

	if trades != nil {
		if err := e.positions.AddTradeHistory(token, trades.Buys, types.TradeBuy, date, ctx); err != nil {
			return err
		}
		if err := e.positions.AddTradeHistory(token, trades.Sells, types.TradeSell, date, ctx); err != nil {
			return err
		}
		if err := e.positions.AddTradeHistory(token, trades.Changed, types.TradeModify, date, ctx); err != nil {
			return err
		}
	}

	progress.Increment()
	return nil
}

// InvestmentRecords returns the valuation rows for date with the derived
// monthly figures filled in: month change and ratio net of any trades in
// the window, profit/loss, and total return. Positions whose quantity has
// reached zero are deactivated unless this is a snapshot read.
func (e *Engine) InvestmentRecords(token *types.UserToken, account *types.Account, date time.Time, previous *time.Time, manualPrices types.ManualPrices, snapshot bool, ctx context.Context) ([]types.Position, error) {
	// The previous valuation date does not always have a record row (the
	// account may have been rebuilt); fall back to the nearest earlier
	// record date.
	var previousRecord *time.Time
	if previous != nil {
		exists, err := e.positions.IsRecordDate(token, *previous, ctx)
		if err != nil {
			return nil, err
		}
		if exists {
			previousRecord = previous
		} else {
			previousRecord, err = e.positions.PreviousRecordDate(token, *previous, ctx)
			if err != nil {
				return nil, err
			}
		}
	}

	current, err := e.positionRows(token, account, date, snapshot, manualPrices, ctx)
	if err != nil {
		return nil, err
	}

	var previousRows []types.Position
	var trades *types.TradeBatch
	if previousRecord != nil {
		previousRows, err = e.positionRows(token, account, *previousRecord, false, nil, ctx)
		if err != nil {
			return nil, err
		}
		trades, err = e.positions.TradesBetween(token, previousRecord.AddDate(0, 0, 1), date, ctx)
		if err != nil {
			return nil, err
		}
	}

	for i := range current {
		pos := &current[i]
		for _, prev := range previousRows {
			if prev.Name == pos.Name {
				applyMonthlyChange(pos, prev, trades)
				break
			}
		}

		pos.ProfitLoss = pos.NetSellingValue.Sub(pos.TotalCost)
		if !pos.TotalCost.IsZero() {
			pos.TotalReturn = pos.ProfitLoss.Add(pos.Dividend).Div(pos.TotalCost).Mul(decimal.NewFromInt(100))
		}

		if !snapshot && pos.Quantity.IsZero() {
			if err := e.positions.DeactivatePosition(token, pos.Name, ctx); err != nil {
				return nil, err
			}
		}
	}
	return current, nil
}

// CurrentInvestments returns a snapshot of the investment records using
// the latest record date, with prices refreshed but nothing persisted.
func (e *Engine) CurrentInvestments(token *types.UserToken, manualPrices types.ManualPrices, ctx context.Context) ([]types.Position, error) {
	account, err := e.capital.Account(token, ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNoAccount
	}

	previous, err := e.capital.PreviousValuationDate(token, time.Now(), ctx)
	if err != nil {
		return nil, err
	}
	latest, err := e.positions.LatestRecordDate(token, ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return e.InvestmentRecords(token, account, *latest, previous, manualPrices, true, ctx)
}

// UpdateTrades applies a batch of trades outside a full valuation build,
// so subsequent record reads pick the new trades up.
func (e *Engine) UpdateTrades(token *types.UserToken, trades *types.TradeBatch, manualPrices types.ManualPrices, date time.Time, progress *Progress, ctx context.Context) error {
	if err := token.Authorize(types.AuthUpdate); err != nil {
		return err
	}
	account, err := e.capital.Account(token, ctx)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrNoAccount
	}
	return e.UpdatePositions(token, account, trades, nil, date, manualPrices, nil, progress, ctx)
}

// LatestRecordDate returns the most recent position record date.
func (e *Engine) LatestRecordDate(token *types.UserToken, ctx context.Context) (*time.Time, error) {
	return e.positions.LatestRecordDate(token, ctx)
}

// positionRows loads the rows for one date and recomputes each net
// selling value through the broker fee model. When refreshPrices is set
// the closing prices are re-resolved, marking overrides as manual.
func (e *Engine) positionRows(token *types.UserToken, account *types.Account, date time.Time, refreshPrices bool, manualPrices types.ManualPrices, ctx context.Context) ([]types.Position, error) {
	rows, err := e.positions.PositionRecords(token, date, ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		pos := &rows[i]
		if refreshPrices {
			info, err := e.positions.InstrumentInfo(pos.Name, ctx)
			if err != nil {
				return nil, err
			}
			if info != nil {
				price, result := e.resolveClosingPrice(*info, pos.Name, account.ReportingCurrency, manualPrices)
				if result != noPrice {
					pos.SharePrice = price
					if result == useOverride {
						pos.ManualPrice = price.StringFixed(3)
					}
				}
			}
		}
		pos.NetSellingValue = e.fees.NetSellingValue(account.Broker, pos.Quantity, pos.SharePrice)
	}
	return rows, nil
}

func (e *Engine) updateDividend(token *types.UserToken, name string, date time.Time, previous *time.Time, cashData *types.CashBalance, ctx context.Context) error {
	// The dividend column is cumulative; re-running the same period must
	// not add it twice.
	if previous != nil && !date.After(*previous) {
		return nil
	}
	if cashData == nil {
		return nil
	}
	dividend, ok := cashData.Dividends[name]
	if !ok {
		return nil
	}
	return e.positions.SetDividend(token, name, date, dividend, ctx)
}

func (e *Engine) resolveClosingPrice(info types.InstrumentInfo, name, reportingCurrency string, manualPrices types.ManualPrices) (decimal.Decimal, priceResult) {
	var override *decimal.Decimal
	if manualPrices != nil {
		if manual, ok := manualPrices[name]; ok {
			override = &manual
		}
	}
	price, ok := e.prices.ClosingPrice(info, name, reportingCurrency, override)
	if !ok {
		return decimal.Zero, noPrice
	}
	if override != nil {
		return price, useOverride
	}
	return price, foundPrice
}

// applyMonthlyChange nets any buy/sell cost in the window out of the
// movement between the previous and current net selling values.
func applyMonthlyChange(current *types.Position, previous types.Position, trades *types.TradeBatch) {
	change := current.NetSellingValue
	if trades != nil {
		for _, buy := range trades.Buys {
			if buy.Name == current.Name {
				change = change.Sub(buy.TotalCost)
			}
		}
		for _, sell := range trades.Sells {
			if sell.Name == current.Name {
				change = change.Add(sell.TotalCost)
			}
		}
	}
	change = change.Sub(previous.NetSellingValue)
	current.MonthChange = change
	if !previous.NetSellingValue.IsZero() {
		current.MonthChangeRatio = change.Div(previous.NetSellingValue).Mul(decimal.NewFromInt(100))
	}
}

// aggregateTrades sums duplicate trade lines for the same instrument:
// quantities and costs add.
func aggregateTrades(trades []types.Trade) []types.Trade {
	var out []types.Trade
	for _, t := range trades {
		merged := false
		for i := range out {
			if strings.EqualFold(out[i].Name, t.Name) {
				out[i].Quantity = out[i].Quantity.Add(t.Quantity)
				out[i].TotalCost = out[i].TotalCost.Add(t.TotalCost)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, t)
		}
	}
	return out
}

func matchTrade(trades []types.Trade, name string) *types.Trade {
	for i := range trades {
		if strings.EqualFold(trades[i].Name, name) {
			return &trades[i]
		}
	}
	return nil
}

func removeTrade(trades []types.Trade, name string) []types.Trade {
	out := trades[:0]
	for _, t := range trades {
		if !strings.EqualFold(t.Name, name) {
			out = append(out, t)
		}
	}
	return out
}

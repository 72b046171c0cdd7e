// Package marketdata resolves instrument closing prices into an
// account's reporting currency. Source aggregation and network fetch
// live behind the Source interface; only the resolved-price contract is
// consumed here.
package marketdata

import (
	"log"

	"fundbuilder/types"

	"github.com/shopspring/decimal"
)

// Price is a quoted market price in its native currency.
type Price struct {
	Value    decimal.Decimal
	Currency string
}

// Source supplies raw quotes and FX rates. The bool result is false
// when the source has no data for the query.
type Source interface {
	MarketPrice(symbol, exchange string) (Price, bool)
	FxRate(from, to string) (decimal.Decimal, bool)
}

type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// ClosingPrice resolves the closing price for one instrument in the
// reporting currency. A non-nil override wins over market data and is
// assumed to already be in the reporting currency. Market prices are
// scaled by the instrument's scaling factor (e.g. pence to pounds), and
// converted through an FX rate when the quote currency differs from the
// reporting currency. A zero market price counts as unavailable.
func (r *Resolver) ClosingPrice(info types.InstrumentInfo, name, reportingCurrency string, override *decimal.Decimal) (decimal.Decimal, bool) {
	log.Printf("getting closing price for %s", name)

	if override != nil {
		return *override, true
	}

	quote, ok := r.source.MarketPrice(info.Symbol, info.Exchange)
	if !ok || quote.Value.IsZero() {
		return decimal.Zero, false
	}

	closing := quote.Value
	if !info.ScalingFactor.IsZero() {
		closing = closing.Mul(info.ScalingFactor)
	}

	currency := info.Currency
	if quote.Currency != "" {
		currency = quote.Currency
	}
	if currency != reportingCurrency {
		rate, ok := r.source.FxRate(currency, reportingCurrency)
		if !ok {
			return decimal.Zero, false
		}
		closing = closing.Mul(rate)
	}
	return closing, true
}

package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// CSVSource is a Source backed by a quote file loaded once at startup.
// Each record is either a price or an fx rate:
//
//	price,<symbol>,<exchange>,<currency>,<value>
//	fx,<from>,<to>,<rate>
type CSVSource struct {
	prices map[string]Price
	rates  map[string]decimal.Decimal
}

func NewCSVSource(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open quote file: %w", err)
	}
	defer f.Close()

	return readCSVSource(f)
}

func readCSVSource(r io.Reader) (*CSVSource, error) {
	source := &CSVSource{
		prices: make(map[string]Price),
		rates:  make(map[string]decimal.Decimal),
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read quote record: %w", err)
		}

		switch record[0] {
		case "price":
			if len(record) != 5 {
				return nil, fmt.Errorf("malformed price record: %v", record)
			}
			value, err := decimal.NewFromString(record[4])
			if err != nil {
				return nil, fmt.Errorf("parse price %s: %w", record[1], err)
			}
			source.prices[quoteKey(record[1], record[2])] = Price{
				Value:    value,
				Currency: record[3],
			}
		case "fx":
			if len(record) != 4 {
				return nil, fmt.Errorf("malformed fx record: %v", record)
			}
			rate, err := decimal.NewFromString(record[3])
			if err != nil {
				return nil, fmt.Errorf("parse fx rate %s/%s: %w", record[1], record[2], err)
			}
			source.rates[fxKey(record[1], record[2])] = rate
		default:
			return nil, fmt.Errorf("unknown quote record kind %q", record[0])
		}
	}
	return source, nil
}

func (s *CSVSource) MarketPrice(symbol, exchange string) (Price, bool) {
	price, ok := s.prices[quoteKey(symbol, exchange)]
	return price, ok
}

func (s *CSVSource) FxRate(from, to string) (decimal.Decimal, bool) {
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1), true
	}
	if rate, ok := s.rates[fxKey(from, to)]; ok {
		return rate, true
	}
	// Derive the inverse when only the opposite direction is quoted.
	if rate, ok := s.rates[fxKey(to, from)]; ok && !rate.IsZero() {
		return decimal.NewFromInt(1).Div(rate), true
	}
	return decimal.Zero, false
}

func quoteKey(symbol, exchange string) string {
	return strings.ToUpper(symbol) + ":" + strings.ToUpper(exchange)
}

func fxKey(from, to string) string {
	return strings.ToUpper(from) + "/" + strings.ToUpper(to)
}

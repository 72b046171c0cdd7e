package engine

import "github.com/shopspring/decimal"

// Broker prices the fee taken when a holding is sold.
type Broker interface {
	Name() string
	NetSellingValue(quantity, price decimal.Decimal) decimal.Decimal
}

// Brokers holds the known broker fee schedules and implements the
// engine's fee model. An unknown or empty broker name falls back to the
// gross value.
type Brokers struct {
	brokers []Broker
}

func NewBrokers() *Brokers {
	return &Brokers{
		brokers: []Broker{
			shareCentre{},
			hargreavesLansdown{},
			ajBell{},
		},
	}
}

func (b *Brokers) NetSellingValue(broker string, quantity, price decimal.Decimal) decimal.Decimal {
	if broker != "" {
		for _, known := range b.brokers {
			if known.Name() == broker {
				return known.NetSellingValue(quantity, price)
			}
		}
	}
	return quantity.Mul(price)
}

func (b *Brokers) Names() []string {
	names := make([]string, 0, len(b.brokers))
	for _, broker := range b.brokers {
		names = append(names, broker.Name())
	}
	return names
}

// shareCentre charges 1% above 750.00, otherwise a flat 7.50.
type shareCentre struct{}

func (shareCentre) Name() string { return "ShareCentre" }

func (shareCentre) NetSellingValue(quantity, price decimal.Decimal) decimal.Decimal {
	gross := quantity.Mul(price)
	if gross.GreaterThan(decimal.NewFromInt(750)) {
		return gross.Sub(gross.Mul(decimal.NewFromFloat(0.01)))
	}
	return gross.Sub(decimal.NewFromFloat(7.5))
}

type hargreavesLansdown struct{}

func (hargreavesLansdown) Name() string { return "HargreavesLansdown" }

func (hargreavesLansdown) NetSellingValue(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Sub(decimal.NewFromFloat(12.95))
}

type ajBell struct{}

func (ajBell) Name() string { return "AJBell" }

func (ajBell) NetSellingValue(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Sub(decimal.NewFromFloat(8.95))
}

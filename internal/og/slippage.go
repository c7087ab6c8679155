package og

import (
	"github.com/shopspring/decimal"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
)

var (
	bpsDivisor = decimal.NewFromInt(10000)
	one        = decimal.NewFromInt(1)
)

const pricePlaces = 6

// Slippage models the execution price an order is expected to get.
type Slippage struct {
	UseBookPrice bool
	Bps          decimal.Decimal
}

// Price returns the execution price for side at tick. Buys price off the
// best ask and sells off the best bid when the book is known; the bps
// adjustment always goes against the trader. The result stays in [0,1].
func (s Slippage) Price(side enum.Side, tick model.Tick) decimal.Decimal {
	price := tick.Price
	if s.UseBookPrice {
		switch {
		case side == enum.SideBuy && tick.BestAsk.IsPositive():
			price = tick.BestAsk
		case side == enum.SideSell && tick.BestBid.IsPositive():
			price = tick.BestBid
		}
	}

	if s.Bps.IsPositive() {
		adj := price.Mul(s.Bps).Div(bpsDivisor)
		if side == enum.SideBuy {
			price = price.Add(adj)
		} else {
			price = price.Sub(adj)
		}
	}

	if price.GreaterThan(one) {
		price = one
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	return price.Round(pricePlaces)
}

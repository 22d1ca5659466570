package risk

import (
	"github.com/rustyeddy/tradedesk/market"
	"github.com/shopspring/decimal"
)

// ratioTolerance absorbs float error when comparing a computed ratio with a
// configured minimum.
const ratioTolerance = 1e-9

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// RR is reward over risk for an entry with the given stop and target.
// Zero risk yields 0.
func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// Levels returns the stop-loss and take-profit prices for an entry at price.
// Longs stop below and target above; sells are mirrored.
func Levels(side market.Side, price, stopLossPct, takeProfitPct float64) (stop, target float64) {
	sl := stopLossPct / 100
	tp := takeProfitPct / 100
	if side == market.Sell {
		return price * (1 + sl), price * (1 - tp)
	}
	return price * (1 - sl), price * (1 + tp)
}

// ClampQuantity caps qty so that qty*price stays within maxValue. The
// returned quantity is floored to whole shares.
func ClampQuantity(qty, price, maxValue float64) (float64, bool) {
	if price <= 0 || maxValue <= 0 {
		return qty, false
	}
	q, p, m := decimal.NewFromFloat(qty), decimal.NewFromFloat(price), decimal.NewFromFloat(maxValue)
	if q.Mul(p).LessThanOrEqual(m) {
		return qty, false
	}
	return m.Div(p).Floor().InexactFloat64(), true
}

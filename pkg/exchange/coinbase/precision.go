package coinbase

import (
	"math"

	"github.com/shopspring/decimal"

	"gdax-broker/pkg/exchange"
)

const (
	maxDecimalPlaces = 8
	precisionEpsilon = 1e-9
)

// decimalPlaces counts the fractional digits of an increment such as 0.0001
// once float noise below 1e-9 is discarded, on either side of the digit.
func decimalPlaces(increment float64) int32 {
	if increment <= 0 {
		return maxDecimalPlaces
	}
	v := math.Trunc((math.Abs(increment)+precisionEpsilon)*1e8) / 1e8
	var places int32
	for math.Abs(v-math.Round(v)) > precisionEpsilon && places < maxDecimalPlaces {
		v *= 10
		places++
	}
	return places
}

// formatAmount renders x with exactly the places of increment, rounding half
// away from zero.
func formatAmount(x, increment float64) string {
	places := decimalPlaces(increment)
	return decimal.NewFromFloat(x).Round(places).StringFixed(places)
}

// formatLimitPrice rounds a limit price toward the passive side: buys round
// down and sells round up, so the order never crosses further than asked.
func formatLimitPrice(price, increment float64, side exchange.Side) string {
	places := decimalPlaces(increment)
	p := decimal.NewFromFloat(price)
	if side == exchange.SideBuy {
		return p.RoundFloor(places).StringFixed(places)
	}
	return p.RoundCeil(places).StringFixed(places)
}

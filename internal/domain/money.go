package domain

import "math"

// Round2 rounds a monetary amount half away from zero to two decimal places.
// Every financial mutation passes through this before persistence so balances
// stay exact to the centavo.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package credit

import "github.com/shopspring/decimal"

// ExpectedLoss is PD x LGD x EAD.
func ExpectedLoss(pd, lgd, ead float64) float64 {
	return pd * lgd * ead
}

// Ratio divides n by d and defines the undefined case d == 0 as 0.
func Ratio(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}

// Percent is Ratio scaled to 0..100.
func Percent(n, d float64) float64 {
	return Ratio(n, d) * 100
}

// Round2 rounds half away from zero to two decimals.
func Round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// CapPD clamps a probability to [0, 1].
func CapPD(pd float64) float64 {
	switch {
	case pd < 0:
		return 0
	case pd > 1:
		return 1
	}
	return pd
}

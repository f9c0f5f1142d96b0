package models

import "fmt"

// Micros is a fixed-point USD amount, one unit = $0.000001. All monetary
// values that cross a settlement boundary are expressed this way so budget
// math never touches a float.
type Micros int64

const microsPerUSD = 1_000_000

// MicrosFromUSD converts a USD amount (e.g. a configured budget limit
// like 1.00) into Micros, rounding to the nearest unit. It is exact for
// any non-negative input with at most six fractional digits.
func MicrosFromUSD(dollars float64) Micros {
	return Micros(int64(dollars*microsPerUSD + 0.5))
}

func (m Micros) USD() float64 {
	return float64(m) / microsPerUSD
}

func (m Micros) String() string {
	return fmt.Sprintf("%.6f", m.USD())
}

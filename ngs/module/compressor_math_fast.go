//go:build fastmath

package module

import (
	"github.com/meko-christian/algo-approx"
)

const ln2 = 0.693147180559945309417232121458

// mathLog2 uses log2(x) = ln(x) / ln(2).
func mathLog2(x float64) float64 {
	return approx.FastLog(x) / ln2
}

// mathPower2 uses 2^x = e^(x * ln(2)).
func mathPower2(x float64) float64 {
	return approx.FastExp(x * ln2)
}

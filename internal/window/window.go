// Package window generates the analysis/synthesis windows used by the
// streaming spectral modules.
package window

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	TypeHamming
	TypeBlackman
)

var errMismatchedLength = errors.New("window: coefficient length mismatch")

// Option configures window generation.
type Option func(*config)

type config struct {
	periodic bool
}

// WithPeriodic configures periodic form (FFT framing) instead of symmetric form.
func WithPeriodic() Option {
	return func(c *config) {
		c.periodic = true
	}
}

// Generate returns size coefficients of window t. It returns nil for size <= 0.
func Generate(t Type, size int, opts ...Option) []float64 {
	if size <= 0 {
		return nil
	}

	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, size)
	if size == 1 {
		out[0] = 1
		return out
	}

	denom := float64(size - 1)
	if cfg.periodic {
		denom = float64(size)
	}

	for i := range out {
		x := float64(i) / denom
		out[i] = eval(t, x)
	}

	return out
}

func eval(t Type, x float64) float64 {
	switch t {
	case TypeHann:
		return 0.5 - 0.5*math.Cos(2*math.Pi*x)
	case TypeHamming:
		return 0.54 - 0.46*math.Cos(2*math.Pi*x)
	case TypeBlackman:
		return 0.42 - 0.5*math.Cos(2*math.Pi*x) + 0.08*math.Cos(4*math.Pi*x)
	default:
		return 1
	}
}

// ApplyCoefficientsInPlace multiplies samples with coefficients in place.
func ApplyCoefficientsInPlace(samples, coeffs []float64) error {
	if len(samples) != len(coeffs) {
		return errMismatchedLength
	}

	vecmath.MulBlockInPlace(samples, coeffs)

	return nil
}

// ApplyCoefficients writes samples*coeffs into dst.
func ApplyCoefficients(dst, samples, coeffs []float64) error {
	if len(samples) != len(coeffs) || len(dst) != len(samples) {
		return errMismatchedLength
	}

	vecmath.MulBlock(dst, samples, coeffs)

	return nil
}

// OverlapAddGain returns the constant sum of squared coefficients seen by
// every output sample when frames of coeffs are overlap-added every hop
// samples with the window applied on both analysis and synthesis. It returns
// the minimum across one hop, which equals the constant for COLA windows.
func OverlapAddGain(coeffs []float64, hop int) float64 {
	if len(coeffs) == 0 || hop <= 0 {
		return 0
	}

	gain := math.Inf(1)

	for pos := range hop {
		sum := 0.0
		for i := pos; i < len(coeffs); i += hop {
			sum += coeffs[i] * coeffs[i]
		}

		gain = min(gain, sum)
	}

	return gain
}

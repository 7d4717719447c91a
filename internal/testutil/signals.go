// Package testutil provides deterministic signals and tolerance checks for
// engine tests.
package testutil

import (
	"math"
	"math/rand/v2"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate

	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}

	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed uint64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))

	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}

	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}

	return out
}

// Interleave converts planar channels into an interleaved float32 buffer.
// All channels must have the same length as the first.
func Interleave(channels ...[]float64) []float32 {
	if len(channels) == 0 {
		return nil
	}

	frames := len(channels[0])
	out := make([]float32, frames*len(channels))

	for i := range frames {
		for c, ch := range channels {
			out[i*len(channels)+c] = float32(ch[i])
		}
	}

	return out
}

// Deinterleave splits interleaved samples into planar float64 channels.
func Deinterleave(samples []float32, channels int) [][]float64 {
	if channels <= 0 {
		return nil
	}

	frames := len(samples) / channels
	out := make([][]float64, channels)

	for c := range out {
		out[c] = make([]float64, frames)
		for i := range frames {
			out[c][i] = float64(samples[i*channels+c])
		}
	}

	return out
}

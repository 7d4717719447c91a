package module

import (
	"math"

	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/ngs/param"
)

// log2Of10Div20 converts dB to the log2 domain.
const log2Of10Div20 = 0.166096404744

// Compressor is a soft-knee feed-forward compressor with one peak detector
// per channel. Gain is computed in the log2 domain with quadratic smoothing
// across the knee.
type Compressor struct {
	params     paramCache[CompressorParams, *CompressorParams]
	sampleRate float64

	peaks []float64

	attackCoeff      float64
	releaseCoeff     float64
	thresholdLog2    float64
	kneeWidthLog2    float64
	invKneeWidthLog2 float64
	ratioFactor      float64
	makeupLin        float64
}

// NewCompressor builds a compressor with default parameters.
func NewCompressor(cfg Config) (*Compressor, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	c := &Compressor{
		params:     newParamCache[CompressorParams](DefaultCompressorParams()),
		sampleRate: cfg.SampleRate,
		peaks:      make([]float64, cfg.Channels),
	}
	c.configure(DefaultCompressorParams())

	return c, nil
}

func newCompressorModule(cfg Config) (Module, error) { return NewCompressor(cfg) }

func (c *Compressor) Kind() Kind { return KindCompressor }
func (c *Compressor) ModuleID() uint32 { return CompressorModuleID }
func (c *Compressor) MaxParameterSize() int { return CompressorDescriptor.Size }
func (c *Compressor) BufferParameterSize() int { return CompressorDescriptor.BufferSize }

// Reset clears the detectors.
func (c *Compressor) Reset() {
	clear(c.peaks)
}

func (c *Compressor) configure(p CompressorParams) {
	threshold := float64(p.ThresholdDB)
	ratio := float64(p.Ratio)

	c.thresholdLog2 = threshold * log2Of10Div20
	c.kneeWidthLog2 = float64(p.KneeDB) * log2Of10Div20
	c.invKneeWidthLog2 = 0

	if c.kneeWidthLog2 > 0 {
		c.invKneeWidthLog2 = 1 / c.kneeWidthLog2
	}

	c.ratioFactor = 1 - 1/ratio

	makeup := float64(p.MakeupDB)
	if math.IsNaN(makeup) {
		// Compensate the reduction at threshold.
		makeup = -threshold * c.ratioFactor
	}

	c.makeupLin = dspmath.DBToLinear(makeup)
	c.attackCoeff = 1 - math.Exp(-math.Ln2/(float64(p.AttackMs)*0.001*c.sampleRate))
	c.releaseCoeff = math.Exp(-math.Ln2 / (float64(p.ReleaseMs) * 0.001 * c.sampleRate))
}

// Process compresses ctx.Block in place.
func (c *Compressor) Process(ctx *Context, storage *param.Storage) (Status, error) {
	params, changed, err := c.params.load(storage)
	if err != nil {
		return 0, faultf(KindCompressor, "%v", err)
	}

	if changed {
		c.configure(params)
	}

	if len(ctx.Block.Channels) > len(c.peaks) {
		return 0, faultf(KindCompressor, "block has %d channels, module built for %d",
			len(ctx.Block.Channels), len(c.peaks))
	}

	for ci, samples := range ctx.Block.Channels {
		peak := c.peaks[ci]

		for i, x := range samples {
			level := math.Abs(x)
			if level > peak {
				peak += (level - peak) * c.attackCoeff
			} else {
				peak = level + (peak-level)*c.releaseCoeff
			}

			samples[i] = x * c.gain(peak) * c.makeupLin
		}

		c.peaks[ci] = dspmath.FlushDenormals(peak)
	}

	return 0, nil
}

// CurveGain returns the static gain applied to a steady level, without makeup.
func (c *Compressor) CurveGain(level float64) float64 {
	return c.gain(math.Abs(level))
}

func (c *Compressor) gain(peak float64) float64 {
	if peak <= 0 {
		return 1
	}

	overshoot := mathLog2(peak) - c.thresholdLog2

	if c.kneeWidthLog2 <= 0 {
		if overshoot <= 0 {
			return 1
		}

		return mathPower2(-overshoot * c.ratioFactor)
	}

	half := c.kneeWidthLog2 * 0.5

	var effective float64

	switch {
	case overshoot < -half:
		return 1
	case overshoot > half:
		effective = overshoot
	default:
		s := overshoot + half
		effective = s * s * 0.5 * c.invKneeWidthLog2
	}

	return mathPower2(-effective * c.ratioFactor)
}

package module

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-ngs/internal/window"
	"github.com/cwbudde/algo-ngs/ngs/param"
)

const (
	pitchFrameSize = 1024
	pitchHop       = 256
	maxPitchCents  = 1200
	pitchLockBins  = 4
	pitchNormFloor = 1e-12
)

// pitchChannel is the streaming STFT state of one channel. in holds the
// last pitchFrameSize input samples; acc accumulates overlap-added frames
// and ready holds the hop of finished output being played out.
type pitchChannel struct {
	in        []float64
	acc       []float64
	ready     []float64
	fill      int
	prevPhase []float64
	sumPhase  []float64
}

func newPitchChannel() *pitchChannel {
	bins := pitchFrameSize/2 + 1

	return &pitchChannel{
		in:        make([]float64, pitchFrameSize),
		acc:       make([]float64, pitchFrameSize),
		ready:     make([]float64, pitchHop),
		prevPhase: make([]float64, bins),
		sumPhase:  make([]float64, bins),
	}
}

func (c *pitchChannel) reset() {
	clear(c.in)
	clear(c.acc)
	clear(c.ready)
	clear(c.prevPhase)
	clear(c.sumPhase)
	c.fill = 0
}

// PitchShift is a streaming phase-vocoder pitch shifter. Pitch is moved by
// remapping spectral bins with identity phase locking around peaks, so
// analysis and synthesis share one hop and no resampling is needed.
type PitchShift struct {
	params paramCache[PitchShiftParams, *PitchShiftParams]
	ratio  float64

	plan   *algofft.Plan[complex128]
	coeffs []float64
	gain   float64
	omega  []float64

	channels []*pitchChannel

	frame       []float64
	spectrum    []complex128
	synthesis   []complex128
	timeFrame   []complex128
	magnitudes  []float64
	instFreqs   []float64
	shiftedMag  []float64
	shiftedFreq []float64
	peakBins    []int
}

// NewPitchShift builds a pitch shifter for cfg.Channels channels.
func NewPitchShift(cfg Config) (*PitchShift, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	plan, err := algofft.NewPlan64(pitchFrameSize)
	if err != nil {
		return nil, fmt.Errorf("pitch shift: failed to create FFT plan: %w", err)
	}

	coeffs := window.Generate(window.TypeHann, pitchFrameSize, window.WithPeriodic())
	bins := pitchFrameSize/2 + 1

	p := &PitchShift{
		params:      newParamCache[PitchShiftParams](PitchShiftParams{}),
		ratio:       1,
		plan:        plan,
		coeffs:      coeffs,
		gain:        window.OverlapAddGain(coeffs, pitchHop),
		omega:       make([]float64, bins),
		channels:    make([]*pitchChannel, cfg.Channels),
		frame:       make([]float64, pitchFrameSize),
		spectrum:    make([]complex128, pitchFrameSize),
		synthesis:   make([]complex128, pitchFrameSize),
		timeFrame:   make([]complex128, pitchFrameSize),
		magnitudes:  make([]float64, bins),
		instFreqs:   make([]float64, bins),
		shiftedMag:  make([]float64, bins),
		shiftedFreq: make([]float64, bins),
		peakBins:    make([]int, 0, bins),
	}

	for k := range bins {
		p.omega[k] = 2 * math.Pi * float64(k) / pitchFrameSize
	}

	for c := range p.channels {
		p.channels[c] = newPitchChannel()
	}

	return p, nil
}

func newPitchShiftModule(cfg Config) (Module, error) { return NewPitchShift(cfg) }

func (p *PitchShift) Kind() Kind { return KindPitchShift }
func (p *PitchShift) ModuleID() uint32 { return PitchShiftModuleID }
func (p *PitchShift) MaxParameterSize() int { return PitchShiftDescriptor.Size }
func (p *PitchShift) BufferParameterSize() int { return PitchShiftDescriptor.BufferSize }

// Latency returns the delay in samples between input and output.
func (p *PitchShift) Latency() int { return pitchFrameSize }

// Ratio returns the frequency ratio in effect.
func (p *PitchShift) Ratio() float64 { return p.ratio }

// Reset clears the analysis history and phase tracking.
func (p *PitchShift) Reset() {
	for _, c := range p.channels {
		c.reset()
	}
}

// Process shifts ctx.Block in place.
func (p *PitchShift) Process(ctx *Context, storage *param.Storage) (Status, error) {
	params, changed, err := p.params.load(storage)
	if err != nil {
		return 0, faultf(KindPitchShift, "%v", err)
	}

	if changed {
		cents := max(-maxPitchCents, min(maxPitchCents, float64(params.OffsetCents)))
		p.ratio = math.Exp2(cents / 1200)
	}

	if len(ctx.Block.Channels) > len(p.channels) {
		return 0, faultf(KindPitchShift, "block has %d channels, module built for %d",
			len(ctx.Block.Channels), len(p.channels))
	}

	tail := pitchFrameSize - pitchHop

	for ci, samples := range ctx.Block.Channels {
		ch := p.channels[ci]

		for i, x := range samples {
			ch.in[tail+ch.fill] = x
			samples[i] = ch.ready[ch.fill]

			ch.fill++
			if ch.fill < pitchHop {
				continue
			}

			ch.fill = 0

			err := p.processFrame(ch)
			if err != nil {
				return 0, faultf(KindPitchShift, "%v", err)
			}
		}
	}

	return 0, nil
}

func (p *PitchShift) processFrame(ch *pitchChannel) error {
	const half = pitchFrameSize / 2

	hop := float64(pitchHop)
	ratio := p.ratio

	err := window.ApplyCoefficients(p.frame, ch.in, p.coeffs)
	if err != nil {
		return err
	}

	for i, v := range p.frame {
		p.spectrum[i] = complex(v, 0)
	}

	err = p.plan.Forward(p.spectrum, p.spectrum)
	if err != nil {
		return fmt.Errorf("forward FFT failed: %w", err)
	}

	for k := 0; k <= half; k++ {
		re := real(p.spectrum[k])
		im := imag(p.spectrum[k])
		p.magnitudes[k] = math.Hypot(re, im)
		phase := math.Atan2(im, re)

		delta := wrapPhase(phase - ch.prevPhase[k] - p.omega[k]*hop)
		p.instFreqs[k] = p.omega[k] + delta/hop
		ch.prevPhase[k] = phase
	}

	// Synthesis bin k reads analysis bin k/ratio.
	for k := 0; k <= half; k++ {
		srcK := float64(k) / ratio
		if srcK > half {
			p.shiftedMag[k] = 0
			p.shiftedFreq[k] = p.omega[k]

			continue
		}

		lo := int(srcK)
		frac := srcK - float64(lo)
		hi := min(lo+1, half)
		p.shiftedMag[k] = p.magnitudes[lo]*(1-frac) + p.magnitudes[hi]*frac
		p.shiftedFreq[k] = (p.instFreqs[lo]*(1-frac) + p.instFreqs[hi]*frac) * ratio
	}

	p.peakBins = p.peakBins[:0]
	for k := 1; k < half; k++ {
		if p.shiftedMag[k] >= p.shiftedMag[k-1] && p.shiftedMag[k] > p.shiftedMag[k+1] {
			p.peakBins = append(p.peakBins, k)
		}
	}

	if len(p.peakBins) == 0 {
		for k := 0; k <= half; k++ {
			ch.sumPhase[k] += p.shiftedFreq[k] * hop
		}
	} else {
		for _, pk := range p.peakBins {
			ch.sumPhase[pk] += p.shiftedFreq[pk] * hop
		}

		peak := 0
		for k := 0; k <= half; k++ {
			for peak+1 < len(p.peakBins) && absInt(p.peakBins[peak+1]-k) < absInt(p.peakBins[peak]-k) {
				peak++
			}

			pk := p.peakBins[peak]
			if k == pk {
				continue
			}

			// Bins in the main lobe of a peak keep their phase offset to it.
			if absInt(k-pk) <= pitchLockBins && p.shiftedMag[k] > 0 {
				phaseK := interpolatePhase(ch.prevPhase, float64(k)/ratio, half)
				phasePk := interpolatePhase(ch.prevPhase, float64(pk)/ratio, half)
				ch.sumPhase[k] = ch.sumPhase[pk] + (phaseK - phasePk)
			} else {
				ch.sumPhase[k] += p.shiftedFreq[k] * hop
			}
		}
	}

	for k := 0; k <= half; k++ {
		ch.sumPhase[k] = wrapPhase(ch.sumPhase[k])
		p.synthesis[k] = complex(
			p.shiftedMag[k]*math.Cos(ch.sumPhase[k]),
			p.shiftedMag[k]*math.Sin(ch.sumPhase[k]),
		)
	}

	p.synthesis[0] = complex(real(p.synthesis[0]), 0)
	p.synthesis[half] = complex(real(p.synthesis[half]), 0)

	for k := 1; k < half; k++ {
		v := p.synthesis[k]
		p.synthesis[pitchFrameSize-k] = complex(real(v), -imag(v))
	}

	err = p.plan.Inverse(p.timeFrame, p.synthesis)
	if err != nil {
		return fmt.Errorf("inverse FFT failed: %w", err)
	}

	for i, v := range p.timeFrame {
		p.frame[i] = real(v)
	}

	err = window.ApplyCoefficientsInPlace(p.frame, p.coeffs)
	if err != nil {
		return err
	}

	for i, v := range p.frame {
		ch.acc[i] += v
	}

	norm := 1.0
	if p.gain > pitchNormFloor {
		norm = 1 / p.gain
	}

	for i := range pitchHop {
		ch.ready[i] = ch.acc[i] * norm
	}

	copy(ch.acc, ch.acc[pitchHop:])
	clear(ch.acc[pitchFrameSize-pitchHop:])
	copy(ch.in, ch.in[pitchHop:])

	return nil
}

// interpolatePhase reads phases at fractional bin srcK, interpolating on the
// unit circle.
func interpolatePhase(phases []float64, srcK float64, half int) float64 {
	if srcK <= 0 {
		return phases[0]
	}

	if srcK >= float64(half) {
		return phases[half]
	}

	lo := int(srcK)
	frac := srcK - float64(lo)
	hi := min(lo+1, half)

	re := math.Cos(phases[lo])*(1-frac) + math.Cos(phases[hi])*frac
	im := math.Sin(phases[lo])*(1-frac) + math.Sin(phases[hi])*frac

	return math.Atan2(im, re)
}

func wrapPhase(x float64) float64 {
	x = math.Mod(x+math.Pi, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}

	return x - math.Pi
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}

	return x
}

package module

import (
	"math"

	"github.com/cwbudde/algo-ngs/internal/delayline"
	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/ngs/param"
)

const (
	fdnSize                = 8
	fdnReferenceSampleRate = 44100.0
	maxPreDelaySeconds     = 1.0
	maxModDepthSeconds     = 0.01
)

// Mutually prime line lengths at the reference rate.
var fdnDelaySamples = [fdnSize]float64{1537, 1753, 1999, 2251, 2473, 2689, 2851, 3067}

var fdnHadamard = [fdnSize][fdnSize]float64{
	{1, 1, 1, 1, 1, 1, 1, 1},
	{1, -1, 1, -1, 1, -1, 1, -1},
	{1, 1, -1, -1, 1, 1, -1, -1},
	{1, -1, -1, 1, 1, -1, -1, 1},
	{1, 1, 1, 1, -1, -1, -1, -1},
	{1, -1, 1, -1, -1, 1, -1, 1},
	{1, 1, -1, -1, -1, -1, 1, 1},
	{1, -1, -1, 1, -1, 1, 1, -1},
}

type fdn struct {
	lines    [fdnSize]*delayline.Line
	filter   [fdnSize]float64
	preDelay *delayline.Line
	lfoPhase float64
}

func (f *fdn) reset() {
	for i := range f.lines {
		f.lines[i].Reset()
		f.filter[i] = 0
	}

	f.preDelay.Reset()
	f.lfoPhase = 0
}

// Reverb is an 8-line feedback delay network with a Hadamard mixing
// matrix, one-pole damping in the loop and a slowly modulated read tap.
// Each channel runs its own network.
type Reverb struct {
	params     paramCache[ReverbParams, *ReverbParams]
	sampleRate float64
	nets       []*fdn

	baseDelay [fdnSize]float64
	feedback  [fdnSize]float64
	scale     float64

	wet, dry float64
	damp     float64
	preDelay float64
	modDepth float64
	lfoStep  float64

	tail tailGate
}

// NewReverb builds a reverb whose lines can hold the longest modulated
// delay and pre-delay.
func NewReverb(cfg Config) (*Reverb, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	r := &Reverb{
		params:     newParamCache[ReverbParams](DefaultReverbParams()),
		sampleRate: cfg.SampleRate,
		nets:       make([]*fdn, cfg.Channels),
		scale:      1 / math.Sqrt(fdnSize),
	}

	lineScale := cfg.SampleRate / fdnReferenceSampleRate
	modMax := maxModDepthSeconds * cfg.SampleRate

	for i := range r.baseDelay {
		r.baseDelay[i] = fdnDelaySamples[i] * lineScale
	}

	for c := range r.nets {
		n := &fdn{}

		for i := range n.lines {
			n.lines[i], err = delayline.New(int(math.Ceil(r.baseDelay[i]+modMax)) + 4)
			if err != nil {
				return nil, err
			}
		}

		n.preDelay, err = delayline.New(int(math.Ceil(maxPreDelaySeconds*cfg.SampleRate)) + 4)
		if err != nil {
			return nil, err
		}

		r.nets[c] = n
	}

	r.configure(DefaultReverbParams())

	return r, nil
}

func newReverbModule(cfg Config) (Module, error) { return NewReverb(cfg) }

func (r *Reverb) Kind() Kind { return KindReverb }
func (r *Reverb) ModuleID() uint32 { return ReverbModuleID }
func (r *Reverb) MaxParameterSize() int { return ReverbDescriptor.Size }
func (r *Reverb) BufferParameterSize() int { return ReverbDescriptor.BufferSize }

// Reset clears every network.
func (r *Reverb) Reset() {
	for _, n := range r.nets {
		n.reset()
	}

	r.tail.reset()
}

func (r *Reverb) configure(p ReverbParams) {
	rt60 := float64(p.RT60)
	for i := range r.feedback {
		r.feedback[i] = math.Pow(10, -3*(r.baseDelay[i]/r.sampleRate)/rt60)
	}

	r.wet = float64(p.Wet)
	r.dry = float64(p.Dry)
	r.damp = float64(p.Damp)
	r.preDelay = float64(p.PreDelay) * r.sampleRate
	r.modDepth = float64(p.ModDepth) * r.sampleRate
	r.lfoStep = 2 * math.Pi * float64(p.ModRateHz) / r.sampleRate

	longest := r.baseDelay[fdnSize-1] + r.modDepth + r.preDelay
	r.tail.horizon = int(math.Ceil(longest)) + 1
}

// Process runs the networks over ctx.Block in place.
func (r *Reverb) Process(ctx *Context, storage *param.Storage) (Status, error) {
	params, changed, err := r.params.load(storage)
	if err != nil {
		return 0, faultf(KindReverb, "%v", err)
	}

	if changed {
		r.configure(params)
	}

	if len(ctx.Block.Channels) > len(r.nets) {
		return 0, faultf(KindReverb, "block has %d channels, module built for %d",
			len(ctx.Block.Channels), len(r.nets))
	}

	for c, samples := range ctx.Block.Channels {
		n := r.nets[c]
		for i, x := range samples {
			samples[i] = r.processSample(n, x)
		}
	}

	if ctx.Releasing && r.tail.observe(ctx.Block) {
		return StatusDone, nil
	}

	return 0, nil
}

func (r *Reverb) processSample(n *fdn, input float64) float64 {
	in := input
	if r.preDelay > 0 {
		n.preDelay.Write(input)
		in = n.preDelay.ReadFractional(r.preDelay)
	}

	var taps [fdnSize]float64

	for i := range fdnSize {
		offset := 2 * math.Pi * float64(i) / fdnSize
		mod := 0.5 * (1 + math.Sin(n.lfoPhase+offset))
		taps[i] = n.lines[i].ReadFractional(r.baseDelay[i] + r.modDepth*mod)
	}

	n.lfoPhase += r.lfoStep
	if n.lfoPhase >= 2*math.Pi {
		n.lfoPhase -= 2 * math.Pi
	}

	out := 0.0

	for i := range fdnSize {
		mixed := 0.0
		for j := range fdnSize {
			mixed += fdnHadamard[i][j] * taps[j]
		}

		mixed *= r.scale
		filtered := mixed*(1-r.damp) + n.filter[i]*r.damp
		n.filter[i] = dspmath.FlushDenormals(filtered)
		n.lines[i].Write(dspmath.FlushDenormals(in*r.scale + filtered*r.feedback[i]))

		out += taps[i]
	}

	return input*r.dry + out*r.scale*r.wet
}

package module

import (
	"math"

	"github.com/cwbudde/algo-ngs/internal/delayline"
	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/ngs/param"
)

const (
	maxDelayMs = 2000
	// tailThreshold is -120 dBFS.
	tailThreshold = 1e-6
)

// tailGate decides when an effect with memory has nothing left to emit.
type tailGate struct {
	quiet   int
	horizon int
}

// observe accounts one processed block and reports whether the output has
// stayed below the tail threshold for at least one block and horizon frames.
func (g *tailGate) observe(b *Block) bool {
	frames := b.Frames()
	if b.Peak() >= tailThreshold {
		g.quiet = 0
		return false
	}

	g.quiet += frames

	return g.quiet >= max(g.horizon, frames)
}

func (g *tailGate) reset() { g.quiet = 0 }

// Delay is a feedback echo with one delay line per channel.
type Delay struct {
	params     paramCache[DelayParams, *DelayParams]
	sampleRate float64
	lines      []*delayline.Line

	delay    float64
	feedback float64
	wet      float64
	dry      float64

	tail tailGate
}

// NewDelay builds a delay with lines long enough for the longest time.
func NewDelay(cfg Config) (*Delay, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	size := int(math.Ceil(maxDelayMs*0.001*cfg.SampleRate)) + 4

	d := &Delay{
		params:     newParamCache[DelayParams](DefaultDelayParams()),
		sampleRate: cfg.SampleRate,
		lines:      make([]*delayline.Line, cfg.Channels),
	}

	for c := range d.lines {
		d.lines[c], err = delayline.New(size)
		if err != nil {
			return nil, err
		}
	}

	d.configure(DefaultDelayParams())

	return d, nil
}

func newDelayModule(cfg Config) (Module, error) { return NewDelay(cfg) }

func (d *Delay) Kind() Kind { return KindDelay }
func (d *Delay) ModuleID() uint32 { return DelayModuleID }
func (d *Delay) MaxParameterSize() int { return DelayDescriptor.Size }
func (d *Delay) BufferParameterSize() int { return DelayDescriptor.BufferSize }

// Reset clears every line.
func (d *Delay) Reset() {
	for _, l := range d.lines {
		l.Reset()
	}

	d.tail.reset()
}

func (d *Delay) configure(p DelayParams) {
	d.delay = max(1, float64(p.DelayMs)*0.001*d.sampleRate)
	d.feedback = float64(p.Feedback)
	d.wet = float64(p.Wet)
	d.dry = float64(p.Dry)

	// A quiet run longer than the delay means every pending echo is quiet too.
	d.tail.horizon = int(math.Ceil(d.delay)) + 1
}

// Process runs the echo over ctx.Block in place.
func (d *Delay) Process(ctx *Context, storage *param.Storage) (Status, error) {
	params, changed, err := d.params.load(storage)
	if err != nil {
		return 0, faultf(KindDelay, "%v", err)
	}

	if changed {
		d.configure(params)
	}

	if len(ctx.Block.Channels) > len(d.lines) {
		return 0, faultf(KindDelay, "block has %d channels, module built for %d",
			len(ctx.Block.Channels), len(d.lines))
	}

	for c, samples := range ctx.Block.Channels {
		line := d.lines[c]

		for i, x := range samples {
			delayed := line.ReadFractional(d.delay)
			line.Write(dspmath.FlushDenormals(x + delayed*d.feedback))
			samples[i] = x*d.dry + delayed*d.wet
		}
	}

	if ctx.Releasing && d.tail.observe(ctx.Block) {
		return StatusDone, nil
	}

	return 0, nil
}

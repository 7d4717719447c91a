package module

import (
	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-ngs/ngs/param"
)

// maxEnvelopeMs bounds each segment so release always reaches zero.
const maxEnvelopeMs = 60000

type envelopeStage uint8

const (
	stageIdle envelopeStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
	stageDone
)

// Envelope is a linear-segment ADSR amplitude envelope shared by all
// channels of its voice.
type Envelope struct {
	params     paramCache[EnvelopeParams, *EnvelopeParams]
	current    EnvelopeParams
	sampleRate float64

	stage envelopeStage
	level float64
	// releaseStep is fixed when the release segment starts so it always
	// lasts release_ms regardless of the level it starts from.
	releaseStep float64

	gain []float64
}

// NewEnvelope builds an idle envelope.
func NewEnvelope(cfg Config) (*Envelope, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	return &Envelope{
		params:     newParamCache[EnvelopeParams](DefaultEnvelopeParams()),
		current:    DefaultEnvelopeParams(),
		sampleRate: cfg.SampleRate,
		gain:       make([]float64, cfg.MaxFrames),
	}, nil
}

func newEnvelopeModule(cfg Config) (Module, error) { return NewEnvelope(cfg) }

func (e *Envelope) Kind() Kind { return KindEnvelope }
func (e *Envelope) ModuleID() uint32 { return EnvelopeModuleID }
func (e *Envelope) MaxParameterSize() int { return EnvelopeDescriptor.Size }
func (e *Envelope) BufferParameterSize() int { return EnvelopeDescriptor.BufferSize }

// Level returns the current envelope gain.
func (e *Envelope) Level() float64 { return e.level }

// Reset returns the envelope to idle at zero gain.
func (e *Envelope) Reset() {
	e.stage = stageIdle
	e.level = 0
	e.releaseStep = 0
}

func (e *Envelope) samples(ms float32) float64 {
	return float64(ms) * 0.001 * e.sampleRate
}

// Process multiplies every channel of ctx.Block by the envelope curve.
func (e *Envelope) Process(ctx *Context, storage *param.Storage) (Status, error) {
	params, _, err := e.params.load(storage)
	if err != nil {
		return 0, faultf(KindEnvelope, "%v", err)
	}

	e.current = params

	if ctx.Triggered || e.stage == stageIdle {
		e.stage = stageAttack
		e.level = 0
	}

	if ctx.Releasing && e.stage < stageRelease {
		e.startRelease()
	}

	frames := ctx.Block.Frames()
	if frames > len(e.gain) {
		e.gain = make([]float64, frames)
	}

	gain := e.gain[:frames]
	for i := range gain {
		gain[i] = e.next()
	}

	for _, ch := range ctx.Block.Channels {
		vecmath.MulBlockInPlace(ch, gain)
	}

	if e.stage == stageDone {
		return StatusDone, nil
	}

	return 0, nil
}

func (e *Envelope) startRelease() {
	e.stage = stageRelease

	n := e.samples(e.current.ReleaseMs)
	if n < 1 {
		e.level = 0
		e.stage = stageDone

		return
	}

	e.releaseStep = e.level / n
}

func (e *Envelope) next() float64 {
	switch e.stage {
	case stageAttack:
		n := e.samples(e.current.AttackMs)
		if n < 1 {
			e.level = 1
		} else {
			e.level += 1 / n
		}

		if e.level >= 1 {
			e.level = 1
			e.stage = stageDecay
		}
	case stageDecay:
		sustain := float64(e.current.Sustain)

		n := e.samples(e.current.DecayMs)
		if n < 1 {
			e.level = sustain
		} else {
			e.level -= (1 - sustain) / n
		}

		if e.level <= sustain {
			e.level = sustain
			e.stage = stageSustain
		}
	case stageSustain:
		e.level = float64(e.current.Sustain)
	case stageRelease:
		e.level -= e.releaseStep
		if e.level <= 0 {
			e.level = 0
			e.stage = stageDone
		}
	case stageIdle, stageDone:
		e.level = 0
	}

	return e.level
}

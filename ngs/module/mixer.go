package module

import (
	"math"

	"github.com/cwbudde/algo-ngs/ngs/param"
)

// Mixer applies per-side gain and constant-power panning, optionally
// normalizing by the number of patches feeding the voice.
type Mixer struct {
	params paramCache[MixerParams, *MixerParams]
	left   float64
	right  float64
	norm   bool
}

// NewMixer builds a unity-gain centred mixer.
func NewMixer(cfg Config) (*Mixer, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	m := &Mixer{params: newParamCache[MixerParams](DefaultMixerParams())}
	m.configure(DefaultMixerParams())

	return m, nil
}

func newMixerModule(cfg Config) (Module, error) { return NewMixer(cfg) }

func (m *Mixer) Kind() Kind { return KindMixer }
func (m *Mixer) ModuleID() uint32 { return MixerModuleID }
func (m *Mixer) MaxParameterSize() int { return MixerDescriptor.Size }
func (m *Mixer) BufferParameterSize() int { return MixerDescriptor.BufferSize }
func (m *Mixer) Reset() {}

// PanGains returns the left and right pan law gains for pan in [-1, 1].
// The law is scaled so the centre position is unity on both sides.
func PanGains(pan float64) (left, right float64) {
	angle := (pan + 1) * math.Pi / 4
	return math.Cos(angle) * math.Sqrt2, math.Sin(angle) * math.Sqrt2
}

func (m *Mixer) configure(p MixerParams) {
	l, r := PanGains(float64(p.Pan))
	m.left = float64(p.GainL) * l
	m.right = float64(p.GainR) * r
	m.norm = p.Normalize != 0
}

// Process scales ctx.Block in place. Even channels take the left gain,
// odd channels the right; a mono block uses gain_l alone.
func (m *Mixer) Process(ctx *Context, storage *param.Storage) (Status, error) {
	params, changed, err := m.params.load(storage)
	if err != nil {
		return 0, faultf(KindMixer, "%v", err)
	}

	if changed {
		m.configure(params)
	}

	scale := 1.0
	if m.norm && ctx.Topology != nil {
		if n := ctx.Topology.InboundPatches(); n > 1 {
			scale = 1 / float64(n)
		}
	}

	if len(ctx.Block.Channels) == 1 {
		applyGain(ctx.Block.Channels[0], float64(params.GainL)*scale)
		return 0, nil
	}

	for c, ch := range ctx.Block.Channels {
		g := m.left
		if c%2 == 1 {
			g = m.right
		}

		applyGain(ch, g*scale)
	}

	return 0, nil
}

func applyGain(buf []float64, g float64) {
	if g == 1 {
		return
	}

	for i := range buf {
		buf[i] *= g
	}
}

package ngs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cwbudde/algo-ngs/ngs/module"
	"github.com/cwbudde/algo-ngs/ngs/param"
	"github.com/cwbudde/algo-ngs/ngs/source"
)

// VoiceState is the lifecycle state of a voice.
type VoiceState uint8

const (
	VoiceUnloaded VoiceState = iota
	VoicePlaying
	VoicePaused
	VoiceReleasing
	VoiceFinished
)

func (s VoiceState) String() string {
	switch s {
	case VoiceUnloaded:
		return "unloaded"
	case VoicePlaying:
		return "playing"
	case VoicePaused:
		return "paused"
	case VoiceReleasing:
		return "releasing"
	case VoiceFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s VoiceState) active() bool {
	return s == VoicePlaying || s == VoicePaused || s == VoiceReleasing
}

type slot struct {
	kind   module.Kind
	mod    module.Module
	params *param.Storage
}

// voice runs one fixed module chain.
//
// mu guards the runtime state and every slot's module and storage. The
// fields marked topology-guarded belong to the System's topology lock
// instead: the render path writes them while rendering other voices.
// claimed, pendingFree and retired are written with both locks held and
// may be read under either.
type voice struct {
	mu sync.Mutex

	rack  *rack
	index int
	slots []slot

	state     VoiceState
	forced    bool
	triggered bool
	src       source.Source

	work *module.Block
	// taps[0] is the chain output; taps[k] is the output of slot k-1.
	taps []*module.Block
	view *voiceTopology

	claimed     bool
	pendingFree bool
	retired     bool

	// Topology-guarded.
	in       *module.Block
	inbound  int
	indegree int
	outgoing []*patch
}

func newVoice(sys *System, r *rack, index int) (*voice, error) {
	v := &voice{
		rack:  r,
		index: index,
		slots: make([]slot, len(r.template)),
		work:  module.NewBlock(sys.cfg.Channels, sys.cfg.Quantum),
		in:    module.NewBlock(sys.cfg.Channels, sys.cfg.Quantum),
		taps:  make([]*module.Block, len(r.template)+1),
	}

	v.view = &voiceTopology{sys: sys, v: v}

	for k, kind := range r.template {
		entry, ok := sys.reg.Lookup(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %s", module.ErrUnknownKind, kind)
		}

		m, err := sys.reg.New(kind, sys.modCfg)
		if err != nil {
			return nil, err
		}

		v.slots[k] = slot{kind: kind, mod: m, params: param.NewStorage(entry.Descriptor)}
	}

	for k := range v.taps {
		v.taps[k] = module.NewBlock(sys.cfg.Channels, sys.cfg.Quantum)
	}

	return v, nil
}

// claim resets the voice for a new owner. Callers hold the topology lock
// and v.mu.
func (v *voice) claim() {
	v.claimed = true
	v.pendingFree = false
	v.state = VoiceUnloaded
	v.forced = false
	v.triggered = false
	v.src = nil

	for _, s := range v.slots {
		s.mod.Reset()
		s.params.Reset()
	}

	for _, b := range v.taps {
		b.Zero()
	}
}

func (v *voice) resetModules() {
	for _, s := range v.slots {
		s.mod.Reset()
	}
}

func (v *voice) transitionError(op string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidState, op, v.state)
}

func (v *voice) keyOn() error {
	switch v.state {
	case VoiceUnloaded:
		v.resetModules()
		v.triggered = true
		v.state = VoicePlaying
	case VoicePaused:
		v.state = VoicePlaying
	default:
		return v.transitionError("key on")
	}

	return nil
}

func (v *voice) keyOff() error {
	if v.state != VoicePlaying && v.state != VoicePaused {
		return v.transitionError("key off")
	}

	v.state = VoiceReleasing

	return nil
}

func (v *voice) pause() error {
	if v.state != VoicePlaying {
		return v.transitionError("pause")
	}

	v.state = VoicePaused

	return nil
}

func (v *voice) resume() error {
	if v.state != VoicePaused {
		return v.transitionError("resume")
	}

	v.state = VoicePlaying

	return nil
}

// forceRelease starts a one-quantum fade to Finished. It reports whether
// the voice still had anything to finish.
func (v *voice) forceRelease() bool {
	if !v.state.active() {
		return false
	}

	v.forced = true
	v.state = VoiceReleasing

	return true
}

func (v *voice) setParameter(index int, blob []byte) error {
	s, err := v.slot(index)
	if err != nil {
		return err
	}

	err = s.params.Set(blob)
	if err != nil {
		return fmt.Errorf("slot %d (%s): %w", index, s.kind, err)
	}

	return nil
}

func (v *voice) parameter(index int) ([]byte, error) {
	s, err := v.slot(index)
	if err != nil {
		return nil, err
	}

	return s.params.Bytes(), nil
}

func (v *voice) slot(index int) (*slot, error) {
	if index < 0 || index >= len(v.slots) {
		return nil, fmt.Errorf("%w: slot %d of %d", ErrInvalidHandle, index, len(v.slots))
	}

	return &v.slots[index], nil
}

// render runs the chain over the accumulated input. It reports whether the
// taps hold audio for this tick. Callers hold the topology lock and v.mu.
func (v *voice) render(sys *System) bool {
	if v.state != VoicePlaying && v.state != VoiceReleasing {
		return false
	}

	v.work.CopyFrom(v.in)

	ctx := module.Context{
		SampleRate: sys.cfg.SampleRate,
		Block:      v.work,
		Triggered:  v.triggered,
		Releasing:  v.state == VoiceReleasing,
		Source:     v.src,
		Topology:   v.view,
	}
	v.triggered = false

	done := true
	faulted := false
	sourceEnd := false

	for k := range v.slots {
		s := &v.slots[k]

		if !faulted {
			status, err := runModule(s.mod, &ctx, s.params)
			if err != nil {
				faulted = true
				v.work.Zero()

				sys.log.Warn("module fault",
					"rack", v.rack.name,
					"voice", v.index,
					"slot", k,
					"kind", s.kind.String(),
					"err", err)
			} else {
				if s.kind.HasRelease() && !status.Has(module.StatusDone) {
					done = false
				}

				if status.Has(module.StatusSourceEnd) {
					sourceEnd = true
				}
			}
		}

		v.taps[k+1].CopyFrom(v.work)
	}

	v.taps[0].CopyFrom(v.work)

	switch {
	case v.forced:
		for _, b := range v.taps {
			fadeOut(b)
		}

		v.state = VoiceFinished
	case faulted:
	case v.state == VoiceReleasing && done:
		v.state = VoiceFinished
	case v.state == VoicePlaying && sourceEnd:
		v.state = VoiceReleasing
	}

	return true
}

// runModule calls Process and folds panics and foreign errors into faults.
func runModule(m module.Module, ctx *module.Context, p *param.Storage) (status module.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = 0
			err = fmt.Errorf("%w: %s panicked: %v", module.ErrFault, m.Kind(), r)
		}
	}()

	status, err = m.Process(ctx, p)
	if err != nil && !errors.Is(err, module.ErrFault) {
		err = fmt.Errorf("%w: %s: %w", module.ErrFault, m.Kind(), err)
	}

	return status, err
}

// fadeOut applies a linear ramp that reaches zero on the last frame.
func fadeOut(b *module.Block) {
	frames := b.Frames()
	if frames == 0 {
		return
	}

	step := 1 / float64(frames)

	for _, ch := range b.Channels {
		for i := range ch {
			ch[i] *= 1 - float64(i+1)*step
		}
	}
}

// voiceTopology answers module graph queries for one voice.
type voiceTopology struct {
	sys *System
	v   *voice
}

func (t *voiceTopology) InboundPatches() int {
	t.sys.topo.Lock(t.sys.renderOwner)
	defer t.sys.topo.Unlock(t.sys.renderOwner)

	return t.v.inbound
}

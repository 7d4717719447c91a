package ngs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/algo-ngs/internal/lockutil"
	"github.com/cwbudde/algo-ngs/ngs/module"
	"github.com/cwbudde/algo-ngs/ngs/source"
)

// System owns every rack, voice and patch of one engine instance. It is
// bound to the lifetime of one audio device: Open creates it, Close tears
// it down and invalidates every handle.
//
// All methods are safe for concurrent use. Control calls lock the topology
// first and then at most one voice; parameter and state calls resolve their
// handle under the topology lock and release it before taking the voice.
type System struct {
	cfg    Config
	log    *slog.Logger
	reg    *module.Registry
	modCfg module.Config

	topo        lockutil.RecursiveMutex
	renderOwner lockutil.Owner

	// Topology-guarded.
	closed     bool
	racks      []*rack
	gens       []uint32
	voiceCount int
	patches    map[PatchHandle]*patch
	nextPatch  uint64
	order      []*voice
	dirty      bool
	master     *module.Block
	scratch    []float64
	ticks      uint64

	// renderMu serializes Tick and Pull and guards out.
	renderMu sync.Mutex
	out      []float32
	outPos   int

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runDone   chan struct{}
}

// Open validates the configuration and creates an empty engine.
func Open(opts ...Option) (*System, error) {
	cfg := ApplyOptions(opts...)

	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Registry == nil {
		cfg.Registry = module.DefaultRegistry()
	}

	s := &System{
		cfg: cfg,
		log: cfg.Logger,
		reg: cfg.Registry,
		modCfg: module.Config{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			MaxFrames:  cfg.Quantum,
		},
		renderOwner: lockutil.NewOwner(),
		patches:     make(map[PatchHandle]*patch),
		master:      module.NewBlock(cfg.Channels, cfg.Quantum),
		scratch:     make([]float64, cfg.Quantum),
		out:         make([]float32, cfg.Quantum*cfg.Channels),
	}

	// Nothing is buffered yet.
	s.outPos = len(s.out)

	s.log.Debug("ngs opened", "sample_rate", cfg.SampleRate, "channels", cfg.Channels,
		"quantum", cfg.Quantum)

	return s, nil
}

// Config returns the validated engine configuration.
func (s *System) Config() Config { return s.cfg }

// Close stops Run, releases every rack and makes later calls fail with
// ErrClosed. Pull keeps returning silence.
func (s *System) Close() error {
	s.stopRun()

	// A Run that slipped in before closed was set.
	defer s.stopRun()

	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	if s.closed {
		return ErrClosed
	}

	for _, r := range s.racks {
		if r != nil {
			s.releaseRackLocked(r)
		}
	}

	clear(s.patches)
	s.order = nil
	s.closed = true

	s.log.Debug("ngs closed", "ticks", s.ticks)

	return nil
}

func (s *System) isClosed() bool {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	return s.closed
}

// Ticks returns the number of quanta rendered so far.
func (s *System) Ticks() uint64 {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	return s.ticks
}

func (s *System) lookupRack(h RackHandle) (*rack, error) {
	if s.closed {
		return nil, ErrClosed
	}

	if h.gen == 0 || int(h.slot) >= len(s.racks) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}

	r := s.racks[h.slot]
	if r == nil || s.gens[h.slot] != h.gen {
		return nil, fmt.Errorf("%w: %s is stale", ErrInvalidHandle, h)
	}

	return r, nil
}

// anyVoice resolves a voice whether or not it is claimed.
func (s *System) anyVoice(h RackHandle, index int) (*voice, error) {
	r, err := s.lookupRack(h)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(r.voices) {
		return nil, fmt.Errorf("%w: voice %d of %d in %s", ErrInvalidHandle, index, len(r.voices), r.name)
	}

	return r.voices[index], nil
}

// claimedVoice resolves a voice that is claimed and not waiting to be freed.
func (s *System) claimedVoice(h RackHandle, index int) (*voice, error) {
	v, err := s.anyVoice(h, index)
	if err != nil {
		return nil, err
	}

	if !v.claimed || v.pendingFree {
		return nil, fmt.Errorf("%w: voice %d in %s", ErrVoiceNotAllocated, index, v.rack.name)
	}

	return v, nil
}

// withVoice runs fn under the lock of a claimed voice. The handle is
// resolved under the topology lock, which is dropped before waiting for the
// voice so a busy voice never stalls calls on other voices.
func (s *System) withVoice(h RackHandle, index int, fn func(v *voice) error) error {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	v, err := s.anyVoice(h, index)
	s.topo.Unlock(o)

	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.retired {
		return fmt.Errorf("%w: %s was released", ErrInvalidHandle, h)
	}

	if !v.claimed || v.pendingFree {
		return fmt.Errorf("%w: voice %d in %s", ErrVoiceNotAllocated, index, v.rack.name)
	}

	return fn(v)
}

// KeyOn starts an Unloaded voice or resumes a Paused one.
func (s *System) KeyOn(h RackHandle, index int) error {
	return s.withVoice(h, index, func(v *voice) error { return v.keyOn() })
}

// KeyOff moves a Playing or Paused voice into its release phase.
func (s *System) KeyOff(h RackHandle, index int) error {
	return s.withVoice(h, index, func(v *voice) error { return v.keyOff() })
}

// Pause holds a Playing voice silent with its module state intact.
func (s *System) Pause(h RackHandle, index int) error {
	return s.withVoice(h, index, func(v *voice) error { return v.pause() })
}

// Resume restarts a Paused voice.
func (s *System) Resume(h RackHandle, index int) error {
	return s.withVoice(h, index, func(v *voice) error { return v.resume() })
}

// SetParameter validates blob against the slot's descriptor and stores a
// copy. On error the stored parameters are unchanged.
func (s *System) SetParameter(h RackHandle, index, slot int, blob []byte) error {
	return s.withVoice(h, index, func(v *voice) error { return v.setParameter(slot, blob) })
}

// Parameter returns a copy of the slot's stored blob. It is empty until the
// first successful SetParameter.
func (s *System) Parameter(h RackHandle, index, slot int) ([]byte, error) {
	var out []byte

	err := s.withVoice(h, index, func(v *voice) error {
		var err error

		out, err = v.parameter(slot)

		return err
	})

	return out, err
}

// AttachSource routes src into the voice's player modules, which restart
// from their first frame. A nil src detaches.
func (s *System) AttachSource(h RackHandle, index int, src source.Source) error {
	if src != nil {
		err := src.Format().Validate()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}

	return s.withVoice(h, index, func(v *voice) error {
		v.src = src

		for _, sl := range v.slots {
			if sl.kind == module.KindPlayer {
				sl.mod.Reset()
			}
		}

		return nil
	})
}

// VoiceState returns the current state of any voice of the rack, claimed
// or not.
func (s *System) VoiceState(h RackHandle, index int) (VoiceState, error) {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	v, err := s.anyVoice(h, index)
	s.topo.Unlock(o)

	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.retired {
		return 0, fmt.Errorf("%w: %s was released", ErrInvalidHandle, h)
	}

	return v.state, nil
}

// FreeVoices returns the number of unclaimed voices in the rack.
func (s *System) FreeVoices(h RackHandle) (int, error) {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	r, err := s.lookupRack(h)
	if err != nil {
		return 0, err
	}

	return len(r.free), nil
}

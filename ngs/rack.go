package ngs

import (
	"fmt"

	"github.com/cwbudde/algo-ngs/internal/lockutil"
	"github.com/cwbudde/algo-ngs/ngs/module"
)

// RackHandle references a live rack. The zero value is never valid; a
// handle goes stale once its rack is released.
type RackHandle struct {
	slot uint32
	gen  uint32
}

// ID packs the handle into one integer for guest-facing tables.
func (h RackHandle) ID() uint64 { return uint64(h.gen)<<32 | uint64(h.slot) }

// RackHandleFromID reverses ID.
func RackHandleFromID(id uint64) RackHandle {
	return RackHandle{slot: uint32(id), gen: uint32(id >> 32)}
}

func (h RackHandle) String() string { return fmt.Sprintf("rack#%d.%d", h.slot, h.gen) }

// RackDesc describes a rack to create. Every voice runs the same chain.
type RackDesc struct {
	Name    string
	Modules []module.Kind
	Voices  int
}

type rack struct {
	handle   RackHandle
	name     string
	template []module.Kind
	voices   []*voice
	// free is a stack of unclaimed voice indexes. Topology-guarded.
	free []int
}

func (s *System) validateRackDesc(desc RackDesc) error {
	if desc.Voices <= 0 {
		return fmt.Errorf("%w: rack needs at least one voice: %d", ErrInvalidArgument, desc.Voices)
	}

	if len(desc.Modules) == 0 || len(desc.Modules) > s.cfg.MaxModulesPerVoice {
		return fmt.Errorf("%w: chain length must be in [1, %d]: %d",
			ErrInvalidArgument, s.cfg.MaxModulesPerVoice, len(desc.Modules))
	}

	for _, k := range desc.Modules {
		if _, ok := s.reg.Lookup(k); !ok {
			return fmt.Errorf("%w: %w: %s", ErrInvalidArgument, module.ErrUnknownKind, k)
		}
	}

	return nil
}

// CreateRack builds a rack of desc.Voices voices. Module instances are
// allocated before the topology lock is taken so rendering is not held up.
func (s *System) CreateRack(desc RackDesc) (RackHandle, error) {
	err := s.validateRackDesc(desc)
	if err != nil {
		return RackHandle{}, err
	}

	r := &rack{
		name:     desc.Name,
		template: append([]module.Kind(nil), desc.Modules...),
		voices:   make([]*voice, desc.Voices),
		free:     make([]int, 0, desc.Voices),
	}

	for i := range r.voices {
		r.voices[i], err = newVoice(s, r, i)
		if err != nil {
			return RackHandle{}, err
		}
	}

	// Lowest index is claimed first.
	for i := desc.Voices - 1; i >= 0; i-- {
		r.free = append(r.free, i)
	}

	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	if s.closed {
		return RackHandle{}, ErrClosed
	}

	if s.voiceCount+desc.Voices > s.cfg.MaxVoices {
		return RackHandle{}, fmt.Errorf("%w: %d voices in use, %d requested, limit %d",
			ErrResourceExhausted, s.voiceCount, desc.Voices, s.cfg.MaxVoices)
	}

	slot := -1

	for i, existing := range s.racks {
		if existing == nil {
			slot = i
			break
		}
	}

	if slot < 0 {
		if len(s.racks) >= s.cfg.MaxRacks {
			return RackHandle{}, fmt.Errorf("%w: %d racks live", ErrResourceExhausted, len(s.racks))
		}

		s.racks = append(s.racks, nil)
		s.gens = append(s.gens, 0)
		slot = len(s.racks) - 1
	}

	s.gens[slot]++
	if s.gens[slot] == 0 {
		s.gens[slot] = 1
	}

	r.handle = RackHandle{slot: uint32(slot), gen: s.gens[slot]}
	if r.name == "" {
		r.name = fmt.Sprintf("rack%d", slot)
	}

	s.racks[slot] = r
	s.voiceCount += desc.Voices
	s.dirty = true

	s.log.Debug("rack created", "rack", r.name, "handle", r.handle.String(),
		"voices", desc.Voices, "modules", len(desc.Modules))

	return r.handle, nil
}

// ReleaseRack finishes every voice of the rack, removes its patches and
// invalidates the handle. It waits for an in-flight tick to complete.
func (s *System) ReleaseRack(h RackHandle) error {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	r, err := s.lookupRack(h)
	if err != nil {
		return err
	}

	s.releaseRackLocked(r)

	return nil
}

func (s *System) releaseRackLocked(r *rack) {
	for _, v := range r.voices {
		v.mu.Lock()
		v.state = VoiceFinished
		v.forced = false
		v.retired = true
		v.claimed = false
		v.pendingFree = false
		v.src = nil
		v.mu.Unlock()
	}

	for h, p := range s.patches {
		if p.src.rack == r || (p.dst != nil && p.dst.rack == r) {
			s.removePatch(h, p)
		}
	}

	r.free = r.free[:0]
	s.racks[r.handle.slot] = nil
	s.voiceCount -= len(r.voices)
	s.dirty = true

	s.log.Debug("rack released", "rack", r.name, "handle", r.handle.String())
}

// AllocVoice claims a free voice of the rack and returns its index. The
// voice starts Unloaded with cleared parameters and no source.
func (s *System) AllocVoice(h RackHandle) (int, error) {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	r, err := s.lookupRack(h)
	if err != nil {
		return 0, err
	}

	if len(r.free) == 0 {
		return 0, fmt.Errorf("%w: all %d voices of %s claimed", ErrResourceExhausted, len(r.voices), r.name)
	}

	index := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	v := r.voices[index]
	v.mu.Lock()
	v.claim()
	v.mu.Unlock()

	return index, nil
}

// FreeVoice returns a voice to its rack. An active voice is force-released
// first and only rejoins the free-list once the render path has finished it.
func (s *System) FreeVoice(h RackHandle, index int) error {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	v, err := s.claimedVoice(h, index)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.forceRelease() {
		v.pendingFree = true
		return nil
	}

	s.recycle(v)

	return nil
}

// recycle returns v to its rack's free-list. Callers hold the topology lock
// and v.mu.
func (s *System) recycle(v *voice) {
	v.claimed = false
	v.pendingFree = false
	v.forced = false
	v.src = nil
	v.rack.free = append(v.rack.free, v.index)
}

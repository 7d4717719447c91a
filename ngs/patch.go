package ngs

import (
	"fmt"

	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/internal/lockutil"
)

// Endpoint names one side of a patch: a voice port or the master output.
//
// Output port 0 is the chain's final output and port k taps the output of
// slot k-1. Voices have a single input port, 0.
type Endpoint struct {
	Rack   RackHandle
	Voice  int
	Port   int
	master bool
}

// Master returns the master output endpoint.
func Master() Endpoint { return Endpoint{master: true} }

// VoicePort returns the endpoint of a voice port.
func VoicePort(r RackHandle, voice, port int) Endpoint {
	return Endpoint{Rack: r, Voice: voice, Port: port}
}

// IsMaster reports whether e is the master output.
func (e Endpoint) IsMaster() bool { return e.master }

// PatchHandle references a live patch. The zero value is never valid.
type PatchHandle struct {
	id uint64
}

// ID returns the handle as an integer.
func (h PatchHandle) ID() uint64 { return h.id }

// PatchHandleFromID reverses ID.
func PatchHandleFromID(id uint64) PatchHandle { return PatchHandle{id: id} }

// Matrix is a 2x2 patch volume: output channel i receives
// Matrix[i][0]*in0 + Matrix[i][1]*in1. Channels beyond the first two pass
// at unity.
type Matrix [2][2]float32

// IdentityMatrix routes left to left and right to right at unity.
var IdentityMatrix = Matrix{{1, 0}, {0, 1}}

type patch struct {
	handle  PatchHandle
	src     *voice
	srcPort int
	// dst is nil for the master output.
	dst    *voice
	volume Matrix
}

// Connect adds a patch from an output port to a voice input or the master.
// Cross-rack patches are allowed. A patch that would close a cycle,
// including a voice feeding itself, is rejected and nothing changes.
func (s *System) Connect(src, dst Endpoint) (PatchHandle, error) {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	if s.closed {
		return PatchHandle{}, ErrClosed
	}

	if src.master {
		return PatchHandle{}, fmt.Errorf("%w: master has no outputs", ErrInvalidPort)
	}

	sv, err := s.anyVoice(src.Rack, src.Voice)
	if err != nil {
		return PatchHandle{}, err
	}

	if src.Port < 0 || src.Port > len(sv.slots) {
		return PatchHandle{}, fmt.Errorf("%w: output %d of %d", ErrInvalidPort, src.Port, len(sv.slots)+1)
	}

	var dv *voice

	if !dst.master {
		dv, err = s.anyVoice(dst.Rack, dst.Voice)
		if err != nil {
			return PatchHandle{}, err
		}

		if dst.Port != 0 {
			return PatchHandle{}, fmt.Errorf("%w: input %d", ErrInvalidPort, dst.Port)
		}

		if reaches(dv, sv) {
			return PatchHandle{}, fmt.Errorf("%w: %s/%d -> %s/%d",
				ErrCycleDetected, sv.rack.name, sv.index, dv.rack.name, dv.index)
		}
	}

	s.nextPatch++

	p := &patch{
		handle:  PatchHandle{id: s.nextPatch},
		src:     sv,
		srcPort: src.Port,
		dst:     dv,
		volume:  IdentityMatrix,
	}

	s.patches[p.handle] = p
	sv.outgoing = append(sv.outgoing, p)

	if dv != nil {
		dv.inbound++
	}

	s.dirty = true

	return p.handle, nil
}

// reaches reports whether to is reachable from from along voice patches.
func reaches(from, to *voice) bool {
	seen := map[*voice]bool{from: true}
	stack := []*voice{from}

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if v == to {
			return true
		}

		for _, p := range v.outgoing {
			if p.dst != nil && !seen[p.dst] {
				seen[p.dst] = true
				stack = append(stack, p.dst)
			}
		}
	}

	return false
}

// Disconnect removes a patch.
func (s *System) Disconnect(h PatchHandle) error {
	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	p, err := s.lookupPatch(h)
	if err != nil {
		return err
	}

	s.removePatch(h, p)

	return nil
}

// SetPatchVolume replaces a patch's volume matrix.
func (s *System) SetPatchVolume(h PatchHandle, m Matrix) error {
	for _, row := range m {
		for _, g := range row {
			if !dspmath.IsFinite(float64(g)) {
				return fmt.Errorf("%w: patch gain must be finite: %f", ErrInvalidArgument, g)
			}
		}
	}

	o := lockutil.NewOwner()

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	p, err := s.lookupPatch(h)
	if err != nil {
		return err
	}

	p.volume = m

	return nil
}

func (s *System) lookupPatch(h PatchHandle) (*patch, error) {
	if s.closed {
		return nil, ErrClosed
	}

	p, ok := s.patches[h]
	if !ok {
		return nil, fmt.Errorf("%w: patch %d", ErrInvalidHandle, h.id)
	}

	return p, nil
}

func (s *System) removePatch(h PatchHandle, p *patch) {
	out := p.src.outgoing
	for i, q := range out {
		if q == p {
			p.src.outgoing = append(out[:i], out[i+1:]...)
			break
		}
	}

	if p.dst != nil {
		p.dst.inbound--
	}

	delete(s.patches, h)
	s.dirty = true
}

// rebuildOrder recomputes the render order with Kahn's algorithm. Roots are
// seeded in rack slot and voice index order so the result is deterministic.
func (s *System) rebuildOrder() {
	s.order = s.order[:0]
	total := 0

	for _, r := range s.racks {
		if r == nil {
			continue
		}

		for _, v := range r.voices {
			total++
			v.indegree = v.inbound

			if v.indegree == 0 {
				s.order = append(s.order, v)
			}
		}
	}

	for i := 0; i < len(s.order); i++ {
		for _, p := range s.order[i].outgoing {
			if p.dst == nil {
				continue
			}

			p.dst.indegree--
			if p.dst.indegree == 0 {
				s.order = append(s.order, p.dst)
			}
		}
	}

	if len(s.order) != total {
		// Unreachable while Connect rejects cycles.
		s.log.Error("bus graph is not acyclic; rendering in slot order",
			"ordered", len(s.order), "voices", total)

		s.order = s.order[:0]

		for _, r := range s.racks {
			if r != nil {
				s.order = append(s.order, r.voices...)
			}
		}
	}

	s.dirty = false
}

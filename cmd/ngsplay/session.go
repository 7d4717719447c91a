package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/algo-ngs/ngs"
	"github.com/cwbudde/algo-ngs/ngs/module"
	"github.com/cwbudde/algo-ngs/ngs/source/wavsource"
)

// session owns the racks one patch file or script created, by name.
type session struct {
	sys *ngs.System
	log *slog.Logger

	mu    sync.Mutex
	racks map[string]*sessionRack
}

type sessionRack struct {
	handle ngs.RackHandle
	kinds  []module.Kind
	voices int
}

func newSession(sys *ngs.System, log *slog.Logger) *session {
	return &session{sys: sys, log: log, racks: make(map[string]*sessionRack)}
}

// apply builds everything pf describes. On error the racks created so far
// stay in place; callers reset.
func (s *session) apply(pf *PatchFile) error {
	for _, rs := range pf.Racks {
		err := s.createRack(rs.Name, rs.Voices, rs.Modules)
		if err != nil {
			return err
		}

		for kind, raw := range rs.Params {
			err = s.setParams(rs.Name, -1, kind, raw)
			if err != nil {
				return fmt.Errorf("rack %q: %w", rs.Name, err)
			}
		}
	}

	for ep, path := range pf.WAV {
		err := s.attachWAV(ep, path)
		if err != nil {
			return err
		}
	}

	for _, ps := range pf.Patches {
		_, err := s.connect(ps.From, ps.To, ps.Gain)
		if err != nil {
			return err
		}
	}

	for _, ep := range pf.Play {
		ref, err := parseEndpoint(ep)
		if err != nil {
			return err
		}

		err = s.keyOn(ref.rack, ref.voice)
		if err != nil {
			return fmt.Errorf("play %q: %w", ep, err)
		}
	}

	return nil
}

// reset releases every rack of the session.
func (s *session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, r := range s.racks {
		err := s.sys.ReleaseRack(r.handle)
		if err != nil && !errors.Is(err, ngs.ErrClosed) {
			s.log.Warn("release rack", "rack", name, "err", err)
		}
	}

	clear(s.racks)
}

// createRack creates the rack and claims all of its voices, so voice i of
// the rack is addressable as name:i.
func (s *session) createRack(name string, voices int, modules []string) error {
	kinds := make([]module.Kind, len(modules))
	for i, m := range modules {
		k, err := module.ParseKind(m)
		if err != nil {
			return fmt.Errorf("rack %q: %w", name, err)
		}

		kinds[i] = k
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.racks[name]; ok {
		return fmt.Errorf("rack %q exists", name)
	}

	h, err := s.sys.CreateRack(ngs.RackDesc{Name: name, Modules: kinds, Voices: voices})
	if err != nil {
		return fmt.Errorf("rack %q: %w", name, err)
	}

	for range voices {
		_, err = s.sys.AllocVoice(h)
		if err != nil {
			_ = s.sys.ReleaseRack(h)
			return fmt.Errorf("rack %q: %w", name, err)
		}
	}

	s.racks[name] = &sessionRack{handle: h, kinds: kinds, voices: voices}
	s.log.Debug("rack ready", "rack", name, "voices", voices, "modules", modules)

	return nil
}

func (s *session) rack(name string) (*sessionRack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.racks[name]
	if !ok {
		return nil, fmt.Errorf("no rack %q", name)
	}

	return r, nil
}

func (s *session) endpoint(text string) (ngs.Endpoint, error) {
	ref, err := parseEndpoint(text)
	if err != nil {
		return ngs.Endpoint{}, err
	}

	if ref.master {
		return ngs.Master(), nil
	}

	r, err := s.rack(ref.rack)
	if err != nil {
		return ngs.Endpoint{}, err
	}

	return ngs.VoicePort(r.handle, ref.voice, ref.port), nil
}

// setParams decodes raw over the kind's defaults and stores the result in
// every slot of that kind. A negative voice targets all voices.
func (s *session) setParams(rackName string, voice int, kindName string, raw json.RawMessage) error {
	kind, err := module.ParseKind(kindName)
	if err != nil {
		return err
	}

	r, err := s.rack(rackName)
	if err != nil {
		return err
	}

	p, err := module.DefaultParams(kind)
	if err != nil {
		return err
	}

	err = json.Unmarshal(raw, p)
	if err != nil {
		return fmt.Errorf("%s params: %w", kind, err)
	}

	// The engine only range-checks values when the module runs.
	if v, ok := p.(interface{ Validate() error }); ok {
		err = v.Validate()
		if err != nil {
			return fmt.Errorf("%s params: %w", kind, err)
		}
	}

	blob, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	first, last := voice, voice
	if voice < 0 {
		first, last = 0, r.voices-1
	}

	found := false

	for slot, k := range r.kinds {
		if k != kind {
			continue
		}

		found = true

		for v := first; v <= last; v++ {
			err = s.sys.SetParameter(r.handle, v, slot, blob)
			if err != nil {
				return fmt.Errorf("%s:%d slot %d: %w", rackName, v, slot, err)
			}
		}
	}

	if !found {
		return fmt.Errorf("rack %q has no %s module", rackName, kind)
	}

	return nil
}

func (s *session) connect(from, to string, gain *ngs.Matrix) (ngs.PatchHandle, error) {
	src, err := s.endpoint(from)
	if err != nil {
		return ngs.PatchHandle{}, err
	}

	dst, err := s.endpoint(to)
	if err != nil {
		return ngs.PatchHandle{}, err
	}

	h, err := s.sys.Connect(src, dst)
	if err != nil {
		return ngs.PatchHandle{}, fmt.Errorf("patch %s -> %s: %w", from, to, err)
	}

	if gain != nil {
		err = s.sys.SetPatchVolume(h, *gain)
		if err != nil {
			return ngs.PatchHandle{}, fmt.Errorf("patch %s -> %s: %w", from, to, err)
		}
	}

	return h, nil
}

func (s *session) attachWAV(ep, path string) error {
	ref, err := parseEndpoint(ep)
	if err != nil || ref.master {
		return fmt.Errorf("wav target %q: want rack:voice", ep)
	}

	r, err := s.rack(ref.rack)
	if err != nil {
		return err
	}

	pcm, err := wavsource.Open(path)
	if err != nil {
		return err
	}

	return s.sys.AttachSource(r.handle, ref.voice, pcm)
}

func (s *session) keyOn(rackName string, voice int) error {
	r, err := s.rack(rackName)
	if err != nil {
		return err
	}

	return s.sys.KeyOn(r.handle, voice)
}

func (s *session) keyOff(rackName string, voice int) error {
	r, err := s.rack(rackName)
	if err != nil {
		return err
	}

	return s.sys.KeyOff(r.handle, voice)
}

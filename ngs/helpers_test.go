package ngs

import (
	"encoding"
	"math"
	"testing"

	"github.com/cwbudde/algo-ngs/ngs/module"
	"github.com/cwbudde/algo-ngs/ngs/source"
)

const (
	testRate    = 48000
	testQuantum = 64
)

func openTest(t *testing.T, opts ...Option) *System {
	t.Helper()

	base := []Option{WithSampleRate(testRate), WithChannels(2), WithQuantum(testQuantum)}

	s, err := Open(append(base, opts...)...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func createRack(t *testing.T, s *System, voices int, kinds ...module.Kind) RackHandle {
	t.Helper()

	h, err := s.CreateRack(RackDesc{Modules: kinds, Voices: voices})
	if err != nil {
		t.Fatalf("CreateRack(%v): %v", kinds, err)
	}

	return h
}

func allocVoice(t *testing.T, s *System, r RackHandle) int {
	t.Helper()

	v, err := s.AllocVoice(r)
	if err != nil {
		t.Fatalf("AllocVoice: %v", err)
	}

	return v
}

// stereoSource returns frames of constant left and right values.
func stereoSource(t *testing.T, left, right float32, frames int) *source.PCM {
	t.Helper()

	samples := make([]float32, 2*frames)
	for i := range frames {
		samples[2*i] = left
		samples[2*i+1] = right
	}

	return stereoPCM(t, samples)
}

func stereoPCM(t *testing.T, samples []float32) *source.PCM {
	t.Helper()

	src, err := source.NewPCM(source.Format{SampleRate: testRate, Channels: 2}, samples)
	if err != nil {
		t.Fatalf("NewPCM: %v", err)
	}

	return src
}

// playingVoice claims a voice of a player rack, attaches a constant source,
// patches it to the master and keys it on.
func playingVoice(t *testing.T, s *System, r RackHandle, left, right float32) int {
	t.Helper()

	v := allocVoice(t, s, r)

	if err := s.AttachSource(r, v, stereoSource(t, left, right, testRate)); err != nil {
		t.Fatalf("AttachSource: %v", err)
	}

	if _, err := s.Connect(VoicePort(r, v, 0), Master()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.KeyOn(r, v); err != nil {
		t.Fatalf("KeyOn: %v", err)
	}

	return v
}

func setParam(t *testing.T, s *System, r RackHandle, v, slot int, m encoding.BinaryMarshaler) {
	t.Helper()

	blob, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	if err := s.SetParameter(r, v, slot, blob); err != nil {
		t.Fatalf("SetParameter slot %d: %v", slot, err)
	}
}

func pullFrames(s *System, frames int) []float32 {
	out := make([]float32, frames*s.cfg.Channels)
	s.Pull(out)

	return out
}

// requireFrames checks every interleaved frame against left and right.
func requireFrames(t *testing.T, got []float32, left, right float64) {
	t.Helper()

	for i := 0; i+1 < len(got); i += 2 {
		if math.Abs(float64(got[i])-left) > 1e-6 || math.Abs(float64(got[i+1])-right) > 1e-6 {
			t.Fatalf("frame %d = (%v, %v), want (%v, %v)", i/2, got[i], got[i+1], left, right)
		}
	}
}

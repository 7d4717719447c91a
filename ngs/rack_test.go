package ngs

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-ngs/internal/testutil"
	"github.com/cwbudde/algo-ngs/ngs/module"
)

func TestAllocVoiceExhaustsFixedPool(t *testing.T) {
	t.Parallel()

	const n = 3

	s := openTest(t)
	r := createRack(t, s, n, module.KindPlayer)

	for i := range n {
		v, err := s.AllocVoice(r)
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}

		if v != i {
			t.Fatalf("alloc %d returned voice %d", i, v)
		}

		if err := s.KeyOn(r, v); err != nil {
			t.Fatalf("KeyOn %d: %v", v, err)
		}
	}

	_, err := s.AllocVoice(r)
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("alloc %d: got %v, want ErrResourceExhausted", n+1, err)
	}

	if got := ErrorCode(err); got != CodeResourceExhausted {
		t.Fatalf("code %v, want %v", got, CodeResourceExhausted)
	}

	if free, _ := s.FreeVoices(r); free != 0 {
		t.Fatalf("pool grew: %d free", free)
	}
}

func TestFreeVoiceImmediateWhenIdle(t *testing.T) {
	t.Parallel()

	s := openTest(t)
	r := createRack(t, s, 1, module.KindPlayer)
	v := allocVoice(t, s, r)

	if err := s.FreeVoice(r, v); err != nil {
		t.Fatalf("FreeVoice: %v", err)
	}

	if err := s.FreeVoice(r, v); !errors.Is(err, ErrVoiceNotAllocated) {
		t.Fatalf("double free: got %v, want ErrVoiceNotAllocated", err)
	}

	allocVoice(t, s, r)
}

func TestForcedFreeRecyclesAfterRender(t *testing.T) {
	t.Parallel()

	s := openTest(t)
	r := createRack(t, s, 1, module.KindPlayer)
	v := playingVoice(t, s, r, 0.5, 0.5)

	pullFrames(s, testQuantum)

	if err := s.FreeVoice(r, v); err != nil {
		t.Fatalf("FreeVoice: %v", err)
	}

	if state, _ := s.VoiceState(r, v); state != VoiceReleasing {
		t.Fatalf("state after forced free: %v, want releasing", state)
	}

	if err := s.KeyOn(r, v); !errors.Is(err, ErrVoiceNotAllocated) {
		t.Fatalf("KeyOn on pending free voice: got %v, want ErrVoiceNotAllocated", err)
	}

	if _, err := s.AllocVoice(r); !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("voice reused before render finished it: %v", err)
	}

	out := pullFrames(s, testQuantum)

	// One quantum of linear fade to zero.
	for i := range testQuantum {
		want := 0.5 * (1 - float64(i+1)/testQuantum)
		if math.Abs(float64(out[2*i])-want) > 1e-6 {
			t.Fatalf("fade frame %d = %v, want %v", i, out[2*i], want)
		}
	}

	if state, _ := s.VoiceState(r, v); state != VoiceFinished {
		t.Fatalf("state after fade: %v, want finished", state)
	}

	if free, _ := s.FreeVoices(r); free != 1 {
		t.Fatalf("free voices after fade: %d, want 1", free)
	}

	testutil.RequireSilent(t, pullFrames(s, testQuantum))

	v2 := allocVoice(t, s, r)
	if state, _ := s.VoiceState(r, v2); state != VoiceUnloaded {
		t.Fatalf("reclaimed voice state %v, want unloaded", state)
	}
}

func TestUnclaimedVoiceIsNotAllocated(t *testing.T) {
	t.Parallel()

	s := openTest(t)
	r := createRack(t, s, 2, module.KindPlayer)

	err := s.KeyOn(r, 1)
	if !errors.Is(err, ErrVoiceNotAllocated) || !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("KeyOn on unclaimed voice: got %v", err)
	}

	if got := ErrorCode(err); got != CodeVoiceNotAllocated {
		t.Fatalf("code %v, want %v", got, CodeVoiceNotAllocated)
	}

	if err := s.KeyOn(r, 2); !errors.Is(err, ErrInvalidHandle) || errors.Is(err, ErrVoiceNotAllocated) {
		t.Fatalf("KeyOn out of range: got %v, want plain ErrInvalidHandle", err)
	}

	if state, err := s.VoiceState(r, 1); err != nil || state != VoiceUnloaded {
		t.Fatalf("VoiceState of unclaimed voice: %v, %v", state, err)
	}
}

func TestReleaseRackWaitsForInFlightTick(t *testing.T) {
	t.Parallel()

	s := openTest(t)
	r := createRack(t, s, 2, module.KindPlayer)
	v := playingVoice(t, s, r, 0.5, 0.5)

	pullFrames(s, testQuantum)

	// Hold the topology lock as the render path does mid-tick.
	s.topo.Lock(s.renderOwner)

	released := make(chan error, 1)

	go func() { released <- s.ReleaseRack(r) }()

	select {
	case err := <-released:
		s.topo.Unlock(s.renderOwner)
		t.Fatalf("ReleaseRack returned during the tick: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	s.topo.Unlock(s.renderOwner)

	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("ReleaseRack: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ReleaseRack did not complete after the tick")
	}

	testutil.RequireSilent(t, pullFrames(s, 2*testQuantum))

	if _, err := s.VoiceState(r, v); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("VoiceState after release: got %v, want ErrInvalidHandle", err)
	}

	if n := len(s.patches); n != 0 {
		t.Fatalf("%d patches survived the release", n)
	}
}

package ngs

import (
	"context"
	"fmt"
	"time"
)

// Sink consumes rendered quanta. Write receives one quantum of interleaved
// samples; the slice is reused after Write returns.
type Sink interface {
	Write(samples []float32) error
}

// Tick renders one quantum into the master bus.
func (s *System) Tick() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.tick()
}

func (s *System) tick() {
	o := s.renderOwner

	s.topo.Lock(o)
	defer s.topo.Unlock(o)

	s.master.Zero()

	if s.closed {
		return
	}

	if s.dirty {
		s.rebuildOrder()
	}

	for _, v := range s.order {
		v.in.Zero()
	}

	for _, v := range s.order {
		v.mu.Lock()

		if v.render(s) {
			for _, p := range v.outgoing {
				dst := s.master
				if p.dst != nil {
					dst = p.dst.in
				}

				mixPatch(dst, v.taps[p.srcPort], &p.volume, s.scratch)
			}
		}

		if v.state == VoiceFinished && v.claimed {
			s.recycle(v)
		}

		v.mu.Unlock()
	}

	s.ticks++
}

// Pull fills dst with interleaved frames at the engine rate, rendering as
// many quanta as needed. Frames left over from the last quantum are served
// first on the next call. A trailing partial frame in dst is left
// untouched. Pull returns the number of frames written.
func (s *System) Pull(dst []float32) int {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	ch := s.cfg.Channels
	want := len(dst) - len(dst)%ch

	for n := 0; n < want; {
		if s.outPos >= len(s.out) {
			s.tick()
			s.interleave()
		}

		c := copy(dst[n:want], s.out[s.outPos:])
		n += c
		s.outPos += c
	}

	return want / ch
}

func (s *System) interleave() {
	ch := len(s.master.Channels)
	for c, samples := range s.master.Channels {
		for i, v := range samples {
			s.out[i*ch+c] = float32(v)
		}
	}

	s.outPos = 0
}

// Period returns the wall-clock duration of one quantum.
func (s *System) Period() time.Duration {
	return time.Duration(float64(time.Second) * float64(s.cfg.Quantum) / s.cfg.SampleRate)
}

// Run renders one quantum per Period and hands it to sink until ctx is
// cancelled, Close is called or the sink fails. Only one Run may be active.
func (s *System) Run(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("%w: nil sink", ErrInvalidArgument)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	s.runMu.Lock()
	if s.runCancel != nil {
		s.runMu.Unlock()
		return fmt.Errorf("%w: already running", ErrInvalidState)
	}

	if s.isClosed() {
		s.runMu.Unlock()
		return ErrClosed
	}

	s.runCancel = cancel
	s.runDone = done
	s.runMu.Unlock()

	defer func() {
		s.runMu.Lock()
		s.runCancel = nil
		s.runDone = nil
		s.runMu.Unlock()
	}()

	ticker := time.NewTicker(s.Period())
	defer ticker.Stop()

	buf := make([]float32, s.cfg.Quantum*s.cfg.Channels)

	for {
		select {
		case <-runCtx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Pull(buf)

			err := sink.Write(buf)
			if err != nil {
				return fmt.Errorf("ngs: sink: %w", err)
			}
		}
	}
}

// stopRun cancels an active Run and waits for it to return.
func (s *System) stopRun() {
	s.runMu.Lock()
	cancel, done := s.runCancel, s.runDone
	s.runMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

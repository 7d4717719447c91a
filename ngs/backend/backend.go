// Package backend connects an engine's render path to host audio outputs:
// an oto device (the default build) or a silent stand-in under the
// headless tag, plus sinks for offline rendering.
package backend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/youpy/go-wav"
)

// ErrFull is returned by WAVSink once its declared length is written.
var ErrFull = errors.New("backend: wav sink full")

// Puller is the render side of an engine, called from the device callback.
type Puller interface {
	Pull(dst []float32) int
}

// Sink consumes interleaved quanta.
type Sink interface {
	Write(samples []float32) error
}

// fillBytes renders whole frames from src into p as little-endian float32.
// Bytes past the last whole frame are zeroed.
func fillBytes(src Puller, buf []float32, channels int, p []byte) []float32 {
	frames := len(p) / (4 * channels)
	n := frames * channels

	if cap(buf) < n {
		buf = make([]float32, n)
	}

	buf = buf[:n]
	src.Pull(buf)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(s))
	}

	clear(p[4*n:])

	return buf
}

// Discard drops audio and counts the frames it was given.
type Discard struct {
	Channels int
	frames   atomic.Int64
}

// Write implements Sink.
func (d *Discard) Write(samples []float32) error {
	d.frames.Add(int64(len(samples) / max(d.Channels, 1)))
	return nil
}

// Frames returns the number of frames written so far.
func (d *Discard) Frames() int64 { return d.frames.Load() }

// WAVSink writes a fixed number of frames as 16-bit PCM WAV.
type WAVSink struct {
	w        *wav.Writer
	channels int
	left     int
	buf      []wav.Sample
}

// NewWAVSink writes the WAV header for frames frames of audio to w.
func NewWAVSink(w io.Writer, sampleRate, channels, frames int) (*WAVSink, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("backend: wav sink supports 1 or 2 channels: %d", channels)
	}

	if sampleRate <= 0 || frames < 0 {
		return nil, fmt.Errorf("backend: bad wav sink shape: %d Hz, %d frames", sampleRate, frames)
	}

	return &WAVSink{
		w:        wav.NewWriter(w, uint32(frames), uint16(channels), uint32(sampleRate), 16),
		channels: channels,
		left:     frames,
	}, nil
}

// Write implements Sink. Frames beyond the declared length are dropped and
// reported with ErrFull.
func (s *WAVSink) Write(samples []float32) error {
	if s.left == 0 {
		return ErrFull
	}

	frames := min(len(samples)/s.channels, s.left)

	s.buf = s.buf[:0]
	for i := range frames {
		var smp wav.Sample
		for c := range s.channels {
			smp.Values[c] = toInt16(samples[i*s.channels+c])
		}

		s.buf = append(s.buf, smp)
	}

	err := s.w.WriteSamples(s.buf)
	if err != nil {
		return err
	}

	s.left -= frames
	if frames < len(samples)/s.channels {
		return ErrFull
	}

	return nil
}

// Remaining returns the frames still to be written.
func (s *WAVSink) Remaining() int { return s.left }

func toInt16(v float32) int {
	x := math.Round(float64(v) * 32767)

	return int(max(-32768, min(32767, x)))
}

// Render drives src offline, writing frames frames to sink in blocks of
// quantum frames.
func Render(src Puller, sink Sink, channels, quantum, frames int) error {
	buf := make([]float32, quantum*channels)

	for frames > 0 {
		n := min(quantum, frames)
		src.Pull(buf[:n*channels])

		err := sink.Write(buf[:n*channels])
		if err != nil {
			return err
		}

		frames -= n
	}

	return nil
}

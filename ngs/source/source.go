// Package source defines the contract between the NGS engine and external
// PCM producers such as a media decoder. The engine only consumes
// interleaved float32 frames through Source; it has no knowledge of
// containers or codecs.
package source

import (
	"errors"
	"fmt"
	"io"
)

// ErrBadFormat is returned for non-positive sample rates or channel counts.
var ErrBadFormat = errors.New("source: bad format")

// Format describes the PCM a Source produces.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate checks that f describes playable PCM.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: %d Hz, %d channels", ErrBadFormat, f.SampleRate, f.Channels)
	}

	return nil
}

// Source produces interleaved float32 samples in [-1, 1].
//
// Read fills dst with whole frames and returns the number of samples
// written. It returns io.EOF once no more samples are available; a final
// partial read may return n > 0 together with io.EOF.
type Source interface {
	Format() Format
	Read(dst []float32) (int, error)
}

// Rewinder is implemented by sources that can restart from the beginning,
// which the player module needs for looping.
type Rewinder interface {
	Rewind() error
}

// PCM is an in-memory Source over a decoded buffer.
type PCM struct {
	format  Format
	samples []float32
	pos     int
}

// NewPCM wraps interleaved samples. The slice is not copied.
func NewPCM(format Format, samples []float32) (*PCM, error) {
	err := format.Validate()
	if err != nil {
		return nil, err
	}

	if len(samples)%format.Channels != 0 {
		return nil, fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames",
			ErrBadFormat, len(samples), format.Channels)
	}

	return &PCM{format: format, samples: samples}, nil
}

// Format returns the PCM format.
func (p *PCM) Format() Format { return p.format }

// Read copies the next whole frames into dst.
func (p *PCM) Read(dst []float32) (int, error) {
	if p.pos >= len(p.samples) {
		return 0, io.EOF
	}

	n := len(dst) - len(dst)%p.format.Channels
	n = copy(dst[:n], p.samples[p.pos:])
	p.pos += n

	if p.pos >= len(p.samples) {
		return n, io.EOF
	}

	return n, nil
}

// Rewind restarts playback from the first frame.
func (p *PCM) Rewind() error {
	p.pos = 0
	return nil
}

// Frames returns the total number of frames.
func (p *PCM) Frames() int {
	return len(p.samples) / p.format.Channels
}

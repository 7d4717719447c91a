// Package module defines the closed set of NGS DSP module variants and the
// uniform processing contract the voice render path drives them through.
//
// A Module instance belongs to exactly one voice slot. Process is always
// called with the engine's topology lock and the owning voice's lock already
// held. Modules must never acquire the topology lock on their own: graph
// queries go through the TopologyView in Context, which re-enters the lock
// with the render path's owner token. No variant in this package releases
// its voice lock during Process.
package module

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/ngs/param"
	"github.com/cwbudde/algo-ngs/ngs/source"
)

// ErrFault marks a non-fatal processing failure. The voice emits silence for
// the rest of its chain on the current tick and continues on the next one.
var ErrFault = errors.New("module fault")

// ErrUnknownKind is returned for kinds that are not registered.
var ErrUnknownKind = errors.New("unknown module kind")

// Kind tags a member of the closed module variant set.
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindEnvelope
	KindPitchShift
	KindMixer
	KindCompressor
	KindReverb
	KindDelay
)

var kindNames = map[Kind]string{
	KindPlayer:     "player",
	KindEnvelope:   "envelope",
	KindPitchShift: "pitchshift",
	KindMixer:      "mixer",
	KindCompressor: "compressor",
	KindReverb:     "reverb",
	KindDelay:      "delay",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// HasRelease reports whether modules of kind k run a release phase that
// ends with StatusDone. A releasing voice finishes once every such module
// in its chain is done.
func (k Kind) HasRelease() bool {
	switch k {
	case KindEnvelope, KindReverb, KindDelay:
		return true
	default:
		return false
	}
}

// ParseKind maps a kind name (case-insensitive) to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Status reports a module's progress after one Process call.
type Status uint8

const (
	// StatusDone means the module has nothing left to emit during release.
	StatusDone Status = 1 << iota
	// StatusSourceEnd means a generator module ran out of input.
	StatusSourceEnd
)

// Has reports whether every flag in f is set.
func (s Status) Has(f Status) bool { return s&f == f }

// Config carries the engine properties a module is built for.
type Config struct {
	SampleRate float64
	Channels   int
	// MaxFrames is the largest block the module will be asked to process.
	MaxFrames int
}

func (c Config) validate() error {
	if !dspmath.IsFinitePositive(c.SampleRate) {
		return fmt.Errorf("module sample rate must be positive and finite: %f", c.SampleRate)
	}

	if c.Channels <= 0 {
		return fmt.Errorf("module channel count must be > 0: %d", c.Channels)
	}

	if c.MaxFrames <= 0 {
		return fmt.Errorf("module max frames must be > 0: %d", c.MaxFrames)
	}

	return nil
}

// TopologyView exposes read-only bus graph facts about the voice being
// rendered. Implementations assume the topology lock is already held.
type TopologyView interface {
	// InboundPatches returns the number of patches feeding the voice.
	InboundPatches() int
}

// Context is the per-call processing environment.
type Context struct {
	SampleRate float64
	// Block holds the stage input on entry and must hold the stage output on return.
	Block *Block
	// Triggered is set on the first block after key_on from Unloaded.
	Triggered bool
	// Releasing is set once the voice received key_off.
	Releasing bool
	// Source is the PCM producer attached to the voice, or nil.
	Source source.Source
	// Topology answers graph queries under the already-held topology lock.
	Topology TopologyView
}

// Module is the uniform contract of every variant.
type Module interface {
	Kind() Kind
	ModuleID() uint32
	MaxParameterSize() int
	BufferParameterSize() int
	// Process transforms ctx.Block in place using the slot's parameters.
	// A non-nil error is a fault and wraps ErrFault.
	Process(ctx *Context, params *param.Storage) (Status, error)
	// Reset clears streaming state; called when a voice is (re)started.
	Reset()
}

func faultf(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrFault, kind, fmt.Sprintf(format, args...))
}

// Block is a planar block of samples, one slice per channel.
type Block struct {
	Channels [][]float64
}

// NewBlock allocates a zeroed block.
func NewBlock(channels, frames int) *Block {
	b := &Block{Channels: make([][]float64, channels)}
	for c := range b.Channels {
		b.Channels[c] = make([]float64, frames)
	}

	return b
}

// Frames returns the number of frames per channel.
func (b *Block) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

// Zero silences every channel.
func (b *Block) Zero() {
	for _, ch := range b.Channels {
		clear(ch)
	}
}

// CopyFrom copies src into b channel by channel.
func (b *Block) CopyFrom(src *Block) {
	for c := range b.Channels {
		if c < len(src.Channels) {
			copy(b.Channels[c], src.Channels[c])
		} else {
			clear(b.Channels[c])
		}
	}
}

// Resize sets the frame count of every channel, reusing capacity.
func (b *Block) Resize(frames int) {
	for c, ch := range b.Channels {
		if cap(ch) >= frames {
			b.Channels[c] = ch[:frames]
			continue
		}

		grown := make([]float64, frames)
		copy(grown, ch)
		b.Channels[c] = grown
	}
}

// Peak returns the largest absolute sample in the block.
func (b *Block) Peak() float64 {
	peak := 0.0

	for _, ch := range b.Channels {
		for _, v := range ch {
			if v < 0 {
				v = -v
			}

			peak = max(peak, v)
		}
	}

	return peak
}

package module

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cwbudde/algo-ngs/ngs/param"
)

// Factory builds one Module instance for a voice slot.
type Factory func(cfg Config) (Module, error)

// Entry is the static description of one registered kind.
type Entry struct {
	Kind       Kind
	ModuleID   uint32
	Descriptor param.Descriptor
	New        Factory
}

// Registry maps module kinds to their descriptors and factories.
//
// A Registry is populated once before an engine opens and is read-only
// afterwards; it is not synchronized.
type Registry struct {
	entries map[Kind]Entry
}

var errDuplicateKind = errors.New("duplicate module kind")

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]Entry)}
}

// Register adds an entry for e.Kind.
func (r *Registry) Register(e Entry) error {
	if e.Kind == 0 {
		return errors.New("empty module kind")
	}

	if e.New == nil {
		return errors.New("nil factory")
	}

	if !e.Descriptor.Valid() {
		return fmt.Errorf("invalid descriptor for %s: size %d, buffer %d",
			e.Kind, e.Descriptor.Size, e.Descriptor.BufferSize)
	}

	if _, exists := r.entries[e.Kind]; exists {
		return fmt.Errorf("%w: %s", errDuplicateKind, e.Kind)
	}

	r.entries[e.Kind] = e

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(e Entry) {
	err := r.Register(e)
	if err != nil {
		panic("module registry: " + err.Error())
	}
}

// Lookup returns the entry for k.
func (r *Registry) Lookup(k Kind) (Entry, bool) {
	e, ok := r.entries[k]
	return e, ok
}

// New instantiates a module of kind k.
func (r *Registry) New(k Kind, cfg Config) (Module, error) {
	e, ok := r.entries[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}

	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	return e.New(cfg)
}

// KindByStructID resolves the kind whose descriptor uses structID.
func (r *Registry) KindByStructID(structID uint32) (Kind, bool) {
	for k, e := range r.entries {
		if e.Descriptor.StructID == structID {
			return k, true
		}
	}

	return 0, false
}

// Kinds returns the registered kinds in ascending order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}

	slices.Sort(out)

	return out
}

// DefaultRegistry returns a registry holding every built-in variant.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(Entry{KindPlayer, PlayerModuleID, PlayerDescriptor, newPlayerModule})
	r.MustRegister(Entry{KindEnvelope, EnvelopeModuleID, EnvelopeDescriptor, newEnvelopeModule})
	r.MustRegister(Entry{KindPitchShift, PitchShiftModuleID, PitchShiftDescriptor, newPitchShiftModule})
	r.MustRegister(Entry{KindMixer, MixerModuleID, MixerDescriptor, newMixerModule})
	r.MustRegister(Entry{KindCompressor, CompressorModuleID, CompressorDescriptor, newCompressorModule})
	r.MustRegister(Entry{KindReverb, ReverbModuleID, ReverbDescriptor, newReverbModule})
	r.MustRegister(Entry{KindDelay, DelayModuleID, DelayDescriptor, newDelayModule})

	return r
}

package module

import (
	"encoding"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-ngs/ngs/param"
)

func TestParamsEncodeToDescriptorSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    encoding.BinaryMarshaler
		d    param.Descriptor
	}{
		{"player", DefaultPlayerParams(), PlayerDescriptor},
		{"envelope", DefaultEnvelopeParams(), EnvelopeDescriptor},
		{"pitchshift", PitchShiftParams{OffsetCents: 700}, PitchShiftDescriptor},
		{"mixer", DefaultMixerParams(), MixerDescriptor},
		{"compressor", DefaultCompressorParams(), CompressorDescriptor},
		{"reverb", DefaultReverbParams(), ReverbDescriptor},
		{"delay", DefaultDelayParams(), DelayDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			blob, err := tt.p.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary: %v", err)
			}

			if len(blob) != tt.d.Size {
				t.Fatalf("blob is %d bytes, descriptor max is %d", len(blob), tt.d.Size)
			}

			if err := param.Validate(tt.d, blob); err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}

func TestParamsHeaderOnlyBlobUsesDefaults(t *testing.T) {
	t.Parallel()

	var env EnvelopeParams
	if err := env.UnmarshalBinary(param.NewWriter(EnvelopeDescriptor.StructID).Bytes()); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if env != DefaultEnvelopeParams() {
		t.Fatalf("got %+v, want defaults", env)
	}

	var comp CompressorParams

	blob := param.NewWriter(CompressorDescriptor.StructID).Float32(-30).Float32(8).Bytes()
	if err := comp.UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if comp.ThresholdDB != -30 || comp.Ratio != 8 || comp.KneeDB != 6 || !math.IsNaN(float64(comp.MakeupDB)) {
		t.Fatalf("got %+v", comp)
	}
}

func TestParamsRoundTripExplicitValues(t *testing.T) {
	t.Parallel()

	in := ReverbParams{RT60: 0.7, Damp: 0.5, Wet: 0.4, Dry: 0.6, PreDelay: 0.02, ModDepth: 0.001, ModRateHz: 0.3}

	blob, _ := in.MarshalBinary()

	var out ReverbParams
	if err := out.UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}

	player := PlayerParams{PlaybackHz: 22050, Scaling: 1.5, LoopCount: -1}
	blob, _ = player.MarshalBinary()

	var gotPlayer PlayerParams
	if err := gotPlayer.UnmarshalBinary(blob); err != nil || gotPlayer != player {
		t.Fatalf("player round trip = %+v, %v", gotPlayer, err)
	}
}

func TestParamsUnmarshalRejectsForeignStruct(t *testing.T) {
	t.Parallel()

	blob, _ := DefaultDelayParams().MarshalBinary()

	var p ReverbParams
	if err := p.UnmarshalBinary(blob); !errors.Is(err, param.ErrBadStructID) {
		t.Fatalf("got %v, want ErrBadStructID", err)
	}
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())

	tests := []struct {
		name string
		err  error
	}{
		{"player negative rate", PlayerParams{PlaybackHz: -1, Scaling: 1}.Validate()},
		{"player zero scaling", PlayerParams{Scaling: 0}.Validate()},
		{"player loop below -1", PlayerParams{Scaling: 1, LoopCount: -2}.Validate()},
		{"player rate past limit", PlayerParams{PlaybackHz: 1e30, Scaling: 1}.Validate()},
		{"player scaling past limit", PlayerParams{Scaling: maxPlayerRatio * 2}.Validate()},
		{"envelope sustain above 1", EnvelopeParams{Sustain: 1.5}.Validate()},
		{"envelope NaN attack", EnvelopeParams{AttackMs: nan}.Validate()},
		{"envelope release past limit", EnvelopeParams{Sustain: 0.5, ReleaseMs: 3e38}.Validate()},
		{"envelope decay past limit", EnvelopeParams{Sustain: 0.5, DecayMs: maxEnvelopeMs + 1}.Validate()},
		{"pitch NaN", PitchShiftParams{OffsetCents: nan}.Validate()},
		{"mixer pan out of range", MixerParams{GainL: 1, GainR: 1, Pan: 2}.Validate()},
		{"compressor ratio below 1", CompressorParams{Ratio: 0.5, AttackMs: 1, ReleaseMs: 1}.Validate()},
		{"reverb zero rt60", ReverbParams{RT60: 0}.Validate()},
		{"delay feedback 1", DelayParams{DelayMs: 10, Feedback: 1}.Validate()},
		{"delay too long", DelayParams{DelayMs: maxDelayMs + 1}.Validate()},
	}

	for _, tt := range tests {
		if tt.err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}

	defaults := []error{
		DefaultPlayerParams().Validate(),
		DefaultEnvelopeParams().Validate(),
		PitchShiftParams{}.Validate(),
		DefaultMixerParams().Validate(),
		DefaultCompressorParams().Validate(),
		DefaultReverbParams().Validate(),
		DefaultDelayParams().Validate(),
	}
	for i, err := range defaults {
		if err != nil {
			t.Errorf("defaults %d: %v", i, err)
		}
	}
}

func TestDefaultParamsMatchRegistry(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()

	for _, k := range reg.Kinds() {
		p, err := DefaultParams(k)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}

		blob, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("%s: MarshalBinary: %v", k, err)
		}

		e, _ := reg.Lookup(k)
		if err := param.Validate(e.Descriptor, blob); err != nil {
			t.Fatalf("%s: defaults rejected by own descriptor: %v", k, err)
		}
	}

	if _, err := DefaultParams(Kind(99)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("got %v, want ErrUnknownKind", err)
	}
}

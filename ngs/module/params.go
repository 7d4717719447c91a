package module

import (
	"encoding"
	"fmt"
	"math"

	"github.com/cwbudde/algo-ngs/ngs/param"
)

// Module ids and parameter descriptors of the built-in variants.
const (
	PlayerModuleID     uint32 = 0x5CE6
	EnvelopeModuleID   uint32 = 0x5CEB
	PitchShiftModuleID uint32 = 0x5CEA
	MixerModuleID      uint32 = 0x5CEC
	CompressorModuleID uint32 = 0x5CEE
	ReverbModuleID     uint32 = 0x5CE9
	DelayModuleID      uint32 = 0x5CED
)

const structIDBase uint32 = 0x01010000

var (
	PlayerDescriptor     = param.Descriptor{StructID: structIDBase | PlayerModuleID, Size: 20, BufferSize: 20}
	EnvelopeDescriptor   = param.Descriptor{StructID: structIDBase | EnvelopeModuleID, Size: 24, BufferSize: 24}
	PitchShiftDescriptor = param.Descriptor{StructID: structIDBase | PitchShiftModuleID, Size: 12, BufferSize: 12}
	MixerDescriptor      = param.Descriptor{StructID: structIDBase | MixerModuleID, Size: 24, BufferSize: 24}
	CompressorDescriptor = param.Descriptor{StructID: structIDBase | CompressorModuleID, Size: 32, BufferSize: 32}
	ReverbDescriptor     = param.Descriptor{StructID: structIDBase | ReverbModuleID, Size: 36, BufferSize: 48}
	DelayDescriptor      = param.Descriptor{StructID: structIDBase | DelayModuleID, Size: 24, BufferSize: 32}
)

// BlobCodec is implemented by pointers to every built-in parameter struct.
type BlobCodec interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DefaultParams returns a pointer to the defaults of kind k's parameter
// struct, ready to be overlaid and marshalled.
func DefaultParams(k Kind) (BlobCodec, error) {
	switch k {
	case KindPlayer:
		p := DefaultPlayerParams()
		return &p, nil
	case KindEnvelope:
		p := DefaultEnvelopeParams()
		return &p, nil
	case KindPitchShift:
		return &PitchShiftParams{}, nil
	case KindMixer:
		p := DefaultMixerParams()
		return &p, nil
	case KindCompressor:
		p := DefaultCompressorParams()
		return &p, nil
	case KindReverb:
		p := DefaultReverbParams()
		return &p, nil
	case KindDelay:
		p := DefaultDelayParams()
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
}

func decode(d param.Descriptor, blob []byte) (*param.Reader, error) {
	err := param.Validate(d, blob)
	if err != nil {
		return nil, err
	}

	return param.NewReader(blob), nil
}

func finite32(name string, v float32) error {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%s must be finite: %f", name, f)
	}

	return nil
}

// PlayerParams configures the PCM player.
type PlayerParams struct {
	// PlaybackHz is the source rate to play at; 0 uses the source's own rate.
	PlaybackHz float32
	// Scaling multiplies the playback rate.
	Scaling float32
	// LoopCount is the number of extra passes; -1 loops forever.
	LoopCount int32
}

// DefaultPlayerParams plays the source once at its native rate.
func DefaultPlayerParams() PlayerParams {
	return PlayerParams{Scaling: 1}
}

func (p PlayerParams) MarshalBinary() ([]byte, error) {
	return param.NewWriter(PlayerDescriptor.StructID).
		Float32(p.PlaybackHz).Float32(p.Scaling).Int32(p.LoopCount).Bytes(), nil
}

// UnmarshalBinary decodes blob; absent trailing fields take their defaults.
func (p *PlayerParams) UnmarshalBinary(blob []byte) error {
	r, err := decode(PlayerDescriptor, blob)
	if err != nil {
		return err
	}

	d := DefaultPlayerParams()
	p.PlaybackHz = r.Float32Or(d.PlaybackHz)
	p.Scaling = r.Float32Or(d.Scaling)
	p.LoopCount = r.Int32Or(d.LoopCount)

	return nil
}

// Validate checks the value ranges.
func (p PlayerParams) Validate() error {
	if !(p.PlaybackHz >= 0 && p.PlaybackHz <= maxPlaybackHz) {
		return fmt.Errorf("playback_hz must be in [0, %d]: %f", maxPlaybackHz, p.PlaybackHz)
	}

	if !(p.Scaling > 0 && p.Scaling <= maxPlayerRatio) {
		return fmt.Errorf("scaling must be in (0, %d]: %f", maxPlayerRatio, p.Scaling)
	}

	if p.LoopCount < -1 {
		return fmt.Errorf("loop_count must be >= -1: %d", p.LoopCount)
	}

	return nil
}

// EnvelopeParams configures the ADSR envelope.
type EnvelopeParams struct {
	AttackMs  float32
	DecayMs   float32
	Sustain   float32
	ReleaseMs float32
}

func DefaultEnvelopeParams() EnvelopeParams {
	return EnvelopeParams{AttackMs: 5, DecayMs: 100, Sustain: 0.8, ReleaseMs: 200}
}

func (p EnvelopeParams) MarshalBinary() ([]byte, error) {
	return param.NewWriter(EnvelopeDescriptor.StructID).
		Float32(p.AttackMs).Float32(p.DecayMs).Float32(p.Sustain).Float32(p.ReleaseMs).Bytes(), nil
}

func (p *EnvelopeParams) UnmarshalBinary(blob []byte) error {
	r, err := decode(EnvelopeDescriptor, blob)
	if err != nil {
		return err
	}

	d := DefaultEnvelopeParams()
	p.AttackMs = r.Float32Or(d.AttackMs)
	p.DecayMs = r.Float32Or(d.DecayMs)
	p.Sustain = r.Float32Or(d.Sustain)
	p.ReleaseMs = r.Float32Or(d.ReleaseMs)

	return nil
}

func (p EnvelopeParams) Validate() error {
	for _, f := range []struct {
		name string
		v    float32
	}{{"attack_ms", p.AttackMs}, {"decay_ms", p.DecayMs}, {"release_ms", p.ReleaseMs}} {
		if !(f.v >= 0 && f.v <= maxEnvelopeMs) {
			return fmt.Errorf("%s must be in [0, %d]: %f", f.name, maxEnvelopeMs, f.v)
		}
	}

	if !(p.Sustain >= 0 && p.Sustain <= 1) {
		return fmt.Errorf("sustain must be in [0, 1]: %f", p.Sustain)
	}

	return nil
}

// PitchShiftParams configures the pitch shifter.
type PitchShiftParams struct {
	// OffsetCents is clamped to [-1200, 1200] at processing time.
	OffsetCents float32
}

func (p PitchShiftParams) MarshalBinary() ([]byte, error) {
	return param.NewWriter(PitchShiftDescriptor.StructID).Float32(p.OffsetCents).Bytes(), nil
}

func (p *PitchShiftParams) UnmarshalBinary(blob []byte) error {
	r, err := decode(PitchShiftDescriptor, blob)
	if err != nil {
		return err
	}

	p.OffsetCents = r.Float32Or(0)

	return nil
}

func (p PitchShiftParams) Validate() error {
	return finite32("offset_cents", p.OffsetCents)
}

// MixerParams configures the per-voice mixer stage.
type MixerParams struct {
	GainL float32
	GainR float32
	// Pan is in [-1, 1]; 0 is centre.
	Pan float32
	// Normalize scales the output by 1/N for N inbound patches when non-zero.
	Normalize uint32
}

func DefaultMixerParams() MixerParams {
	return MixerParams{GainL: 1, GainR: 1}
}

func (p MixerParams) MarshalBinary() ([]byte, error) {
	return param.NewWriter(MixerDescriptor.StructID).
		Float32(p.GainL).Float32(p.GainR).Float32(p.Pan).Uint32(p.Normalize).Bytes(), nil
}

func (p *MixerParams) UnmarshalBinary(blob []byte) error {
	r, err := decode(MixerDescriptor, blob)
	if err != nil {
		return err
	}

	d := DefaultMixerParams()
	p.GainL = r.Float32Or(d.GainL)
	p.GainR = r.Float32Or(d.GainR)
	p.Pan = r.Float32Or(d.Pan)
	p.Normalize = r.Uint32Or(d.Normalize)

	return nil
}

func (p MixerParams) Validate() error {
	if err := finite32("gain_l", p.GainL); err != nil {
		return err
	}

	if err := finite32("gain_r", p.GainR); err != nil {
		return err
	}

	if !(p.Pan >= -1 && p.Pan <= 1) {
		return fmt.Errorf("pan must be in [-1, 1]: %f", p.Pan)
	}

	return nil
}

// CompressorParams configures the soft-knee compressor.
type CompressorParams struct {
	ThresholdDB float32
	Ratio       float32
	KneeDB      float32
	AttackMs    float32
	ReleaseMs   float32
	// MakeupDB of NaN selects automatic makeup gain.
	MakeupDB float32
}

func DefaultCompressorParams() CompressorParams {
	return CompressorParams{
		ThresholdDB: -20,
		Ratio:       4,
		KneeDB:      6,
		AttackMs:    10,
		ReleaseMs:   100,
		MakeupDB:    float32(math.NaN()),
	}
}

func (p CompressorParams) MarshalBinary() ([]byte, error) {
	return param.NewWriter(CompressorDescriptor.StructID).
		Float32(p.ThresholdDB).Float32(p.Ratio).Float32(p.KneeDB).
		Float32(p.AttackMs).Float32(p.ReleaseMs).Float32(p.MakeupDB).Bytes(), nil
}

func (p *CompressorParams) UnmarshalBinary(blob []byte) error {
	r, err := decode(CompressorDescriptor, blob)
	if err != nil {
		return err
	}

	d := DefaultCompressorParams()
	p.ThresholdDB = r.Float32Or(d.ThresholdDB)
	p.Ratio = r.Float32Or(d.Ratio)
	p.KneeDB = r.Float32Or(d.KneeDB)
	p.AttackMs = r.Float32Or(d.AttackMs)
	p.ReleaseMs = r.Float32Or(d.ReleaseMs)
	p.MakeupDB = r.Float32Or(d.MakeupDB)

	return nil
}

func (p CompressorParams) Validate() error {
	if p.ThresholdDB > 0 || finite32("threshold_db", p.ThresholdDB) != nil {
		return fmt.Errorf("threshold_db must be <= 0 and finite: %f", p.ThresholdDB)
	}

	if !(p.Ratio >= 1) || finite32("ratio", p.Ratio) != nil {
		return fmt.Errorf("ratio must be >= 1 and finite: %f", p.Ratio)
	}

	if p.KneeDB < 0 || finite32("knee_db", p.KneeDB) != nil {
		return fmt.Errorf("knee_db must be >= 0 and finite: %f", p.KneeDB)
	}

	if !(p.AttackMs > 0) || finite32("attack_ms", p.AttackMs) != nil {
		return fmt.Errorf("attack_ms must be positive and finite: %f", p.AttackMs)
	}

	if !(p.ReleaseMs > 0) || finite32("release_ms", p.ReleaseMs) != nil {
		return fmt.Errorf("release_ms must be positive and finite: %f", p.ReleaseMs)
	}

	if math.IsInf(float64(p.MakeupDB), 0) {
		return fmt.Errorf("makeup_db must be finite or NaN: %f", p.MakeupDB)
	}

	return nil
}

// ReverbParams configures the FDN reverb.
type ReverbParams struct {
	RT60      float32
	Damp      float32
	Wet       float32
	Dry       float32
	PreDelay  float32
	ModDepth  float32
	ModRateHz float32
}

func DefaultReverbParams() ReverbParams {
	return ReverbParams{
		RT60:      1.8,
		Damp:      0.3,
		Wet:       0.25,
		Dry:       1,
		PreDelay:  0.01,
		ModDepth:  0.002,
		ModRateHz: 0.1,
	}
}

func (p ReverbParams) MarshalBinary() ([]byte, error) {
	return param.NewWriter(ReverbDescriptor.StructID).
		Float32(p.RT60).Float32(p.Damp).Float32(p.Wet).Float32(p.Dry).
		Float32(p.PreDelay).Float32(p.ModDepth).Float32(p.ModRateHz).Bytes(), nil
}

func (p *ReverbParams) UnmarshalBinary(blob []byte) error {
	r, err := decode(ReverbDescriptor, blob)
	if err != nil {
		return err
	}

	d := DefaultReverbParams()
	p.RT60 = r.Float32Or(d.RT60)
	p.Damp = r.Float32Or(d.Damp)
	p.Wet = r.Float32Or(d.Wet)
	p.Dry = r.Float32Or(d.Dry)
	p.PreDelay = r.Float32Or(d.PreDelay)
	p.ModDepth = r.Float32Or(d.ModDepth)
	p.ModRateHz = r.Float32Or(d.ModRateHz)

	return nil
}

func (p ReverbParams) Validate() error {
	if !(p.RT60 > 0) || finite32("rt60_s", p.RT60) != nil {
		return fmt.Errorf("rt60_s must be positive and finite: %f", p.RT60)
	}

	if !(p.Damp >= 0 && p.Damp <= 0.99) {
		return fmt.Errorf("damp must be in [0, 0.99]: %f", p.Damp)
	}

	if err := finite32("wet", p.Wet); err != nil {
		return err
	}

	if err := finite32("dry", p.Dry); err != nil {
		return err
	}

	if !(p.PreDelay >= 0 && p.PreDelay <= 1) {
		return fmt.Errorf("predelay_s must be in [0, 1]: %f", p.PreDelay)
	}

	if !(p.ModDepth >= 0 && p.ModDepth <= 0.01) {
		return fmt.Errorf("mod_depth_s must be in [0, 0.01]: %f", p.ModDepth)
	}

	if !(p.ModRateHz >= 0 && p.ModRateHz <= 10) {
		return fmt.Errorf("mod_rate_hz must be in [0, 10]: %f", p.ModRateHz)
	}

	return nil
}

// DelayParams configures the feedback delay.
type DelayParams struct {
	DelayMs  float32
	Feedback float32
	Wet      float32
	Dry      float32
}

func DefaultDelayParams() DelayParams {
	return DelayParams{DelayMs: 250, Feedback: 0.35, Wet: 0.35, Dry: 1}
}

func (p DelayParams) MarshalBinary() ([]byte, error) {
	return param.NewWriter(DelayDescriptor.StructID).
		Float32(p.DelayMs).Float32(p.Feedback).Float32(p.Wet).Float32(p.Dry).Bytes(), nil
}

func (p *DelayParams) UnmarshalBinary(blob []byte) error {
	r, err := decode(DelayDescriptor, blob)
	if err != nil {
		return err
	}

	d := DefaultDelayParams()
	p.DelayMs = r.Float32Or(d.DelayMs)
	p.Feedback = r.Float32Or(d.Feedback)
	p.Wet = r.Float32Or(d.Wet)
	p.Dry = r.Float32Or(d.Dry)

	return nil
}

func (p DelayParams) Validate() error {
	if !(p.DelayMs >= 1 && p.DelayMs <= maxDelayMs) {
		return fmt.Errorf("delay_ms must be in [1, %d]: %f", maxDelayMs, p.DelayMs)
	}

	if !(p.Feedback >= 0 && p.Feedback < 0.99) {
		return fmt.Errorf("feedback must be in [0, 0.99): %f", p.Feedback)
	}

	if err := finite32("wet", p.Wet); err != nil {
		return err
	}

	return finite32("dry", p.Dry)
}

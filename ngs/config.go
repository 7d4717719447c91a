package ngs

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/ngs/module"
)

// Config defines the engine-wide properties of a System.
type Config struct {
	SampleRate float64
	Channels   int
	// Quantum is the number of frames rendered per tick.
	Quantum            int
	MaxRacks           int
	MaxVoices          int
	MaxModulesPerVoice int
	Logger             *slog.Logger
	Registry           *module.Registry
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns a stereo 48 kHz engine with a 256-frame quantum.
func DefaultConfig() Config {
	return Config{
		SampleRate:         48000,
		Channels:           2,
		Quantum:            256,
		MaxRacks:           64,
		MaxVoices:          1024,
		MaxModulesPerVoice: 16,
	}
}

// WithSampleRate sets the engine sample rate.
func WithSampleRate(sampleRate float64) Option {
	return func(cfg *Config) {
		if dspmath.IsFinitePositive(sampleRate) {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithChannels sets the output channel count.
func WithChannels(channels int) Option {
	return func(cfg *Config) {
		if channels > 0 {
			cfg.Channels = channels
		}
	}
}

// WithQuantum sets the frames rendered per tick.
func WithQuantum(frames int) Option {
	return func(cfg *Config) {
		if frames > 0 {
			cfg.Quantum = frames
		}
	}
}

// WithMaxRacks limits the number of live racks.
func WithMaxRacks(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxRacks = n
		}
	}
}

// WithMaxVoices limits the total voices across all live racks.
func WithMaxVoices(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxVoices = n
		}
	}
}

// WithMaxModulesPerVoice limits the chain length of a rack template.
func WithMaxModulesPerVoice(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxModulesPerVoice = n
		}
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// WithRegistry replaces the built-in module registry.
func WithRegistry(r *module.Registry) Option {
	return func(cfg *Config) {
		if r != nil {
			cfg.Registry = r
		}
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}

func (c Config) validate() error {
	if !dspmath.IsFinitePositive(c.SampleRate) {
		return fmt.Errorf("%w: sample rate must be positive and finite: %f", ErrInvalidArgument, c.SampleRate)
	}

	if c.Channels <= 0 || c.Channels > 8 {
		return fmt.Errorf("%w: channel count must be in [1, 8]: %d", ErrInvalidArgument, c.Channels)
	}

	if c.Quantum <= 0 {
		return fmt.Errorf("%w: quantum must be > 0: %d", ErrInvalidArgument, c.Quantum)
	}

	if c.MaxRacks <= 0 || c.MaxVoices <= 0 || c.MaxModulesPerVoice <= 0 {
		return fmt.Errorf("%w: limits must be > 0: racks %d, voices %d, modules %d",
			ErrInvalidArgument, c.MaxRacks, c.MaxVoices, c.MaxModulesPerVoice)
	}

	return nil
}

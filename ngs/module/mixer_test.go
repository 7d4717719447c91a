package module

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-ngs/internal/testutil"
)

func TestPanGains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pan         float64
		left, right float64
	}{
		{0, 1, 1},
		{-1, math.Sqrt2, 0},
		{1, 0, math.Sqrt2},
	}

	for _, tt := range tests {
		l, r := PanGains(tt.pan)
		if math.Abs(l-tt.left) > 1e-12 || math.Abs(r-tt.right) > 1e-12 {
			t.Errorf("PanGains(%v) = %v, %v; want %v, %v", tt.pan, l, r, tt.left, tt.right)
		}
	}
}

func TestMixerGainPanAndNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		params      MixerParams
		inbound     int
		left, right float64
	}{
		{"unity", DefaultMixerParams(), 0, 1, 1},
		{"gains", MixerParams{GainL: 0.5, GainR: 2}, 0, 0.5, 2},
		{"hard left", MixerParams{GainL: 1, GainR: 1, Pan: -1}, 0, math.Sqrt2, 0},
		{"normalized by four patches", MixerParams{GainL: 1, GainR: 1, Normalize: 1}, 4, 0.25, 0.25},
		{"normalize ignores single patch", MixerParams{GainL: 1, GainR: 1, Normalize: 1}, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := NewMixer(testConfig(2))
			if err != nil {
				t.Fatalf("NewMixer: %v", err)
			}

			s := storageFor(t, MixerDescriptor, tt.params)

			b := NewBlock(2, 16)
			copy(b.Channels[0], testutil.DC(1, 16))
			copy(b.Channels[1], testutil.DC(1, 16))

			ctx := Context{SampleRate: testRate, Block: b, Topology: stubTopology(tt.inbound)}
			if _, err := m.Process(&ctx, s); err != nil {
				t.Fatalf("Process: %v", err)
			}

			if math.Abs(b.Channels[0][3]-tt.left) > 1e-6 || math.Abs(b.Channels[1][3]-tt.right) > 1e-6 {
				t.Fatalf("got %v / %v, want %v / %v", b.Channels[0][3], b.Channels[1][3], tt.left, tt.right)
			}
		})
	}
}

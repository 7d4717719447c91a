package module

import (
	"encoding"
	"testing"

	"github.com/cwbudde/algo-ngs/ngs/param"
)

const testRate = 48000.0

func testConfig(channels int) Config {
	return Config{SampleRate: testRate, Channels: channels, MaxFrames: 4096}
}

type stubTopology int

func (s stubTopology) InboundPatches() int { return int(s) }

// storageFor returns slot storage holding the encoded params; a nil
// marshaler leaves the storage empty.
func storageFor(t *testing.T, d param.Descriptor, m encoding.BinaryMarshaler) *param.Storage {
	t.Helper()

	s := param.NewStorage(d)
	if m == nil {
		return s
	}

	setParams(t, s, m)

	return s
}

func setParams(t *testing.T, s *param.Storage, m encoding.BinaryMarshaler) {
	t.Helper()

	blob, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	if err := s.Set(blob); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

// runBlocks feeds input through m in blocks of size block and returns the output.
func runBlocks(t *testing.T, m Module, s *param.Storage, input []float64, block int, ctx Context) []float64 {
	t.Helper()

	out := make([]float64, 0, len(input))
	b := NewBlock(1, block)

	for pos := 0; pos < len(input); pos += block {
		n := min(block, len(input)-pos)
		b.Resize(n)
		copy(b.Channels[0], input[pos:pos+n])

		c := ctx
		c.SampleRate = testRate
		c.Block = b

		if _, err := m.Process(&c, s); err != nil {
			t.Fatalf("Process at %d: %v", pos, err)
		}

		out = append(out, b.Channels[0]...)
	}

	return out
}

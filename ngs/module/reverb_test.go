package module

import (
	"testing"

	"github.com/cwbudde/algo-ngs/internal/testutil"
)

func TestReverbImpulseTailIsFiniteAndDecays(t *testing.T) {
	t.Parallel()

	r, err := NewReverb(testConfig(1))
	if err != nil {
		t.Fatalf("NewReverb: %v", err)
	}

	s := storageFor(t, ReverbDescriptor, ReverbParams{RT60: 0.5, Damp: 0.2, Wet: 1, Dry: 0})

	input := make([]float64, 48000)
	input[0] = 1

	out := runBlocks(t, r, s, input, 512, Context{})
	testutil.RequireFinite(t, out)

	early := testutil.RMS(out[:12000])
	late := testutil.RMS(out[36000:])

	if early == 0 {
		t.Fatal("no reverb tail")
	}

	if late > early*0.01 {
		t.Fatalf("tail did not decay: early rms %g, late rms %g", early, late)
	}
}

func TestReverbResetRestoresState(t *testing.T) {
	t.Parallel()

	r, _ := NewReverb(testConfig(1))
	s := storageFor(t, ReverbDescriptor, nil)

	input := make([]float64, 4096)
	input[0] = 1

	first := runBlocks(t, r, s, input, 256, Context{})

	r.Reset()

	second := runBlocks(t, r, s, input, 256, Context{})
	testutil.RequireSliceNearlyEqual(t, second, first, 1e-12)
}

func TestReverbReportsDoneDuringRelease(t *testing.T) {
	t.Parallel()

	r, _ := NewReverb(testConfig(2))
	s := storageFor(t, ReverbDescriptor, ReverbParams{RT60: 0.2, Wet: 1, Dry: 1})

	b := NewBlock(2, 480)
	b.Channels[0][0] = 1
	b.Channels[1][0] = 1

	ctx := Context{SampleRate: testRate, Block: b, Releasing: true}

	for i := range 500 {
		status, err := r.Process(&ctx, s)
		if err != nil {
			t.Fatalf("block %d: %v", i, err)
		}

		if status.Has(StatusDone) {
			if i == 0 {
				t.Fatal("done on the block carrying the impulse")
			}

			return
		}

		b.Zero()
	}

	t.Fatal("reverb never reported done")
}

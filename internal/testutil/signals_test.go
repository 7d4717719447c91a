package testutil

import (
	"math"
	"testing"
)

func TestDeterministicSine(t *testing.T) {
	s := DeterministicSine(1000, 48000, 1.0, 48)
	if len(s) != 48 {
		t.Fatalf("len = %d, want 48", len(s))
	}

	if math.Abs(s[0]) > 1e-15 {
		t.Fatalf("s[0] = %v, want 0", s[0])
	}

	for i, v := range s {
		if v < -1 || v > 1 {
			t.Fatalf("s[%d] = %v out of range", i, v)
		}
	}
}

func TestDeterministicNoise(t *testing.T) {
	a := DeterministicNoise(42, 1.0, 64)
	b := DeterministicNoise(42, 1.0, 64)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("noise not deterministic at index %d", i)
		}
	}

	c := DeterministicNoise(43, 1.0, 64)

	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}

	if same {
		t.Fatal("different seeds produced identical noise")
	}
}

func TestInterleaveRoundTrip(t *testing.T) {
	l := []float64{0.25, 0.5}
	r := []float64{-0.25, -0.5}

	inter := Interleave(l, r)
	if len(inter) != 4 || inter[1] != -0.25 || inter[2] != 0.5 {
		t.Fatalf("unexpected interleave: %v", inter)
	}

	planar := Deinterleave(inter, 2)
	RequireSliceNearlyEqual(t, planar[0], l, 0)
	RequireSliceNearlyEqual(t, planar[1], r, 0)
}

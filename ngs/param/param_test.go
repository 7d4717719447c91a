package param

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

const testStructID = 0x01015CEA

var testDesc = Descriptor{StructID: testStructID, Size: 16, BufferSize: 24}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"header only", NewWriter(testStructID).Bytes(), nil},
		{"full", NewWriter(testStructID).Float32(1).Float32(2).Bytes(), nil},
		{"too large", NewWriter(testStructID).Float32(1).Float32(2).Float32(3).Bytes(), ErrParamTooLarge},
		{"bad struct id", NewWriter(0xDEADBEEF).Float32(1).Bytes(), ErrBadStructID},
		{"shorter than header", []byte{1, 2, 3}, ErrParamTruncated},
		{"empty", nil, ErrParamTruncated},
		{"size field overstates", append(NewWriter(testStructID).Float32(1).Bytes()[:8], 0, 0), ErrParamTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(testDesc, tt.blob)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				return
			}

			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStorageRoundTripAllSizes(t *testing.T) {
	t.Parallel()

	s := NewStorage(testDesc)

	for n := HeaderSize; n <= testDesc.Size; n++ {
		blob := make([]byte, n)
		copy(blob, NewWriter(testStructID).Bytes())
		// Keep the declared size honest for the current length.
		blob[4] = byte(n)

		for i := HeaderSize; i < n; i++ {
			blob[i] = byte(i * 7)
		}

		if err := s.Set(blob); err != nil {
			t.Fatalf("len %d: unexpected error: %v", n, err)
		}

		if got := s.Bytes(); !bytes.Equal(got, blob) {
			t.Fatalf("len %d: read back %v, want %v", n, got, blob)
		}
	}
}

func TestStorageUnchangedOnError(t *testing.T) {
	t.Parallel()

	s := NewStorage(testDesc)

	good := NewWriter(testStructID).Float32(0.5).Bytes()
	if err := s.Set(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	version := s.Version()

	oversized := make([]byte, testDesc.Size+1)
	copy(oversized, NewWriter(testStructID).Bytes())

	if err := s.Set(oversized); !errors.Is(err, ErrParamTooLarge) {
		t.Fatalf("got %v, want ErrParamTooLarge", err)
	}

	if err := s.Set(NewWriter(0x1234).Bytes()); !errors.Is(err, ErrBadStructID) {
		t.Fatalf("got %v, want ErrBadStructID", err)
	}

	if !bytes.Equal(s.Bytes(), good) {
		t.Fatalf("storage changed after failed sets: %v", s.Bytes())
	}

	if s.Version() != version {
		t.Fatalf("version moved from %d to %d on failure", version, s.Version())
	}
}

func TestStorageDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	s := NewStorage(testDesc)
	blob := NewWriter(testStructID).Float32(1).Bytes()

	if err := s.Set(blob); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blob[HeaderSize] = 0xFF

	if s.View()[HeaderSize] == 0xFF {
		t.Fatal("storage aliases guest memory")
	}
}

func TestStorageShrinkClearsTail(t *testing.T) {
	t.Parallel()

	s := NewStorage(testDesc)

	if err := s.Set(NewWriter(testStructID).Float32(1).Float32(2).Bytes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Set(NewWriter(testStructID).Float32(3).Bytes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := NewReader(s.View())
	if r.Float32() != 3 || r.Float32() != 0 {
		t.Fatal("stale trailing field survived a shorter set")
	}
}

func TestReaderWriterLayout(t *testing.T) {
	t.Parallel()

	blob := NewWriter(0x01020304).Float32(-1.5).Int32(-2).Uint32(7).Bytes()

	want := []byte{
		0x04, 0x03, 0x02, 0x01, // struct id
		20, 0, 0, 0, // size
		0x00, 0x00, 0xC0, 0xBF, // -1.5f
		0xFE, 0xFF, 0xFF, 0xFF, // -2
		7, 0, 0, 0,
	}
	if !bytes.Equal(blob, want) {
		t.Fatalf("layout = % X, want % X", blob, want)
	}

	r := NewReader(blob)
	if got := r.Float32(); got != -1.5 {
		t.Fatalf("f32 = %v", got)
	}

	if got := r.Int32(); got != -2 {
		t.Fatalf("i32 = %v", got)
	}

	if got := r.Uint32(); got != 7 {
		t.Fatalf("u32 = %v", got)
	}

	if got := r.Float32(); got != 0 || math.Signbit(float64(got)) {
		t.Fatalf("missing field = %v, want 0", got)
	}
}

func TestReaderDefaultsAndDeclaredSize(t *testing.T) {
	t.Parallel()

	blob := NewWriter(testStructID).Float32(2).Bytes()
	// Trailing garbage past the declared size must not be decoded.
	blob = append(blob, 0, 0, 0x80, 0x3F)

	r := NewReader(blob)
	if got := r.Float32Or(9); got != 2 {
		t.Fatalf("first field = %v, want 2", got)
	}

	if got := r.Float32Or(9); got != 9 {
		t.Fatalf("field beyond declared size = %v, want default 9", got)
	}

	if got := r.Int32Or(-1); got != -1 {
		t.Fatalf("i32 default = %v", got)
	}

	if r.Remaining() != 0 {
		t.Fatalf("remaining = %d", r.Remaining())
	}
}

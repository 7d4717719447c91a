// Package param implements the NGS parameter codec: validation of guest
// parameter blobs against a module descriptor, voice-owned storage, and the
// little-endian field codecs that reproduce the emulated ABI layout.
//
// Every blob starts with an 8-byte header:
//
//	offset 0  u32  structure id
//	offset 4  u32  size of the whole blob in bytes
//
// followed by the module's fields in declaration order, with no padding.
package param

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the descriptor header that starts every blob.
const HeaderSize = 8

var (
	// ErrParamTooLarge is returned when a blob exceeds the module's maximum parameter size.
	ErrParamTooLarge = errors.New("parameter blob too large")
	// ErrBadStructID is returned when a blob's structure id does not match the module.
	ErrBadStructID = errors.New("bad parameter structure id")
	// ErrParamTruncated is returned when a blob is shorter than its header claims.
	ErrParamTruncated = errors.New("parameter blob truncated")
)

// Descriptor declares the binary parameter contract of one module kind.
type Descriptor struct {
	// StructID is the constant guest binaries write into the blob header.
	StructID uint32
	// Size is the maximum accepted blob length in bytes.
	Size int
	// BufferSize is the voice storage reserved for the module. It may exceed
	// Size to include transient working state.
	BufferSize int
}

// Valid reports whether d can describe any blob at all.
func (d Descriptor) Valid() bool {
	return d.Size >= HeaderSize && d.BufferSize >= d.Size
}

// Header decodes the blob header. ok is false for blobs shorter than HeaderSize.
func Header(blob []byte) (structID, size uint32, ok bool) {
	if len(blob) < HeaderSize {
		return 0, 0, false
	}

	return binary.LittleEndian.Uint32(blob[0:4]), binary.LittleEndian.Uint32(blob[4:8]), true
}

// Validate checks blob against d without mutating anything.
func Validate(d Descriptor, blob []byte) error {
	if len(blob) > d.Size {
		return fmt.Errorf("%w: %d bytes, max %d", ErrParamTooLarge, len(blob), d.Size)
	}

	id, size, ok := Header(blob)
	if !ok {
		return fmt.Errorf("%w: %d bytes, header needs %d", ErrParamTruncated, len(blob), HeaderSize)
	}

	if id != d.StructID {
		return fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrBadStructID, id, d.StructID)
	}

	if int(size) > len(blob) {
		return fmt.Errorf("%w: header declares %d bytes, blob has %d", ErrParamTruncated, size, len(blob))
	}

	return nil
}

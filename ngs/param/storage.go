package param

// Storage is the voice-owned copy of one module slot's parameters.
//
// Storage never aliases guest memory: Set copies the blob. It is not safe for
// concurrent use; the owning voice's lock guards it.
type Storage struct {
	desc    Descriptor
	buf     []byte
	n       int
	version uint64
}

// NewStorage allocates storage sized to d.BufferSize.
func NewStorage(d Descriptor) *Storage {
	return &Storage{
		desc: d,
		buf:  make([]byte, max(d.BufferSize, d.Size)),
	}
}

// Descriptor returns the descriptor the storage validates against.
func (s *Storage) Descriptor() Descriptor { return s.desc }

// Set validates blob and copies it into the storage. On error the stored
// bytes are left unchanged.
func (s *Storage) Set(blob []byte) error {
	err := Validate(s.desc, blob)
	if err != nil {
		return err
	}

	n := copy(s.buf, blob)
	if n < s.n {
		clear(s.buf[n:s.n])
	}

	s.n = n
	s.version++

	return nil
}

// Bytes returns a copy of the stored blob.
func (s *Storage) Bytes() []byte {
	out := make([]byte, s.n)
	copy(out, s.buf[:s.n])

	return out
}

// View returns the stored blob without copying. The slice is only valid
// while the caller holds the owning voice's lock.
func (s *Storage) View() []byte {
	return s.buf[:s.n]
}

// Len returns the stored blob length; 0 means no parameters were set.
func (s *Storage) Len() int { return s.n }

// Version increments on every successful Set. Modules use it to cache
// decoded parameters.
func (s *Storage) Version() uint64 { return s.version }

// Reset drops the stored blob.
func (s *Storage) Reset() {
	clear(s.buf)
	s.n = 0
	s.version++
}

// Package lockutil provides the locking primitives used by the NGS engine.
package lockutil

import (
	"sync"
	"sync/atomic"
)

// Owner identifies the holder of a RecursiveMutex. Go exposes no goroutine
// identity, so every call path that may re-enter the lock carries its own
// token.
type Owner uint64

var ownerSeq atomic.Uint64

// NewOwner returns a process-unique, non-zero owner token.
func NewOwner() Owner {
	return Owner(ownerSeq.Add(1))
}

// RecursiveMutex is a mutex that the same Owner may lock repeatedly.
// Each Lock must be paired with an Unlock by the same owner.
//
// The zero value is an unlocked mutex.
type RecursiveMutex struct {
	mu    sync.Mutex
	cond  sync.Cond
	owner Owner
	depth int
}

func (m *RecursiveMutex) init() {
	if m.cond.L == nil {
		m.cond.L = &m.mu
	}
}

// Lock acquires the mutex for o, blocking while another owner holds it.
func (m *RecursiveMutex) Lock(o Owner) {
	if o == 0 {
		panic("lockutil: zero owner")
	}

	m.mu.Lock()
	m.init()

	for m.depth > 0 && m.owner != o {
		m.cond.Wait()
	}

	m.owner = o
	m.depth++
	m.mu.Unlock()
}

// TryLock acquires the mutex for o without blocking and reports success.
func (m *RecursiveMutex) TryLock(o Owner) bool {
	if o == 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.init()

	if m.depth > 0 && m.owner != o {
		return false
	}

	m.owner = o
	m.depth++

	return true
}

// Unlock releases one level of ownership held by o.
// It panics if o does not hold the mutex.
func (m *RecursiveMutex) Unlock(o Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.init()

	if m.depth == 0 || m.owner != o {
		panic("lockutil: unlock of mutex not held by owner")
	}

	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.cond.Broadcast()
	}
}

// HeldBy reports whether o currently holds the mutex.
func (m *RecursiveMutex) HeldBy(o Owner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.depth > 0 && m.owner == o
}

// Depth returns the current recursion depth (0 when unlocked).
func (m *RecursiveMutex) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.depth
}

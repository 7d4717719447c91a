// Package delayline implements the circular delay lines behind the delay
// and reverb modules.
package delayline

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-ngs/internal/dspmath"
)

const minSize = 4

// Line is a circular delay line.
type Line struct {
	buffer   []float64
	writePos int
}

// New returns a delay line of fixed size.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("delay size must be > 0: %d", size)
	}

	return &Line{buffer: make([]float64, max(size, minSize))}, nil
}

// Len returns internal buffer size.
func (d *Line) Len() int {
	return len(d.buffer)
}

// MaxDelay returns the largest delay ReadFractional accepts.
func (d *Line) MaxDelay() float64 {
	return float64(len(d.buffer) - 3)
}

// Resize changes the buffer size, clearing its contents when it changes.
func (d *Line) Resize(size int) {
	size = max(size, minSize)
	if size == len(d.buffer) {
		return
	}

	d.buffer = make([]float64, size)
	d.writePos = 0
}

// Write writes one sample.
func (d *Line) Write(sample float64) {
	if len(d.buffer) == 0 {
		return
	}

	d.buffer[d.writePos] = sample

	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
}

// Read reads an integer delay in samples. Delay 1 is the most recent sample.
func (d *Line) Read(delay int) float64 {
	size := len(d.buffer)
	if size == 0 {
		return 0
	}

	delay %= size
	if delay < 0 {
		delay += size
	}

	readPos := (d.writePos - delay + size) % size

	return d.buffer[readPos]
}

// ReadFractional reads with cubic Hermite interpolation.
func (d *Line) ReadFractional(delay float64) float64 {
	if len(d.buffer) == 0 {
		return 0
	}

	delay = dspmath.Clamp(delay, 1, d.MaxDelay())

	p := int(math.Floor(delay))
	t := delay - float64(p)

	xm1 := d.Read(max(1, p-1))
	x0 := d.Read(p)
	x1 := d.Read(p + 1)
	x2 := d.Read(p + 2)

	return dspmath.Hermite4(t, xm1, x0, x1, x2)
}

// Reset clears line state.
func (d *Line) Reset() {
	dspmath.Zero(d.buffer)
	d.writePos = 0
}

//go:build headless

package backend

import "sync"

// Device stands in for the audio output in headless builds. Nothing pulls
// from it on its own; Read renders on demand.
type Device struct {
	src      Puller
	channels int

	mu      sync.Mutex
	buf     []float32
	started bool
}

// OpenDevice returns a silent device.
func OpenDevice(src Puller, sampleRate, channels int) (*Device, error) {
	return &Device{src: src, channels: channels}, nil
}

// Read renders from the engine like the real device callback.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = fillBytes(d.src, d.buf, d.channels, p)

	return len(p), nil
}

// Start marks the device started.
func (d *Device) Start() {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
}

// Close marks the device stopped.
func (d *Device) Close() error {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()

	return nil
}

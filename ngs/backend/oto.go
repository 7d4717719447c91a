//go:build !headless

package backend

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Device plays an engine through the host's default audio output. oto
// allows one context per process, so open at most one Device.
type Device struct {
	ctx      *oto.Context
	player   *oto.Player
	src      Puller
	channels int

	mu      sync.Mutex
	buf     []float32
	started bool
}

// OpenDevice opens the output at the engine's rate and channel count.
func OpenDevice(src Puller, sampleRate, channels int) (*Device, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: oto: %w", err)
	}
	<-ready

	d := &Device{ctx: ctx, src: src, channels: channels}
	d.player = ctx.NewPlayer(d)

	return d, nil
}

// Read is the device callback; it renders straight from the engine.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = fillBytes(d.src, d.buf, d.channels, p)

	return len(p), nil
}

// Start begins playback.
func (d *Device) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		d.player.Play()
		d.started = true
	}
}

// Close stops playback and releases the player.
func (d *Device) Close() error {
	d.mu.Lock()
	started := d.started
	d.started = false
	d.mu.Unlock()

	if !started {
		return nil
	}

	return d.player.Close()
}

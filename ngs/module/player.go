package module

import (
	"errors"
	"io"
	"math"

	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/ngs/param"
	"github.com/cwbudde/algo-ngs/ngs/source"
)

const (
	playerReadFrames = 512
	// maxPlayerRatio bounds source frames consumed per output frame.
	maxPlayerRatio = 16
	maxPlaybackHz  = 768000
)

// Player pulls PCM from the voice's attached source and resamples it to the
// engine rate with 4-point Hermite interpolation. Without a source it
// passes its input through.
type Player struct {
	params   paramCache[PlayerParams, *PlayerParams]
	channels int

	started   bool
	ended     bool
	pad       int
	loopsLeft int32
	frac      float64

	// hist[c] holds four consecutive source frames; output is
	// interpolated between hist[c][1] and hist[c][2].
	hist [][4]float64

	readBuf []float32
	readPos int
	readLen int
	frame   []float64
}

// NewPlayer builds an idle player.
func NewPlayer(cfg Config) (*Player, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	return &Player{
		params:   newParamCache[PlayerParams](DefaultPlayerParams()),
		channels: cfg.Channels,
		hist:     make([][4]float64, cfg.Channels),
		frame:    make([]float64, cfg.Channels),
	}, nil
}

func newPlayerModule(cfg Config) (Module, error) { return NewPlayer(cfg) }

func (p *Player) Kind() Kind { return KindPlayer }
func (p *Player) ModuleID() uint32 { return PlayerModuleID }
func (p *Player) MaxParameterSize() int { return PlayerDescriptor.Size }
func (p *Player) BufferParameterSize() int { return PlayerDescriptor.BufferSize }

// Reset rewinds playback state. The source itself is not rewound.
func (p *Player) Reset() {
	p.started = false
	p.ended = false
	p.pad = 0
	p.frac = 0
	p.readPos = 0
	p.readLen = 0

	for c := range p.hist {
		p.hist[c] = [4]float64{}
	}
}

// Process renders ctx.Block from the attached source.
func (p *Player) Process(ctx *Context, storage *param.Storage) (Status, error) {
	params, _, err := p.params.load(storage)
	if err != nil {
		return 0, faultf(KindPlayer, "%v", err)
	}

	src := ctx.Source
	if src == nil {
		return 0, nil
	}

	format := src.Format()

	err = format.Validate()
	if err != nil {
		return 0, faultf(KindPlayer, "%v", err)
	}

	if len(ctx.Block.Channels) > p.channels {
		return 0, faultf(KindPlayer, "block has %d channels, module built for %d",
			len(ctx.Block.Channels), p.channels)
	}

	if !p.started {
		p.started = true
		p.loopsLeft = params.LoopCount

		for range 3 {
			err = p.advance(src, format)
			if err != nil {
				return 0, faultf(KindPlayer, "%v", err)
			}
		}
	}

	rate := float64(params.PlaybackHz)
	if rate == 0 {
		rate = float64(format.SampleRate)
	}

	step := rate * float64(params.Scaling) / ctx.SampleRate
	if !(step <= maxPlayerRatio) {
		return 0, faultf(KindPlayer, "playback ratio %g exceeds %d", step, maxPlayerRatio)
	}

	frames := ctx.Block.Frames()
	for i := range frames {
		for c, ch := range ctx.Block.Channels {
			h := &p.hist[c]
			ch[i] = dspmath.Hermite4(p.frac, h[0], h[1], h[2], h[3])
		}

		p.frac += step
		if p.frac < 1 {
			continue
		}

		n := math.Floor(p.frac)
		p.frac -= n

		for range int(n) {
			err = p.advance(src, format)
			if err != nil {
				return 0, faultf(KindPlayer, "%v", err)
			}
		}
	}

	if p.ended && p.pad >= 3 {
		return StatusSourceEnd, nil
	}

	return 0, nil
}

// advance shifts the next source frame into the history.
func (p *Player) advance(src source.Source, format source.Format) error {
	ok, err := p.nextFrame(src, format)
	if err != nil {
		return err
	}

	if ok {
		p.pad = 0
	} else {
		clear(p.frame)
		p.pad++
	}

	for c := range p.hist {
		h := &p.hist[c]
		h[0], h[1], h[2], h[3] = h[1], h[2], h[3], p.frame[c]
	}

	return nil
}

// nextFrame decodes one source frame into p.frame, mapped to the engine's
// channel layout. It handles looping and reports false at the end.
func (p *Player) nextFrame(src source.Source, format source.Format) (bool, error) {
	if p.ended {
		return false, nil
	}

	srcCh := format.Channels

	if p.readPos >= p.readLen {
		loaded, eof, err := p.fill(src, srcCh)
		if err != nil {
			return false, err
		}

		if !loaded {
			// An underrun without EOF plays silence and retries next frame.
			p.ended = eof
			return false, nil
		}
	}

	in := p.readBuf[p.readPos : p.readPos+srcCh]
	p.readPos += srcCh

	if p.channels == 1 && srcCh > 1 {
		sum := 0.0
		for _, v := range in {
			sum += float64(v)
		}

		p.frame[0] = sum / float64(srcCh)

		return true, nil
	}

	for c := range p.frame {
		p.frame[c] = float64(in[c%srcCh])
	}

	return true, nil
}

// fill refills the read buffer, rewinding for loops. eof is set when the
// stream is exhausted.
func (p *Player) fill(src source.Source, srcCh int) (loaded, eof bool, err error) {
	need := playerReadFrames * srcCh
	if cap(p.readBuf) < need {
		p.readBuf = make([]float32, need)
	}

	p.readBuf = p.readBuf[:need]

	// One rewind per missing read is enough; a source that is empty right
	// after a rewind would otherwise spin forever.
	rewound := false

	for {
		var n int

		n, err = src.Read(p.readBuf)
		n -= n % srcCh

		if err != nil && !errors.Is(err, io.EOF) {
			return false, false, err
		}

		if n > 0 {
			p.readPos = 0
			p.readLen = n

			return true, false, nil
		}

		if err == nil {
			return false, false, nil
		}

		if rewound || p.loopsLeft == 0 {
			return false, true, nil
		}

		rw, ok := src.(source.Rewinder)
		if !ok {
			return false, true, nil
		}

		err = rw.Rewind()
		if err != nil {
			return false, false, err
		}

		if p.loopsLeft > 0 {
			p.loopsLeft--
		}

		rewound = true
	}
}

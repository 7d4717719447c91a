// Package wavsource decodes RIFF/WAVE files into engine PCM sources.
package wavsource

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"

	"github.com/cwbudde/algo-ngs/ngs/source"
)

// ErrUnsupported is returned for WAV layouts the decoder cannot map.
var ErrUnsupported = errors.New("wavsource: unsupported wav layout")

// ReaderAt is what the RIFF parser needs from its input.
type ReaderAt interface {
	io.Reader
	io.ReaderAt
}

// Open decodes the WAV file at path.
func Open(path string) (*source.PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return pcm, nil
}

// Decode reads a whole WAV stream into memory as interleaved float32.
// Mono and stereo PCM of any bit depth the parser supports are accepted.
func Decode(r ReaderAt) (*source.PCM, error) {
	wr := wav.NewReader(r)

	format, err := wr.Format()
	if err != nil {
		return nil, fmt.Errorf("wavsource: format: %w", err)
	}

	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupported, channels)
	}

	var samples []float32

	for {
		frames, err := wr.ReadSamples()

		for _, frame := range frames {
			for c := range channels {
				samples = append(samples, float32(wr.FloatValue(frame, uint(c))))
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("wavsource: samples: %w", err)
		}
	}

	return source.NewPCM(source.Format{SampleRate: int(format.SampleRate), Channels: channels}, samples)
}

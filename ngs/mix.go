package ngs

import (
	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-ngs/internal/dspmath"
	"github.com/cwbudde/algo-ngs/ngs/module"
)

// mixPatch accumulates src into dst through vol, clamping every sum to
// [-1, 1]. scratch must hold at least one block of frames.
func mixPatch(dst, src *module.Block, vol *Matrix, scratch []float64) {
	frames := min(dst.Frames(), src.Frames())
	tmp := scratch[:frames]

	for c, out := range dst.Channels {
		if c >= len(src.Channels) {
			break
		}

		if c >= 2 {
			dspmath.SaturatingAdd(out, src.Channels[c], 1)
			continue
		}

		if len(src.Channels) == 1 {
			dspmath.SaturatingAdd(out, src.Channels[0], float64(vol[0][0]))
			continue
		}

		vecmath.ScaleBlock(tmp, src.Channels[0][:frames], float64(vol[c][0]))

		if g := float64(vol[c][1]); g != 0 {
			right := src.Channels[1]
			for i := range tmp {
				tmp[i] += right[i] * g
			}
		}

		dspmath.SaturatingAdd(out, tmp, 1)
	}
}

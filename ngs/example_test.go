package ngs_test

import (
	"fmt"

	"github.com/cwbudde/algo-ngs/ngs"
	"github.com/cwbudde/algo-ngs/ngs/module"
	"github.com/cwbudde/algo-ngs/ngs/source"
)

func ExampleSystem_Pull() {
	sys, err := ngs.Open(ngs.WithSampleRate(48000), ngs.WithChannels(1), ngs.WithQuantum(4))
	if err != nil {
		panic(err)
	}
	defer sys.Close()

	rack, err := sys.CreateRack(ngs.RackDesc{
		Name:    "lead",
		Modules: []module.Kind{module.KindPlayer, module.KindMixer},
		Voices:  1,
	})
	if err != nil {
		panic(err)
	}

	v, _ := sys.AllocVoice(rack)

	pcm, _ := source.NewPCM(source.Format{SampleRate: 48000, Channels: 1},
		[]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})
	_ = sys.AttachSource(rack, v, pcm)

	gain, _ := module.MixerParams{GainL: 2, GainR: 2}.MarshalBinary()
	_ = sys.SetParameter(rack, v, 1, gain)

	_, _ = sys.Connect(ngs.VoicePort(rack, v, 0), ngs.Master())
	_ = sys.KeyOn(rack, v)

	out := make([]float32, 8)
	n := sys.Pull(out)

	fmt.Println(n)

	for _, s := range out {
		fmt.Printf("%.1f ", s)
	}

	fmt.Println()
	// Output:
	// 8
	// 0.2 0.4 0.6 0.8 1.0 1.0 0.0 0.0
}

// Package ngs implements the NGS audio synthesis engine: racks of voices
// running fixed module chains, a bus graph of patches between voice ports
// and the master output, and a scheduler that renders one quantum per tick.
//
// Locking follows one rule: the topology lock is taken before any voice
// lock, never after. The render path holds the topology lock for a whole
// tick and takes each voice lock in turn. Control calls resolve their
// handle under the topology lock and then hold only the target voice's
// lock, so calls on different voices do not block each other.
//
//	sys, err := ngs.Open(ngs.WithSampleRate(48000), ngs.WithChannels(2))
//	rack, err := sys.CreateRack(ngs.RackDesc{
//		Modules: []module.Kind{module.KindPlayer, module.KindEnvelope},
//		Voices:  4,
//	})
//	v, err := sys.AllocVoice(rack)
//	_, err = sys.Connect(ngs.VoicePort(rack, v, 0), ngs.Master())
//	err = sys.KeyOn(rack, v)
//	frames := sys.Pull(buf)
package ngs

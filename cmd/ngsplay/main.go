// Command ngsplay runs the synth engine from a JSON patch file.
//
// Usage:
//
//	ngsplay [flags] [patch.json]
//
// The patch file declares racks, their module parameters, WAV sources and
// patches. A Lua script can drive the racks while the engine plays.
//
// Examples:
//
//	ngsplay lead.json
//	ngsplay -watch lead.json
//	ngsplay -script seq.lua -out take.wav -seconds 8
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-ngs/ngs"
	"github.com/cwbudde/algo-ngs/ngs/backend"
)

type options struct {
	patch    string
	script   string
	watch    bool
	out      string
	seconds  float64
	rate     int
	channels int
	quantum  int
	verbose  bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options

	fs := flag.NewFlagSet("ngsplay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.script, "script", "", "Lua script driving the racks")
	fs.BoolVar(&o.watch, "watch", false, "reload the patch file when it changes")
	fs.StringVar(&o.out, "out", "", "render to this WAV file instead of the audio device")
	fs.Float64Var(&o.seconds, "seconds", 5, "length of the -out render")
	fs.IntVar(&o.rate, "rate", ngs.DefaultConfig().SampleRate, "sample rate in Hz")
	fs.IntVar(&o.channels, "channels", 2, "output channels")
	fs.IntVar(&o.quantum, "quantum", ngs.DefaultConfig().Quantum, "frames per render quantum")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ngsplay [flags] [patch.json]\n\n")
		fs.PrintDefaults()
	}

	err := fs.Parse(args)
	if err != nil {
		return o, err
	}

	if fs.NArg() > 1 {
		return o, fmt.Errorf("want at most one patch file, got %d", fs.NArg())
	}

	o.patch = fs.Arg(0)

	switch {
	case o.watch && o.patch == "":
		return o, errors.New("-watch needs a patch file")
	case o.out != "" && !(o.seconds > 0):
		return o, fmt.Errorf("-seconds must be positive: %g", o.seconds)
	case o.out != "" && (o.channels < 1 || o.channels > 2):
		return o, fmt.Errorf("-out writes mono or stereo, not %d channels", o.channels)
	}

	return o, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	o, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "ngsplay:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := newLogger(os.Stderr, o.verbose)

	err = run(ctx, o, log)
	if err != nil {
		log.Error("ngsplay", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, log *slog.Logger) error {
	sys, err := ngs.Open(
		ngs.WithSampleRate(o.rate),
		ngs.WithChannels(o.channels),
		ngs.WithQuantum(o.quantum),
		ngs.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer sys.Close()

	sess := newSession(sys, log)

	if o.patch != "" {
		pf, err := loadPatchFile(o.patch)
		if err != nil {
			return err
		}

		err = sess.apply(pf)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return play(gctx, sys, o)
	})

	if o.script != "" {
		g.Go(func() error { return runScript(gctx, o.script, sess) })
	}

	if o.watch {
		g.Go(func() error { return watchPatchFile(gctx, o.patch, sess, log) })
	}

	return g.Wait()
}

// play runs the output until ctx ends or a WAV render is complete.
func play(ctx context.Context, sys *ngs.System, o options) (err error) {
	cfg := sys.Config()

	if o.out == "" {
		dev, err := backend.OpenDevice(sys, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return err
		}
		defer dev.Close()

		dev.Start()
		<-ctx.Done()

		return nil
	}

	f, err := os.Create(o.out)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	frames := int(o.seconds * float64(cfg.SampleRate))

	sink, err := backend.NewWAVSink(f, cfg.SampleRate, cfg.Channels, frames)
	if err != nil {
		return err
	}

	// Without a script nothing depends on wall-clock time.
	if o.script == "" {
		return backend.Render(sys, sink, cfg.Channels, cfg.Quantum, frames)
	}

	err = sys.Run(ctx, sink)
	if errors.Is(err, backend.ErrFull) || errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

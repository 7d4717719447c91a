package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/algo-ngs/ngs"
	"github.com/cwbudde/algo-ngs/ngs/module"
)

func TestSessionApply(t *testing.T) {
	t.Parallel()

	sys, sess := openSession(t)
	tone := writeWAV(t, t.TempDir(), 256, 0.5)

	pf := &PatchFile{
		Format: "1.0.0",
		Racks: []RackSpec{
			{Name: "lead", Voices: 2, Modules: []string{"player", "envelope"}},
			{Name: "bus", Voices: 1, Modules: []string{"Mixer"}, Params: map[string]json.RawMessage{
				"mixer": json.RawMessage(`{"Pan": -1}`),
			}},
		},
		WAV:     map[string]string{"lead:1": tone},
		Patches: []PatchSpec{{From: "lead:1", To: "bus:0"}, {From: "bus:0", To: "master", Gain: &ngs.IdentityMatrix}},
		Play:    []string{"lead:1", "bus:0"},
	}

	if err := sess.apply(pf); err != nil {
		t.Fatalf("apply: %v", err)
	}

	lead, err := sess.rack("lead")
	if err != nil {
		t.Fatalf("rack: %v", err)
	}

	if n, _ := sys.FreeVoices(lead.handle); n != 0 {
		t.Fatalf("%d free voices, want all claimed", n)
	}

	if st, _ := sys.VoiceState(lead.handle, 1); st != ngs.VoicePlaying {
		t.Fatalf("lead:1 is %v", st)
	}

	if st, _ := sys.VoiceState(lead.handle, 0); st != ngs.VoiceUnloaded {
		t.Fatalf("lead:0 is %v", st)
	}

	bus, _ := sess.rack("bus")

	blob, err := sys.Parameter(bus.handle, 0, 0)
	if err != nil {
		t.Fatalf("Parameter: %v", err)
	}

	var mp module.MixerParams
	if err := mp.UnmarshalBinary(blob); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if mp.Pan != -1 || mp.GainL != 1 {
		t.Fatalf("mixer params %+v, want defaults with Pan -1", mp)
	}

	sess.reset()

	if _, err := sys.FreeVoices(lead.handle); !errors.Is(err, ngs.ErrInvalidHandle) {
		t.Fatalf("rack survived reset: %v", err)
	}
}

func TestSessionApplyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pf   PatchFile
		want string
	}{
		{"unknown module", PatchFile{Racks: []RackSpec{{Name: "a", Voices: 1, Modules: []string{"theremin"}}}}, "unknown module kind"},
		{"params for absent module", PatchFile{Racks: []RackSpec{{Name: "a", Voices: 1, Modules: []string{"mixer"},
			Params: map[string]json.RawMessage{"delay": json.RawMessage(`{}`)}}}}, "no delay module"},
		{"invalid param value", PatchFile{Racks: []RackSpec{{Name: "a", Voices: 1, Modules: []string{"mixer"},
			Params: map[string]json.RawMessage{"mixer": json.RawMessage(`{"Pan": 3}`)}}}}, "pan"},
		{"patch to unknown rack", PatchFile{Patches: []PatchSpec{{From: "x:0", To: "master"}}}, `no rack "x"`},
		{"wav into master", PatchFile{WAV: map[string]string{"master": "a.wav"}}, "want rack:voice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sess := openSession(t)

			err := sess.apply(&tt.pf)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestReloadSwapsRacks(t *testing.T) {
	t.Parallel()

	_, sess := openSession(t)
	path := filepath.Join(t.TempDir(), "patch.json")

	write := func(doc string) {
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	write(`{"format": "1.0.0", "racks": [{"name": "a", "voices": 1, "modules": ["mixer"]}]}`)
	reload(path, sess, discardLogger())

	if _, err := sess.rack("a"); err != nil {
		t.Fatalf("first load: %v", err)
	}

	write(`{"format": "1.0.0", "racks": [{"name": "b", "voices": 1, "modules": ["mixer"]}]}`)
	reload(path, sess, discardLogger())

	if _, err := sess.rack("a"); err == nil {
		t.Fatal("rack a survived reload")
	}

	if _, err := sess.rack("b"); err != nil {
		t.Fatalf("second load: %v", err)
	}

	// A broken file keeps the running session.
	write(`{"format": "9.0.0"}`)
	reload(path, sess, discardLogger())

	if _, err := sess.rack("b"); err != nil {
		t.Fatalf("rejected reload dropped rack b: %v", err)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()

	_, sess := openSession(t)
	path := filepath.Join(t.TempDir(), "patch.json")

	if err := os.WriteFile(path, []byte(`{"format": "1.0.0"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- watchPatchFile(ctx, path, sess, discardLogger()) }()

	doc := []byte(`{"format": "1.0.0", "racks": [{"name": "w", "voices": 1, "modules": ["mixer"]}]}`)
	deadline := time.Now().Add(10 * time.Second)

	// Rewrite until the watcher, which starts asynchronously, has seen it.
	for {
		if err := os.WriteFile(path, doc, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		time.Sleep(50 * time.Millisecond)

		if _, err := sess.rack("w"); err == nil {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("watcher never reloaded")
		}
	}

	cancel()

	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}

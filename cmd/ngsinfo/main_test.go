package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cwbudde/algo-ngs/ngs/module"
)

func TestResolveKinds(t *testing.T) {
	reg := module.DefaultRegistry()

	all, unknown := resolveKinds(reg, nil)
	if len(all) != len(reg.Kinds()) || len(unknown) != 0 {
		t.Fatalf("no names resolved to %v, unknown %v", all, unknown)
	}

	kinds, unknown := resolveKinds(reg, []string{"Reverb", "kazoo", "delay"})
	if len(kinds) != 2 || kinds[0] != module.KindReverb || kinds[1] != module.KindDelay {
		t.Fatalf("kinds %v", kinds)
	}
	if len(unknown) != 1 || unknown[0] != "kazoo" {
		t.Fatalf("unknown %v", unknown)
	}
}

func TestPrintTable(t *testing.T) {
	reg := module.DefaultRegistry()

	var buf bytes.Buffer
	if err := printTable(&buf, reg, []module.Kind{module.KindPitchShift}, true); err != nil {
		t.Fatalf("printTable: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}

	fields := strings.Fields(lines[1])
	want := []string{"pitchshift", "0x5cea", "0x01015cea", "12", "12", "false"}
	for i, w := range want {
		if fields[i] != w {
			t.Fatalf("field %d = %q, want %q (row %q)", i, fields[i], w, lines[1])
		}
	}

	// Header, then zero cents.
	if fields[6] != "ea5c01010c00000000000000" {
		t.Fatalf("default blob %q", fields[6])
	}
}

func TestPrintList(t *testing.T) {
	var buf bytes.Buffer
	printList(&buf, module.DefaultRegistry())

	if got := strings.Fields(buf.String()); len(got) != 7 || got[0] != "compressor" {
		t.Fatalf("list %v", got)
	}
}

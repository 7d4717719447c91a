package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/cwbudde/algo-ngs/ngs"
)

// formatConstraint is the range of patch file formats this build reads.
const formatConstraint = ">= 1.0.0, < 2.0.0"

var errFormat = errors.New("unsupported patch file format")

// PatchFile is the JSON document describing a rack setup.
type PatchFile struct {
	Format  string            `json:"format"`
	Racks   []RackSpec        `json:"racks"`
	Patches []PatchSpec       `json:"patches"`
	WAV     map[string]string `json:"wav"`
	Play    []string          `json:"play"`
}

// RackSpec creates one rack and configures every voice of it alike.
// Params are keyed by module kind name and apply to each slot of that kind.
type RackSpec struct {
	Name    string                     `json:"name"`
	Voices  int                        `json:"voices"`
	Modules []string                   `json:"modules"`
	Params  map[string]json.RawMessage `json:"params"`
}

// PatchSpec connects two endpoints written as "master", "rack:voice" or
// "rack:voice:port".
type PatchSpec struct {
	From string      `json:"from"`
	To   string      `json:"to"`
	Gain *ngs.Matrix `json:"gain,omitempty"`
}

func loadPatchFile(path string) (*PatchFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := parsePatchFile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return pf, nil
}

func parsePatchFile(r io.Reader) (*PatchFile, error) {
	var pf PatchFile

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	err := dec.Decode(&pf)
	if err != nil {
		return nil, err
	}

	err = checkFormat(pf.Format)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(pf.Racks))
	for i, rs := range pf.Racks {
		if rs.Name == "" || rs.Name == "master" || strings.Contains(rs.Name, ":") {
			return nil, fmt.Errorf("rack %d: bad name %q", i, rs.Name)
		}

		if seen[rs.Name] {
			return nil, fmt.Errorf("rack %q declared twice", rs.Name)
		}

		seen[rs.Name] = true
	}

	return &pf, nil
}

func checkFormat(v string) error {
	c, err := semver.NewConstraint(formatConstraint)
	if err != nil {
		return err
	}

	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", errFormat, v, err)
	}

	if !c.Check(sv) {
		return fmt.Errorf("%w: %s does not satisfy %s", errFormat, sv, formatConstraint)
	}

	return nil
}

// endpointRef is a parsed endpoint string, resolved against a session.
type endpointRef struct {
	master bool
	rack   string
	voice  int
	port   int
}

func parseEndpoint(s string) (endpointRef, error) {
	if s == "master" {
		return endpointRef{master: true}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return endpointRef{}, fmt.Errorf("endpoint %q: want rack:voice[:port] or master", s)
	}

	ref := endpointRef{rack: parts[0]}

	var err error

	ref.voice, err = strconv.Atoi(parts[1])
	if err != nil {
		return endpointRef{}, fmt.Errorf("endpoint %q: voice: %w", s, err)
	}

	if len(parts) == 3 {
		ref.port, err = strconv.Atoi(parts[2])
		if err != nil {
			return endpointRef{}, fmt.Errorf("endpoint %q: port: %w", s, err)
		}
	}

	return ref, nil
}

// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic fatigue recordings used across the
// stage, pipeline and batch tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Sample builds a record. The unused time column mirrors idx.
func Sample(idx, cycle, posDisp, negDisp, posLoad, negLoad float64) l1records.Record {
	return l1records.NewRecord([l1records.NumFields]float64{idx, cycle, idx, posDisp, negDisp, posLoad, negLoad})
}

// RawCSV renders records in the instrument layout, one line per record
// with a trailing delimiter.
func RawCSV(recs []l1records.Record) string {
	var sb strings.Builder
	for _, r := range recs {
		sb.WriteString(r.String())
		sb.WriteString(",\n")
	}
	return sb.String()
}

// ReducedCSV renders records in the intermediate layout.
func ReducedCSV(recs []l1records.Record) string {
	var sb strings.Builder
	for _, r := range recs {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Specimen describes a synthetic recording: a stable pre-load phase
// followed by cycles whose displacement grows by Creep per cycle.
type Specimen struct {
	Load            float64 // load magnitude on both channels
	Disp            float64 // displacement magnitude at the start
	Creep           float64 // displacement added per cycle after preload
	PreloadCycles   int     // cycles with constant displacement
	Cycles          int     // total cycles
	SamplesPerCycle int     // samples in each cycle
	NoisyCycles     int     // leading cycles with unstable load
}

// Records generates the raw samples. Within each cycle the load ramps up
// to the peak on the middle sample so the reducer has a unique extreme.
func (s Specimen) Records() []l1records.Record {
	n := s.SamplesPerCycle
	if n <= 0 {
		n = 5
	}
	var recs []l1records.Record
	idx := 0.0
	for c := 0; c < s.Cycles; c++ {
		disp := s.Disp
		if c >= s.PreloadCycles {
			disp += s.Creep * float64(c-s.PreloadCycles+1)
		}
		load := s.Load
		if c < s.NoisyCycles {
			load = s.Load * float64(c+1) / float64(s.NoisyCycles+1)
		}
		for i := 0; i < n; i++ {
			scale := 1.0
			if i != n/2 {
				scale = 0.5
			}
			recs = append(recs, Sample(idx, float64(c+1), disp, -disp, load*scale, -load*scale))
			idx++
		}
	}
	return recs
}

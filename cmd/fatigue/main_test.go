package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/fatigue.report/internal/db"
	"github.com/banshee-data/fatigue.report/internal/fatigue/report"
	"github.com/banshee-data/fatigue.report/internal/testutil"
)

var specimen = testutil.Specimen{
	Load:          100,
	Disp:          1,
	Creep:         0.035,
	PreloadCycles: 10,
	Cycles:        40,
	NoisyCycles:   3,
}

func TestRunProcess(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "S1 run.csv", testutil.RawCSV(specimen.Records()))

	var out bytes.Buffer
	if err := runProcess(context.Background(), []string{"-load", "100", in}, &out); err != nil {
		t.Fatalf("runProcess failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), out.String())
	}
	if lines[0] != "End of preload" || !strings.HasPrefix(lines[1], "17,4,") {
		t.Errorf("unexpected preload lines %q %q", lines[0], lines[1])
	}
	if lines[2] != "Yield point (10% disp)" || !strings.HasPrefix(lines[3], "62,13,") {
		t.Errorf("unexpected yield lines %q %q", lines[2], lines[3])
	}
	if lines[4] != "Breaking point (30% disp)" || !strings.Contains(lines[5], ",19,") {
		t.Errorf("unexpected break lines %q %q", lines[4], lines[5])
	}
}

func TestRunProcess_Errors(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "S1.csv", testutil.RawCSV(specimen.Records()))
	var out bytes.Buffer

	if err := runProcess(context.Background(), []string{"-load", "100"}, &out); err == nil {
		t.Error("expected usage error without an input file")
	}
	if err := runProcess(context.Background(), []string{in}, &out); err == nil {
		t.Error("expected error without a load")
	}
	if err := runProcess(context.Background(), []string{"-load", "250", in}, &out); err == nil {
		t.Error("expected preload not found")
	}
	if err := runProcess(context.Background(), []string{"-load", "100", "-config", "missing.json", in}, &out); err == nil {
		t.Error("expected error for a missing config")
	}
}

func TestParseBatchFlags(t *testing.T) {
	f, err := parseBatchFlags([]string{"-loads", "loads.txt"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseBatchFlags failed: %v", err)
	}
	if f.root != "." || f.outDir != "results" || f.xlsx || f.dbPath != "" || f.workers != 0 {
		t.Errorf("unexpected defaults %+v", f)
	}

	if _, err := parseBatchFlags(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error when -loads is missing")
	}
}

func TestRunBatch(t *testing.T) {
	root := t.TempDir()
	raw := testutil.RawCSV(specimen.Records())
	testutil.WriteFile(t, root, "S1 run.csv", raw)
	testutil.WriteFile(t, root, "nested/S2.csv", raw)
	testutil.WriteFile(t, root, "S3.csv", raw)
	loads := testutil.WriteFile(t, t.TempDir(), "loads.txt", "S1 100\nS2 250\n")
	outDir := filepath.Join(root, "results")
	dbPath := filepath.Join(t.TempDir(), "fatigue.db")

	args := []string{"-root", root, "-loads", loads, "-out", outDir, "-xlsx", "-db", dbPath, "-workers", "2"}
	var out bytes.Buffer
	if err := runBatch(context.Background(), args, &out); err != nil {
		t.Fatalf("runBatch failed: %v", err)
	}
	if !strings.Contains(out.String(), "3 specimens, 2 failed") {
		t.Errorf("unexpected output %q", out.String())
	}

	f, err := os.Open(filepath.Join(outDir, "summary.csv"))
	if err != nil {
		t.Fatalf("open summary: %v", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(recs))
	}
	if recs[1][0] != "S1" || recs[1][1] != "17" || recs[1][2] != "4" {
		t.Errorf("unexpected S1 row %v", recs[1])
	}
	if recs[2][0] != "S3" || !strings.Contains(recs[2][len(report.Header)-1], "S3") {
		t.Errorf("expected S3 to fail with a missing load, got %v", recs[2])
	}
	if recs[3][0] != "S2" || recs[3][len(report.Header)-1] == "" {
		t.Errorf("expected S2 to fail, got %v", recs[3])
	}

	if _, err := os.Stat(filepath.Join(outDir, "summary.xlsx")); err != nil {
		t.Errorf("expected summary.xlsx: %v", err)
	}

	store, err := db.NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer store.Close()
	runs, err := store.BatchRuns()
	if err != nil {
		t.Fatalf("BatchRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Specimens != 3 || runs[0].Failed != 2 {
		t.Errorf("unexpected stored runs %+v", runs)
	}

	// A second run over the same root must not pick up the summary.
	out.Reset()
	if err := runBatch(context.Background(), args, &out); err != nil {
		t.Fatalf("second runBatch failed: %v", err)
	}
	if !strings.Contains(out.String(), "3 specimens") {
		t.Errorf("output directory was rediscovered: %q", out.String())
	}
}

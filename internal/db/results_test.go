package db

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/fatigue.report/internal/fatigue/batch"
	"github.com/banshee-data/fatigue.report/internal/fatigue/l5phases"
	"github.com/banshee-data/fatigue.report/internal/fatigue/pipeline"
	"github.com/banshee-data/fatigue.report/internal/fatigue/report"
	"github.com/banshee-data/fatigue.report/internal/testutil"
)

func setupResultsDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id string, started time.Time) *batch.Run {
	ok := &pipeline.Result{Specimen: "S1"}
	ok.Preload.Record = testutil.Sample(17, 4, 1, -1, 100, -100)
	ok.Yield = pipeline.Phase{Found: true, Match: l5phases.Match{Record: testutil.Sample(62, 13, 1.105, -1.105, 100, -100)}}
	ok.Reduce.Cycles = 40
	ok.Filter.Dropped = 3

	return &batch.Run{
		ID:         id,
		Root:       "/data/batch",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Outcomes: []batch.Outcome{
			{Specimen: "S1", Input: "/data/batch/S1.csv", Load: 100, Result: ok, Duration: 1500 * time.Millisecond},
			{Specimen: "S2", Input: "/data/batch/S2.csv", Load: 80, Err: errors.New("boom")},
		},
	}
}

func TestSaveRun_RoundTrip(t *testing.T) {
	db := setupResultsDB(t)
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := db.SaveRun(sampleRun("run-1", started)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := db.BatchRuns()
	if err != nil {
		t.Fatalf("BatchRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.RunID != "run-1" || r.Specimens != 2 || r.Failed != 1 || r.Root != "/data/batch" {
		t.Errorf("unexpected run %+v", r)
	}
	if !r.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, started)
	}

	results, err := db.SpecimenResults("run-1")
	if err != nil {
		t.Fatalf("SpecimenResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	s1 := results[0]
	if s1.Specimen != "S1" || s1.Position != 0 {
		t.Errorf("unexpected first row %+v", s1)
	}
	if s1.Preload != (report.Cell{Time: "17", Cycles: "4"}) || s1.Yield != (report.Cell{Time: "62", Cycles: "13"}) {
		t.Errorf("unexpected phase cells %+v %+v", s1.Preload, s1.Yield)
	}
	if s1.Break.Time != report.NotFound {
		t.Errorf("expected break not found, got %q", s1.Break.Time)
	}
	if s1.ReducedCycles != 40 || s1.OutliersDropped != 3 {
		t.Errorf("unexpected stage counts %d/%d", s1.ReducedCycles, s1.OutliersDropped)
	}
	if s1.Duration != 1500*time.Millisecond || s1.ExpectedLoad != 100 {
		t.Errorf("unexpected duration/load %v/%v", s1.Duration, s1.ExpectedLoad)
	}

	s2 := results[1]
	if s2.Error != "boom" || s2.Preload.Time != "" {
		t.Errorf("unexpected failed row %+v", s2)
	}
}

func TestSaveRun_DuplicateIDRollsBack(t *testing.T) {
	db := setupResultsDB(t)
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := db.SaveRun(sampleRun("run-1", started)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := db.SaveRun(sampleRun("run-1", started)); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}

	results, err := db.SpecimenResults("run-1")
	if err != nil {
		t.Fatalf("SpecimenResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected the original 2 rows, got %d", len(results))
	}
}

func TestLatestRun(t *testing.T) {
	db := setupResultsDB(t)
	if _, err := db.LatestRun(); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on empty database, got %v", err)
	}

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := db.SaveRun(sampleRun("older", base)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := db.SaveRun(sampleRun("newer", base.Add(time.Hour))); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest.RunID != "newer" {
		t.Errorf("expected newer run, got %s", latest.RunID)
	}
}

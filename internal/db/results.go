package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/fatigue.report/internal/fatigue/batch"
	"github.com/banshee-data/fatigue.report/internal/fatigue/report"
	"github.com/banshee-data/fatigue.report/internal/monitoring"
)

var logf = monitoring.WithPrefix("db")

// BatchRun is a stored batch header.
type BatchRun struct {
	RunID      string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	Specimens  int
	Failed     int
}

// SpecimenResult is a stored summary row with its run bookkeeping.
type SpecimenResult struct {
	report.Row
	RunID           string
	Position        int
	InputPath       string
	ExpectedLoad    float64
	Duration        time.Duration
	ReducedCycles   int
	OutliersDropped int
}

// SaveRun stores a completed batch and one row per specimen in a single
// transaction.
func (db *DB) SaveRun(run *batch.Run) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op after Commit

	_, err = tx.Exec(`INSERT INTO batch_runs (run_id, root, started_at, finished_at, specimens, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Root, run.StartedAt.UTC(), run.FinishedAt.UTC(), len(run.Outcomes), run.Failed())
	if err != nil {
		return fmt.Errorf("insert batch run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO specimen_results (
			run_id, position, specimen, input_path, expected_load,
			time_pl, cycles_pl, time_yp, cycles_yp, time_bp, cycles_bp,
			error, duration_ms, reduced_cycles, outliers_dropped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range run.Outcomes {
		row := report.FromOutcome(o)
		var reduced, dropped int
		if o.Result != nil {
			reduced = o.Result.Reduce.Cycles
			dropped = o.Result.Filter.Dropped
		}
		_, err := stmt.Exec(
			run.ID, i, row.Specimen, o.Input, o.Load,
			row.Preload.Time, row.Preload.Cycles,
			row.Yield.Time, row.Yield.Cycles,
			row.Break.Time, row.Break.Cycles,
			row.Error, o.Duration.Milliseconds(), reduced, dropped,
		)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", row.Specimen, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logf("stored run %s with %d specimens", run.ID, len(run.Outcomes))
	return nil
}

// BatchRuns lists stored batches, most recent first.
func (db *DB) BatchRuns() ([]BatchRun, error) {
	rows, err := db.Query(`SELECT run_id, root, started_at, finished_at, specimens, failed
		FROM batch_runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []BatchRun
	for rows.Next() {
		var r BatchRun
		var finished sql.NullTime
		if err := rows.Scan(&r.RunID, &r.Root, &r.StartedAt, &finished, &r.Specimens, &r.Failed); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SpecimenResults returns the rows of one batch in discovery order.
func (db *DB) SpecimenResults(runID string) ([]SpecimenResult, error) {
	rows, err := db.Query(`SELECT position, specimen, input_path, expected_load,
			time_pl, cycles_pl, time_yp, cycles_yp, time_bp, cycles_bp,
			error, duration_ms, reduced_cycles, outliers_dropped
		FROM specimen_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SpecimenResult
	for rows.Next() {
		r := SpecimenResult{RunID: runID}
		var durationMS int64
		err := rows.Scan(&r.Position, &r.Specimen, &r.InputPath, &r.ExpectedLoad,
			&r.Preload.Time, &r.Preload.Cycles,
			&r.Yield.Time, &r.Yield.Cycles,
			&r.Break.Time, &r.Break.Cycles,
			&r.Error, &durationMS, &r.ReducedCycles, &r.OutliersDropped)
		if err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started batch, or sql.ErrNoRows.
func (db *DB) LatestRun() (BatchRun, error) {
	runs, err := db.BatchRuns()
	if err != nil {
		return BatchRun{}, err
	}
	if len(runs) == 0 {
		return BatchRun{}, sql.ErrNoRows
	}
	return runs[0], nil
}

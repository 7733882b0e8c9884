// Package batch analyses every recording under a folder. Specimens run in
// parallel, each through its own pipeline with no shared state, and a
// failure is recorded against its specimen without stopping the others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/fatigue.report/internal/fatigue/loadtable"
	"github.com/banshee-data/fatigue.report/internal/fatigue/pipeline"
	"github.com/banshee-data/fatigue.report/internal/monitoring"
	"github.com/banshee-data/fatigue.report/internal/timeutil"
)

var logf = monitoring.WithPrefix("batch")

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 4

// Discover returns every *.csv file below root, recursively, sorted.
// Directories listed in skip are not descended into.
func Discover(root string, skip ...string) ([]string, error) {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[filepath.Clean(s)] = true
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root && skipped[filepath.Clean(path)] {
			return filepath.SkipDir
		}
		if !d.IsDir() && filepath.Ext(path) == ".csv" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover recordings in %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Options configures a batch.
type Options struct {
	Root  string
	Loads *loadtable.Table
	// Params holds the thresholds shared by all specimens. ExpectedLoad is
	// replaced per specimen from Loads.
	Params  pipeline.Params
	Workers int
	// Skip lists directories under Root that hold outputs, not recordings.
	Skip []string
}

// Outcome is the result of one specimen. Exactly one of Result and Err
// is set.
type Outcome struct {
	Specimen string
	Input    string
	Load     float64
	Result   *pipeline.Result
	Err      error
	Duration time.Duration
}

// Run describes a completed batch.
type Run struct {
	ID         string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome // in discovery order
}

// Failed counts outcomes with an error.
func (r *Run) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Driver executes batches.
type Driver struct {
	Runner *pipeline.Runner
	Clock  timeutil.Clock
}

// NewDriver returns a Driver on the OS filesystem and the wall clock.
func NewDriver() *Driver {
	return &Driver{Runner: pipeline.NewRunner(), Clock: timeutil.RealClock{}}
}

// Execute discovers the recordings under opts.Root and analyses them.
// The returned error covers discovery and cancellation only; specimen
// failures are reported in each Outcome.
func (d *Driver) Execute(ctx context.Context, opts Options) (*Run, error) {
	if opts.Loads == nil {
		return nil, errors.New("batch: load table is required")
	}
	paths, err := Discover(opts.Root, opts.Skip...)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	run := &Run{
		ID:        uuid.NewString(),
		Root:      opts.Root,
		StartedAt: d.Clock.Now(),
		Outcomes:  make([]Outcome, len(paths)),
	}
	logf("run %s: %d recordings under %s, %d workers", run.ID, len(paths), opts.Root, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			run.Outcomes[i] = d.analyse(gctx, path, opts)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return run, err
	}

	run.FinishedAt = d.Clock.Now()
	logf("run %s: %d specimens, %d failed", run.ID, len(run.Outcomes), run.Failed())
	return run, nil
}

func (d *Driver) analyse(ctx context.Context, path string, opts Options) (o Outcome) {
	o = Outcome{Specimen: pipeline.SpecimenName(path), Input: path}
	start := d.Clock.Now()
	defer func() { o.Duration = d.Clock.Since(start) }()

	load, err := opts.Loads.Lookup(o.Specimen)
	if err != nil {
		o.Err = err
		logf("%s: %v", o.Specimen, err)
		return o
	}
	o.Load = load

	p := opts.Params
	p.ExpectedLoad = load
	o.Result, o.Err = d.Runner.Run(ctx, path, p)
	if o.Err != nil {
		logf("%s: %v", o.Specimen, o.Err)
	}
	return o
}

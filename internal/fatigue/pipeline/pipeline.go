// Package pipeline runs the staged analysis of one specimen recording:
// reduce to cycles, detect the end of pre-load, drop displacement glitches,
// then locate the yield and breaking points.
//
// Each stage streams through a file; the intermediate files are created
// with specimen-unique names so independent runs never collide.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
	"github.com/banshee-data/fatigue.report/internal/fatigue/l2cycles"
	"github.com/banshee-data/fatigue.report/internal/fatigue/l3preload"
	"github.com/banshee-data/fatigue.report/internal/fatigue/l4outlier"
	"github.com/banshee-data/fatigue.report/internal/fatigue/l5phases"
	"github.com/banshee-data/fatigue.report/internal/fsutil"
	"github.com/banshee-data/fatigue.report/internal/monitoring"
	"github.com/banshee-data/fatigue.report/internal/security"
)

// Params configures one run.
type Params struct {
	ExpectedLoad          float64
	LoadTolerancePercent  float64
	MinStd                float64
	BufferSize            int
	StdPolicy             l3preload.StdPolicy
	OutlierMaxDiffPercent float64
	YieldDispPercent      float64
	BreakDispPercent      float64
	DetectBreak           bool
	FlushTrailing         bool

	// WorkDir holds intermediate files; empty means the system temp dir.
	WorkDir string
	// KeepIntermediate leaves the reduced and filtered files in WorkDir.
	KeepIntermediate bool
	// PlotDir receives diagnostic charts; empty disables plotting.
	PlotDir string
}

// DefaultParams returns the standard thresholds for a specimen loaded at
// expectedLoad.
func DefaultParams(expectedLoad float64) Params {
	return Params{
		ExpectedLoad:          expectedLoad,
		LoadTolerancePercent:  0.01,
		MinStd:                0.05,
		BufferSize:            l3preload.DefaultBufferSize,
		StdPolicy:             l3preload.StdPolicyBoth,
		OutlierMaxDiffPercent: l4outlier.DefaultMaxDiffPercent,
		YieldDispPercent:      l5phases.YieldDispPercent,
		BreakDispPercent:      l5phases.BreakDispPercent,
		DetectBreak:           true,
		FlushTrailing:         true,
	}
}

func (p Params) preload() l3preload.Params {
	return l3preload.Params{
		ExpectedLoad:         p.ExpectedLoad,
		LoadTolerancePercent: p.LoadTolerancePercent,
		MinStd:               p.MinStd,
		BufferSize:           p.BufferSize,
		StdPolicy:            p.StdPolicy,
	}
}

// Phase is the outcome of one threshold search.
type Phase struct {
	Found bool
	Match l5phases.Match
}

// Result is everything a run learned about one specimen.
type Result struct {
	Specimen string
	Input    string

	Preload l3preload.Boundary
	Yield   Phase
	Break   Phase

	Reduce l2cycles.Stats
	Filter l4outlier.Stats

	// Intermediate paths are set only when Params.KeepIntermediate is true.
	ReducedPath  string
	FilteredPath string
	PlotFiles    []string
}

// SpecimenName derives the specimen identifier from a recording path: the
// base name without extension, cut at the first space.
func SpecimenName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name, _, _ := strings.Cut(base, " ")
	return name
}

// Runner executes the pipeline against a filesystem.
type Runner struct {
	FS fsutil.FileSystem
}

// NewRunner returns a Runner on the OS filesystem.
func NewRunner() *Runner {
	return &Runner{FS: fsutil.OSFileSystem{}}
}

// Run analyses one recording with the default Runner.
func Run(ctx context.Context, input string, p Params) (*Result, error) {
	return NewRunner().Run(ctx, input, p)
}

// Run analyses the raw recording at input. A missing pre-load boundary
// fails the run with an error wrapping l3preload.ErrPreloadNotFound; a
// missing yield or break point is a valid result with Found unset.
func (rn *Runner) Run(ctx context.Context, input string, p Params) (*Result, error) {
	if p.ExpectedLoad <= 0 {
		return nil, fmt.Errorf("expected load must be positive, got %v", p.ExpectedLoad)
	}
	pp := p.preload()
	if err := pp.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Specimen: SpecimenName(input), Input: input}
	logf := monitoring.WithPrefix("pipeline " + res.Specimen)

	var temps []string
	defer func() {
		if p.KeepIntermediate {
			return
		}
		for _, name := range temps {
			if rmErr := rn.FS.Remove(name); rmErr != nil {
				logf("remove %s: %v", name, rmErr)
			}
		}
	}()

	reduced, err := rn.reduce(input, p, res)
	if reduced != "" {
		temps = append(temps, reduced)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filtered, err := rn.detectAndFilter(reduced, p, pp, res)
	if filtered != "" {
		temps = append(temps, filtered)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := rn.locate(filtered, p, res); err != nil {
		return nil, err
	}

	if p.PlotDir != "" {
		files, err := rn.plot(reduced, p.PlotDir, res)
		if err != nil {
			return nil, fmt.Errorf("plot: %w", err)
		}
		res.PlotFiles = files
	}

	if p.KeepIntermediate {
		res.ReducedPath, res.FilteredPath = reduced, filtered
	}
	logf("preload at cycle %v, yield found=%t, break found=%t", res.Preload.Record.Cycle(), res.Yield.Found, res.Break.Found)
	return res, nil
}

func (rn *Runner) reduce(input string, p Params, res *Result) (string, error) {
	in, err := rn.FS.Open(input)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := rn.FS.CreateTemp(p.WorkDir, tempPattern(res.Specimen, "reduced"))
	if err != nil {
		return "", fmt.Errorf("create reduced file: %w", err)
	}
	name := out.Name()

	st, err := l2cycles.Reduce(
		l1records.NewReader(in, l1records.SchemaRaw),
		l1records.NewWriter(out),
		l2cycles.Options{FlushTrailing: p.FlushTrailing},
	)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return name, fmt.Errorf("reduce: %w", err)
	}
	res.Reduce = st
	return name, nil
}

// detectAndFilter finds the boundary in the reduced file and filters from
// it, reusing the same reader so the boundary cursor is re-seeked rather
// than recomputed.
func (rn *Runner) detectAndFilter(reduced string, p Params, pp l3preload.Params, res *Result) (string, error) {
	in, err := rn.FS.Open(reduced)
	if err != nil {
		return "", fmt.Errorf("open reduced file: %w", err)
	}
	defer in.Close()
	r := l1records.NewReader(in, l1records.SchemaReduced)

	b, err := l3preload.Detect(r, pp)
	if err != nil {
		return "", fmt.Errorf("specimen %s: %w", res.Specimen, err)
	}
	res.Preload = b

	out, err := rn.FS.CreateTemp(p.WorkDir, tempPattern(res.Specimen, "filtered"))
	if err != nil {
		return "", fmt.Errorf("create filtered file: %w", err)
	}
	name := out.Name()

	st, err := l4outlier.Filter(r, b.Cursor, p.OutlierMaxDiffPercent, l1records.NewWriter(out))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return name, fmt.Errorf("filter: %w", err)
	}
	res.Filter = st
	return name, nil
}

func (rn *Runner) locate(filtered string, p Params, res *Result) error {
	in, err := rn.FS.Open(filtered)
	if err != nil {
		return fmt.Errorf("open filtered file: %w", err)
	}
	defer in.Close()
	r := l1records.NewReader(in, l1records.SchemaReduced)

	m, ok, err := l5phases.Locate(r, l1records.Start, p.YieldDispPercent)
	if err != nil {
		return fmt.Errorf("locate yield: %w", err)
	}
	res.Yield = Phase{Found: ok, Match: m}

	if !p.DetectBreak {
		return nil
	}
	m, ok, err = l5phases.Locate(r, l1records.Start, p.BreakDispPercent)
	if err != nil {
		return fmt.Errorf("locate break: %w", err)
	}
	res.Break = Phase{Found: ok, Match: m}
	return nil
}

func tempPattern(specimen, stage string) string {
	return security.SanitizeFilename(specimen) + "-*." + stage + ".csv"
}

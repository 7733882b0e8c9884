package batch

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l3preload"
	"github.com/banshee-data/fatigue.report/internal/fatigue/loadtable"
	"github.com/banshee-data/fatigue.report/internal/fatigue/pipeline"
	"github.com/banshee-data/fatigue.report/internal/testutil"
	"github.com/banshee-data/fatigue.report/internal/timeutil"
)

var specimen = testutil.Specimen{
	Load:          100,
	Disp:          1,
	Creep:         0.035,
	PreloadCycles: 10,
	Cycles:        40,
	NoisyCycles:   3,
}

func loads(t *testing.T, text string) *loadtable.Table {
	t.Helper()
	tbl, err := loadtable.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return tbl
}

func TestDiscover(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	testutil.WriteFile(t, root, "b.csv", "")
	testutil.WriteFile(t, root, "a.csv", "")
	testutil.WriteFile(t, root, "notes.txt", "")
	testutil.WriteFile(t, root, "nested/deeper/c.csv", "")

	paths, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.csv"),
		filepath.Join(root, "b.csv"),
		filepath.Join(root, "nested", "deeper", "c.csv"),
	}, paths)

	_, err = Discover(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestDiscover_SkipsOutputDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	testutil.WriteFile(t, root, "a.csv", "")
	testutil.WriteFile(t, root, "results/summary.csv", "")
	testutil.WriteFile(t, root, "results/intermediate/a-1.reduced.csv", "")

	paths, err := Discover(root, filepath.Join(root, "results"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.csv")}, paths)
}

func TestExecute_IsolatesSpecimenFailures(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	raw := testutil.RawCSV(specimen.Records())
	testutil.WriteFile(t, root, "S1 run.csv", raw)
	testutil.WriteFile(t, root, "S2.csv", raw)
	testutil.WriteFile(t, root, "S3.csv", raw)
	testutil.WriteFile(t, root, "sub/S4.csv", raw)

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	d := &Driver{Runner: pipeline.NewRunner(), Clock: timeutil.NewMockClock(start)}

	params := pipeline.DefaultParams(0)
	params.WorkDir = t.TempDir()
	run, err := d.Execute(context.Background(), Options{
		Root:    root,
		Loads:   loads(t, "S1 100\nS2 100\nS4 250\n"),
		Params:  params,
		Workers: 2,
	})
	require.NoError(t, err)

	_, err = uuid.Parse(run.ID)
	assert.NoError(t, err)
	assert.Equal(t, start, run.StartedAt)
	assert.Equal(t, start, run.FinishedAt)

	require.Len(t, run.Outcomes, 4)
	got := make([]string, 0, 4)
	for _, o := range run.Outcomes {
		got = append(got, o.Specimen)
	}
	assert.Equal(t, []string{"S1", "S2", "S3", "S4"}, got)

	s1 := run.Outcomes[0]
	require.NoError(t, s1.Err)
	assert.Equal(t, 100.0, s1.Load)
	assert.True(t, s1.Result.Yield.Found)
	assert.Equal(t, 13.0, s1.Result.Yield.Match.Record.Cycle())

	assert.NoError(t, run.Outcomes[1].Err)
	assert.ErrorIs(t, run.Outcomes[2].Err, loadtable.ErrSpecimenNotFound)
	assert.Nil(t, run.Outcomes[2].Result)
	assert.ErrorIs(t, run.Outcomes[3].Err, l3preload.ErrPreloadNotFound)
	assert.Equal(t, 2, run.Failed())
}

func TestExecute_MatchesSequentialRuns(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	tbl := "S1 100\nS2 100\nS3 100\nS4 100\nS5 100\nS6 100\n"
	for i, creep := range []float64{0.01, 0.02, 0.035, 0.05, 0.08, 0.12} {
		s := specimen
		s.Creep = creep
		testutil.WriteFile(t, root, "S"+string(rune('1'+i))+".csv", testutil.RawCSV(s.Records()))
	}

	run := func(workers int) *Run {
		params := pipeline.DefaultParams(0)
		params.WorkDir = t.TempDir()
		r, err := NewDriver().Execute(context.Background(), Options{Root: root, Loads: loads(t, tbl), Params: params, Workers: workers})
		require.NoError(t, err)
		return r
	}

	seq := run(1)
	par := run(4)
	require.Len(t, par.Outcomes, len(seq.Outcomes))
	for i := range seq.Outcomes {
		a, b := seq.Outcomes[i], par.Outcomes[i]
		require.NoError(t, a.Err)
		require.NoError(t, b.Err)
		assert.Equal(t, a.Specimen, b.Specimen)
		assert.Equal(t, a.Result.Preload.Record, b.Result.Preload.Record)
		assert.Equal(t, a.Result.Yield, b.Result.Yield)
		assert.Equal(t, a.Result.Break, b.Result.Break)
	}
	assert.NotEqual(t, seq.ID, par.ID)
}

func TestExecute_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewDriver().Execute(context.Background(), Options{Root: t.TempDir()})
	assert.Error(t, err, "load table is required")

	_, err = NewDriver().Execute(context.Background(), Options{Root: filepath.Join(t.TempDir(), "nope"), Loads: loads(t, "")})
	assert.Error(t, err)

	root := t.TempDir()
	testutil.WriteFile(t, root, "S1.csv", testutil.RawCSV(specimen.Records()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDriver().Execute(ctx, Options{Root: root, Loads: loads(t, "S1 100"), Params: pipeline.DefaultParams(0)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeDuration(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	testutil.WriteFile(t, root, "S1.csv", testutil.RawCSV(specimen.Records()))

	clock := timeutil.NewSteppingClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	d := &Driver{Runner: pipeline.NewRunner(), Clock: clock}
	params := pipeline.DefaultParams(0)
	params.WorkDir = t.TempDir()
	run, err := d.Execute(context.Background(), Options{Root: root, Loads: loads(t, "S1 100"), Params: params})
	require.NoError(t, err)
	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, time.Second, run.Outcomes[0].Duration)
}

package l3preload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
	"github.com/banshee-data/fatigue.report/internal/testutil"
)

func reader(recs []l1records.Record) *l1records.Reader {
	return l1records.NewReader(strings.NewReader(testutil.ReducedCSV(recs)), l1records.SchemaReduced)
}

// cursorOf returns the byte offset of record i in the ReducedCSV rendering.
func cursorOf(recs []l1records.Record, i int) l1records.Cursor {
	return l1records.Cursor(len(testutil.ReducedCSV(recs[:i])))
}

func constantLoad(n int, load float64) []l1records.Record {
	recs := make([]l1records.Record, 0, n)
	for i := 0; i < n; i++ {
		disp := 1 + 0.01*float64(i)
		recs = append(recs, testutil.Sample(float64(i), float64(i/5+1), disp, -disp, load, -load))
	}
	return recs
}

func TestDetect_StableFromStart(t *testing.T) {
	t.Parallel()
	recs := constantLoad(30, 100)

	b, err := Detect(reader(recs), Params{ExpectedLoad: 100, LoadTolerancePercent: 1, MinStd: 0.5, BufferSize: 5})
	require.NoError(t, err)
	assert.Equal(t, l1records.Cursor(0), b.Cursor)
	assert.Equal(t, recs[0], b.Record)
	assert.Equal(t, 5, b.Scanned)
}

func TestDetect_BoundaryIsOldestRecordOfWindow(t *testing.T) {
	t.Parallel()
	var recs []l1records.Record
	// ramping load during pre-load
	for i := 0; i < 8; i++ {
		l := 20 * float64(i+1)
		recs = append(recs, testutil.Sample(float64(i), float64(i+1), 1, -1, l, -l))
	}
	for i := 8; i < 20; i++ {
		recs = append(recs, testutil.Sample(float64(i), float64(i+1), 1, -1, 200, -200))
	}

	b, err := Detect(reader(recs), Params{ExpectedLoad: 200, LoadTolerancePercent: 1, MinStd: 0.5, BufferSize: 5})
	require.NoError(t, err)
	assert.Equal(t, cursorOf(recs, 8), b.Cursor)
	assert.Equal(t, 9.0, b.Record.Cycle())
	assert.Equal(t, 13, b.Scanned)
}

func TestDetect_OnlyFirstQualifyingWindowTriggers(t *testing.T) {
	t.Parallel()
	base := constantLoad(10, 100)
	p := Params{ExpectedLoad: 100, LoadTolerancePercent: 1, MinStd: 0.5, BufferSize: 5}

	b1, err := Detect(reader(base), p)
	require.NoError(t, err)

	extended := append(append([]l1records.Record{}, base...), constantLoad(50, 100)...)
	b2, err := Detect(reader(extended), p)
	require.NoError(t, err)
	assert.Equal(t, b1.Cursor, b2.Cursor)
}

func TestDetect_NotFound(t *testing.T) {
	t.Parallel()

	t.Run("load off target", func(t *testing.T) {
		_, err := Detect(reader(constantLoad(30, 90)), Params{ExpectedLoad: 100, LoadTolerancePercent: 1, MinStd: 0.5})
		assert.ErrorIs(t, err, ErrPreloadNotFound)
	})

	t.Run("stream shorter than window", func(t *testing.T) {
		_, err := Detect(reader(constantLoad(4, 100)), Params{ExpectedLoad: 100, LoadTolerancePercent: 1, MinStd: 0.5, BufferSize: 5})
		assert.ErrorIs(t, err, ErrPreloadNotFound)
	})

	t.Run("empty stream", func(t *testing.T) {
		_, err := Detect(reader(nil), Params{ExpectedLoad: 100, LoadTolerancePercent: 1, MinStd: 0.5})
		assert.ErrorIs(t, err, ErrPreloadNotFound)
	})

	t.Run("too variable", func(t *testing.T) {
		var recs []l1records.Record
		for i := 0; i < 30; i++ {
			l := 100.0
			if i%2 == 0 {
				l = 102
			}
			recs = append(recs, testutil.Sample(float64(i), float64(i), 1, -1, l, -l))
		}
		_, err := Detect(reader(recs), Params{ExpectedLoad: 101, LoadTolerancePercent: 5, MinStd: 0.5})
		assert.ErrorIs(t, err, ErrPreloadNotFound)
	})
}

func TestDetect_StdPolicies(t *testing.T) {
	t.Parallel()
	// positive channel is flat, negative channel swings by ±0.6
	var recs []l1records.Record
	for i := 0; i < 10; i++ {
		n := -99.4
		if i%2 == 0 {
			n = -100.6
		}
		recs = append(recs, testutil.Sample(float64(i), float64(i), 1, -1, 100, n))
	}
	p := Params{ExpectedLoad: 100, LoadTolerancePercent: 1, MinStd: 0.5, BufferSize: 4}

	both := p
	both.StdPolicy = StdPolicyBoth
	_, err := Detect(reader(recs), both)
	assert.ErrorIs(t, err, ErrPreloadNotFound)

	mean := p
	mean.StdPolicy = StdPolicyMean
	b, err := Detect(reader(recs), mean)
	require.NoError(t, err)
	assert.Equal(t, l1records.Cursor(0), b.Cursor)
}

func TestParams_Accepts(t *testing.T) {
	t.Parallel()
	p := Params{ExpectedLoad: 100, LoadTolerancePercent: 1, MinStd: 0.5, StdPolicy: StdPolicyBoth}

	tests := []struct {
		name string
		pos  []float64
		neg  []float64
		want bool
	}{
		{"on target", []float64{100, 100, 100}, []float64{-100, -100, -100}, true},
		{"just inside tolerance", []float64{100.9, 100.9, 100.9}, []float64{-100.9, -100.9, -100.9}, true},
		{"at tolerance is rejected", []float64{101, 101, 101}, []float64{-101, -101, -101}, false},
		{"mean of channels on target", []float64{100.5, 100.5, 100.5}, []float64{-99.5, -99.5, -99.5}, true},
		{"std above threshold is rejected", []float64{99, 101, 99, 101}, []float64{-100, -100, -100, -100}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.accepts(tc.pos, tc.neg))
		})
	}
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	p := Params{ExpectedLoad: 100}
	require.NoError(t, p.Validate())
	assert.Equal(t, DefaultBufferSize, p.BufferSize)
	assert.Equal(t, StdPolicyBoth, p.StdPolicy)

	bad := []Params{
		{BufferSize: -1},
		{StdPolicy: "median"},
		{MinStd: -0.1},
		{LoadTolerancePercent: -1},
	}
	for _, b := range bad {
		assert.Error(t, b.Validate(), "%+v", b)
	}
}

func TestWindow_EvictsRecordsAndCursorsTogether(t *testing.T) {
	t.Parallel()
	w := newWindow(3)
	for i := 0; i < 5; i++ {
		w.push(testutil.Sample(float64(i), 1, 1, -1, float64(i), -float64(i)), l1records.Cursor(i*10))
	}
	require.True(t, w.full())

	rec, c := w.oldest()
	assert.Equal(t, 2.0, rec.Index())
	assert.Equal(t, l1records.Cursor(20), c)

	pos := make([]float64, 3)
	neg := make([]float64, 3)
	w.loads(pos, neg)
	assert.Equal(t, []float64{2, 3, 4}, pos)
	assert.Equal(t, []float64{-2, -3, -4}, neg)

	w.dropOldest()
	assert.False(t, w.full())
	rec, c = w.oldest()
	assert.Equal(t, 3.0, rec.Index())
	assert.Equal(t, l1records.Cursor(30), c)
}

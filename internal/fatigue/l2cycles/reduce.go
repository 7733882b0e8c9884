// Package l2cycles owns Layer 2 (Cycles) of the fatigue data model.
//
// Responsibilities: collapsing each contiguous run of samples that share a
// cycle id into the single sample with the largest load magnitude.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2cycles

import (
	"io"
	"math"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
	"github.com/banshee-data/fatigue.report/internal/monitoring"
)

var logf = monitoring.WithPrefix("reduce")

// Options controls end-of-stream behaviour.
type Options struct {
	// FlushTrailing emits the group still open when the input ends. With
	// it disabled the final cycle is dropped, matching the legacy tool.
	FlushTrailing bool
}

// DefaultOptions returns the options used by the pipeline.
func DefaultOptions() Options {
	return Options{FlushTrailing: true}
}

// Stats summarises one reduction.
type Stats struct {
	Samples         int  // well-formed input records
	Cycles          int  // records emitted
	Malformed       int  // skipped input lines
	TrailingDropped bool // final group discarded because FlushTrailing was off
}

// group tracks the load extremes of the cycle being read. Only the two
// candidate records are held, never the whole cycle.
type group struct {
	cycle  float64
	n      int
	maxPos l1records.Record
	minNeg l1records.Record
}

func (g *group) reset(rec l1records.Record) {
	g.cycle = rec.Cycle()
	g.n = 1
	g.maxPos = rec
	g.minNeg = rec
}

// add folds rec into the group. Strict comparisons keep the first record
// holding each extreme.
func (g *group) add(rec l1records.Record) {
	if rec.PosLoad() > g.maxPos.PosLoad() {
		g.maxPos = rec
	}
	if rec.NegLoad() < g.minNeg.NegLoad() {
		g.minNeg = rec
	}
	g.n++
}

// extreme returns the record with the larger load magnitude. Equal
// magnitudes resolve to the positive-load record.
func (g *group) extreme() l1records.Record {
	if math.Abs(g.maxPos.PosLoad()) >= math.Abs(g.minNeg.NegLoad()) {
		return g.maxPos
	}
	return g.minNeg
}

// Reduce reads r to the end and writes one record per cycle group to w, in
// input order. w is flushed before Reduce returns.
func Reduce(r *l1records.Reader, w *l1records.Writer, opts Options) (Stats, error) {
	var (
		st   Stats
		g    group
		open bool
	)

	for {
		rec, _, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return st, err
		}
		st.Samples++

		switch {
		case !open:
			g.reset(rec)
			open = true
		case rec.Cycle() != g.cycle:
			if err := w.Write(g.extreme()); err != nil {
				return st, err
			}
			st.Cycles++
			g.reset(rec)
		default:
			g.add(rec)
		}
	}

	if open {
		if opts.FlushTrailing {
			if err := w.Write(g.extreme()); err != nil {
				return st, err
			}
			st.Cycles++
		} else {
			st.TrailingDropped = true
			logf("dropping trailing cycle %v (%d samples)", g.cycle, g.n)
		}
	}

	st.Malformed = r.Malformed()
	if err := w.Flush(); err != nil {
		return st, err
	}
	logf("%d samples reduced to %d cycles, %d malformed lines skipped", st.Samples, st.Cycles, st.Malformed)
	return st, nil
}

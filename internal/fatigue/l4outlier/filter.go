// Package l4outlier owns Layer 4 (Outliers) of the fatigue data model.
//
// Responsibilities: removing single-record displacement glitches from the
// reduced stream, starting at the pre-load boundary.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
package l4outlier

import (
	"fmt"
	"io"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
	"github.com/banshee-data/fatigue.report/internal/monitoring"
)

var logf = monitoring.WithPrefix("outlier")

// DefaultMaxDiffPercent is the jump size treated as an instrument glitch.
const DefaultMaxDiffPercent = 50.0

// Stats summarises one filtering pass.
type Stats struct {
	Kept    int
	Dropped int
}

// Jumped reports whether cur moved more than maxDiffPercent away from last
// on either displacement channel. A zero displacement in last makes any
// non-zero change a jump.
func Jumped(cur, last l1records.Record, maxDiffPercent float64) bool {
	return l1records.RelativeChange(cur.PosDisp(), last.PosDisp()) > maxDiffPercent ||
		l1records.RelativeChange(cur.NegDisp(), last.NegDisp()) > maxDiffPercent
}

// Filter re-seeks r to from and copies the records that are not glitches
// to w. The record at from is always kept and becomes the first
// reference; every later record is compared with the most recently kept
// one, and a dropped record never becomes the reference. w is flushed
// before Filter returns.
func Filter(r *l1records.Reader, from l1records.Cursor, maxDiffPercent float64, w *l1records.Writer) (Stats, error) {
	var st Stats

	last, err := r.ReadAt(from)
	if err != nil {
		return st, fmt.Errorf("read boundary record: %w", err)
	}
	if err := w.Write(last); err != nil {
		return st, err
	}
	st.Kept++

	for {
		rec, _, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return st, err
		}

		if Jumped(rec, last, maxDiffPercent) {
			st.Dropped++
			continue
		}
		if err := w.Write(rec); err != nil {
			return st, err
		}
		st.Kept++
		last = rec
	}

	if err := w.Flush(); err != nil {
		return st, err
	}
	logf("kept %d records, dropped %d jumps above %.1f%%", st.Kept, st.Dropped, maxDiffPercent)
	return st, nil
}

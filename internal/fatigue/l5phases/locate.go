// Package l5phases owns Layer 5 (Phases) of the fatigue data model.
//
// Responsibilities: locating the yield and breaking points as the first
// records whose displacement departs from a fixed reference by more than a
// percentage threshold.
//
// Dependency rule: L5 may depend on L1-L4.
package l5phases

import (
	"fmt"
	"io"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
)

// Conventional thresholds, in percent of the reference displacement.
const (
	YieldDispPercent = 10.0
	BreakDispPercent = 30.0
)

// Channel identifies which displacement channel crossed the threshold.
type Channel string

const (
	ChannelPositive Channel = "positive"
	ChannelNegative Channel = "negative"
)

// Match is the first record past the threshold.
type Match struct {
	Cursor  l1records.Cursor
	Record  l1records.Record
	Channel Channel
	Change  float64 // relative change on Channel, percent
}

// Locate reads the reference record at start and scans forward for the
// first record whose positive or negative displacement differs from the
// reference by more than dispPercent. The positive channel is checked
// first. The reference is never updated during the scan.
//
// ok is false when the stream ends first, including when there is no
// record at start; that is a valid outcome, not an error.
func Locate(r *l1records.Reader, start l1records.Cursor, dispPercent float64) (m Match, ok bool, err error) {
	if err := r.Seek(start); err != nil {
		return Match{}, false, err
	}
	ref, _, err := r.Next()
	if err == io.EOF {
		return Match{}, false, nil
	}
	if err != nil {
		return Match{}, false, fmt.Errorf("read reference record: %w", err)
	}

	for {
		rec, c, err := r.Next()
		if err == io.EOF {
			return Match{}, false, nil
		}
		if err != nil {
			return Match{}, false, err
		}

		if d := l1records.RelativeChange(rec.PosDisp(), ref.PosDisp()); d > dispPercent {
			return Match{Cursor: c, Record: rec, Channel: ChannelPositive, Change: d}, true, nil
		}
		if d := l1records.RelativeChange(rec.NegDisp(), ref.NegDisp()); d > dispPercent {
			return Match{Cursor: c, Record: rec, Channel: ChannelNegative, Change: d}, true, nil
		}
	}
}

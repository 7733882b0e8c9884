// Package l3preload owns Layer 3 (Preload) of the fatigue data model.
//
// Responsibilities: locating the first record of the stabilised region
// that follows the pre-load phase, using a sliding window over the
// reduced cycle stream.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3preload

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
	"github.com/banshee-data/fatigue.report/internal/monitoring"
)

var logf = monitoring.WithPrefix("preload")

// ErrPreloadNotFound is returned when the stream ends before any window
// satisfies both the variability and the load conditions.
var ErrPreloadNotFound = errors.New("reached end of stream while detecting the end of the pre-load phase")

// DefaultBufferSize is the window length used when Params.BufferSize is 0.
const DefaultBufferSize = 5

// StdPolicy selects how the two channel deviations are compared with MinStd.
type StdPolicy string

const (
	// StdPolicyBoth requires each channel's deviation to be below MinStd.
	StdPolicyBoth StdPolicy = "both"
	// StdPolicyMean requires the mean of the two deviations to be below MinStd.
	StdPolicyMean StdPolicy = "mean"
)

// Params configures Detect.
type Params struct {
	ExpectedLoad         float64   // expected load magnitude
	LoadTolerancePercent float64   // accepted deviation, percent of ExpectedLoad
	MinStd               float64   // variability ceiling
	BufferSize           int       // window length; 0 means DefaultBufferSize
	StdPolicy            StdPolicy // empty means StdPolicyBoth
}

// Validate fills defaults and rejects unusable values.
func (p *Params) Validate() error {
	if p.BufferSize == 0 {
		p.BufferSize = DefaultBufferSize
	}
	if p.BufferSize < 1 {
		return fmt.Errorf("buffer size must be positive, got %d", p.BufferSize)
	}
	if p.StdPolicy == "" {
		p.StdPolicy = StdPolicyBoth
	}
	if p.StdPolicy != StdPolicyBoth && p.StdPolicy != StdPolicyMean {
		return fmt.Errorf("unknown std policy %q", p.StdPolicy)
	}
	if p.MinStd < 0 || math.IsNaN(p.MinStd) {
		return fmt.Errorf("min std must be non-negative, got %v", p.MinStd)
	}
	if p.LoadTolerancePercent < 0 || math.IsNaN(p.LoadTolerancePercent) {
		return fmt.Errorf("load tolerance must be non-negative, got %v", p.LoadTolerancePercent)
	}
	return nil
}

// Boundary marks the first record of the stabilised region.
type Boundary struct {
	Cursor  l1records.Cursor
	Record  l1records.Record
	Scanned int // records read before the window was accepted
}

// Detect scans r from its current position. Once the window holds
// BufferSize records it is tested after every append; the first accepted
// window ends the scan and its oldest record is the boundary. A rejected
// full window evicts its oldest record before the scan continues.
func Detect(r *l1records.Reader, p Params) (Boundary, error) {
	if err := p.Validate(); err != nil {
		return Boundary{}, err
	}

	w := newWindow(p.BufferSize)
	pos := make([]float64, p.BufferSize)
	neg := make([]float64, p.BufferSize)
	scanned := 0

	for {
		rec, c, err := r.Next()
		if err == io.EOF {
			logf("no stable window in %d records", scanned)
			return Boundary{}, ErrPreloadNotFound
		}
		if err != nil {
			return Boundary{}, err
		}
		scanned++

		w.push(rec, c)
		if !w.full() {
			continue
		}

		w.loads(pos, neg)
		if p.accepts(pos, neg) {
			first, cursor := w.oldest()
			logf("stable window found after %d records, boundary at cycle %v", scanned, first.Cycle())
			return Boundary{Cursor: cursor, Record: first, Scanned: scanned}, nil
		}
		w.dropOldest()
	}
}

// accepts applies the variability gate and then the load tolerance to one
// full window of load values.
func (p Params) accepts(pos, neg []float64) bool {
	posMean, posStd := stat.PopMeanStdDev(pos, nil)
	negMean, negStd := stat.PopMeanStdDev(neg, nil)

	switch p.StdPolicy {
	case StdPolicyMean:
		if (posStd+negStd)/2 >= p.MinStd {
			return false
		}
	default:
		if posStd >= p.MinStd || negStd >= p.MinStd {
			return false
		}
	}

	level := (math.Abs(posMean) + math.Abs(negMean)) / 2
	return math.Abs(p.ExpectedLoad-level) < p.ExpectedLoad*p.LoadTolerancePercent/100
}

package l3preload

import "github.com/banshee-data/fatigue.report/internal/fatigue/l1records"

// window is a fixed-capacity FIFO of records and the cursors they were
// read at. Both always evict together.
type window struct {
	recs    []l1records.Record
	cursors []l1records.Cursor
	start   int
	size    int
}

func newWindow(capacity int) *window {
	return &window{
		recs:    make([]l1records.Record, capacity),
		cursors: make([]l1records.Cursor, capacity),
	}
}

func (w *window) full() bool { return w.size == len(w.recs) }

// push appends at the tail, evicting the oldest entry when full.
func (w *window) push(rec l1records.Record, c l1records.Cursor) {
	if w.full() {
		w.dropOldest()
	}
	i := (w.start + w.size) % len(w.recs)
	w.recs[i] = rec
	w.cursors[i] = c
	w.size++
}

func (w *window) dropOldest() {
	if w.size == 0 {
		return
	}
	w.start = (w.start + 1) % len(w.recs)
	w.size--
}

func (w *window) oldest() (l1records.Record, l1records.Cursor) {
	return w.recs[w.start], w.cursors[w.start]
}

// loads copies the load channels, oldest first, into pos and neg, which
// must have room for size values.
func (w *window) loads(pos, neg []float64) {
	for k := 0; k < w.size; k++ {
		i := (w.start + k) % len(w.recs)
		pos[k] = w.recs[i].PosLoad()
		neg[k] = w.recs[i].NegLoad()
	}
}

// Package loadtable reads the expected load of each specimen from a
// whitespace-separated "name load" text file.
package loadtable

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSpecimenNotFound is returned by Lookup for a name absent from the table.
var ErrSpecimenNotFound = errors.New("specimen not in load table")

// Table maps specimen names to expected loads.
type Table struct {
	loads map[string]float64
	order []string
}

// Parse reads one entry per line: a specimen name and its load separated by
// whitespace. Blank lines and lines with a single field are ignored; extra
// fields are ignored. When a name repeats, the first entry wins.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{loads: make(map[string]float64)}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		load, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid load %q for %s: %w", line, fields[1], fields[0], err)
		}
		if _, dup := t.loads[fields[0]]; dup {
			continue
		}
		t.loads[fields[0]] = load
		t.order = append(t.order, fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the load for specimen.
func (t *Table) Lookup(specimen string) (float64, error) {
	load, ok := t.loads[specimen]
	if !ok {
		return 0, fmt.Errorf("%s: %w", specimen, ErrSpecimenNotFound)
	}
	return load, nil
}

// Names lists the specimens in file order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.order) }

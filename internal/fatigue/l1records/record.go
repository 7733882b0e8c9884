package l1records

import (
	"math"
	"strconv"
	"strings"
)

// NumFields is the record arity shared by the instrument CSV and every
// intermediate file.
const NumFields = 7

// Field positions within a Record.
const (
	FieldIndex   = iota // sample index or time
	FieldCycle          // loading cycle id
	FieldTime           // unused by the analysis
	FieldPosDisp        // positive displacement channel
	FieldNegDisp        // negative displacement channel
	FieldPosLoad        // positive load channel
	FieldNegLoad        // negative load channel
)

// Schema selects how a line is split into fields.
type Schema int

const (
	// SchemaReduced is the intermediate-file layout: exactly NumFields
	// comma-separated values per line.
	SchemaReduced Schema = iota
	// SchemaRaw is the instrument export layout. Every line ends with a
	// trailing delimiter, so the last split element is discarded.
	SchemaRaw
)

func (s Schema) String() string {
	switch s {
	case SchemaRaw:
		return "raw"
	case SchemaReduced:
		return "reduced"
	default:
		return "unknown"
	}
}

// Record is one parsed sample. Text keeps the trimmed source token of each
// field so records can be written back out without reformatting.
type Record struct {
	Values [NumFields]float64
	Text   [NumFields]string
}

func (r Record) Index() float64   { return r.Values[FieldIndex] }
func (r Record) Cycle() float64   { return r.Values[FieldCycle] }
func (r Record) PosDisp() float64 { return r.Values[FieldPosDisp] }
func (r Record) NegDisp() float64 { return r.Values[FieldNegDisp] }
func (r Record) PosLoad() float64 { return r.Values[FieldPosLoad] }
func (r Record) NegLoad() float64 { return r.Values[FieldNegLoad] }

// String returns the comma-joined source tokens, without a line terminator.
func (r Record) String() string {
	return strings.Join(r.Text[:], ",")
}

// NewRecord builds a Record from values, formatting each with the shortest
// representation that round-trips. Intended for fixtures and tools.
func NewRecord(values [NumFields]float64) Record {
	var rec Record
	rec.Values = values
	for i, v := range values {
		rec.Text[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return rec
}

// ParseLine parses a single line under the given schema. It reports false
// for any line with the wrong field count or a non-numeric field; callers
// skip such lines rather than failing.
func ParseLine(line string, schema Schema) (Record, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Record{}, false
	}

	parts := strings.Split(line, ",")
	if schema == SchemaRaw {
		parts = parts[:len(parts)-1]
	}
	if len(parts) != NumFields {
		return Record{}, false
	}

	var rec Record
	for i, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Record{}, false
		}
		rec.Values[i] = v
		rec.Text[i] = p
	}
	return rec, true
}

// RelativeChange returns |value-ref| as a percentage of |ref|.
//
// A zero reference has no defined ratio: the change is 0 when value is
// also zero and +Inf otherwise, so it exceeds every finite threshold.
func RelativeChange(value, ref float64) float64 {
	d := math.Abs(value - ref)
	if ref == 0 {
		if d == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return d / math.Abs(ref) * 100
}

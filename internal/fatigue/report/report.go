// Package report renders batch outcomes as a summary table, one row per
// specimen, in CSV or as an Excel workbook.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/fatigue.report/internal/fatigue/batch"
	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
	"github.com/banshee-data/fatigue.report/internal/fatigue/pipeline"
)

// NotFound fills the cells of a phase that was not reached.
const NotFound = "not found"

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Summary"

// Header lists the summary columns.
var Header = []string{"specimen", "timePL", "cyclesPL", "timeYP", "cyclesYP", "timeBP", "cyclesBP", "error"}

// Cell is the time and cycle position of one phase boundary, in the text
// of the source record.
type Cell struct {
	Time   string
	Cycles string
}

func cellOf(rec l1records.Record) Cell {
	return Cell{Time: rec.Text[l1records.FieldIndex], Cycles: rec.Text[l1records.FieldCycle]}
}

func phaseCell(p pipeline.Phase) Cell {
	if !p.Found {
		return Cell{Time: NotFound, Cycles: NotFound}
	}
	return cellOf(p.Match.Record)
}

// Row is one specimen in the summary.
type Row struct {
	Specimen string
	Preload  Cell
	Yield    Cell
	Break    Cell
	Error    string
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{
		r.Specimen,
		r.Preload.Time, r.Preload.Cycles,
		r.Yield.Time, r.Yield.Cycles,
		r.Break.Time, r.Break.Cycles,
		r.Error,
	}
}

// FromResult builds the row of a successful run.
func FromResult(res *pipeline.Result) Row {
	return Row{
		Specimen: res.Specimen,
		Preload:  cellOf(res.Preload.Record),
		Yield:    phaseCell(res.Yield),
		Break:    phaseCell(res.Break),
	}
}

// FromOutcome builds the row of one batch outcome. A failed specimen keeps
// its name and error with empty phase cells.
func FromOutcome(o batch.Outcome) Row {
	if o.Err != nil {
		return Row{Specimen: o.Specimen, Error: o.Err.Error()}
	}
	return FromResult(o.Result)
}

// FromRun builds the rows of a batch in discovery order.
func FromRun(run *batch.Run) []Row {
	rows := make([]Row, 0, len(run.Outcomes))
	for _, o := range run.Outcomes {
		rows = append(rows, FromOutcome(o))
	}
	return rows
}

// WriteCSV writes the header and rows.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the summary as a single-sheet workbook. Numeric cells
// are stored as numbers.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := r.Values()
		out := make([]interface{}, len(values))
		for j, v := range values {
			out[j] = v
			if j == 0 || j == len(values)-1 {
				continue
			}
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				out[j] = n
			}
		}
		if err := f.SetSheetRow(SheetName, cell, &out); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	return f.Write(w)
}

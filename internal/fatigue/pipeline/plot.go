package pipeline

import (
	"fmt"
	"io"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
	"github.com/banshee-data/fatigue.report/internal/fatigue/plot"
	"github.com/banshee-data/fatigue.report/internal/security"
)

// markers returns the phase boundaries found so far.
func (res *Result) markers() []plot.Marker {
	marks := []plot.Marker{{Label: "preload", Cycle: res.Preload.Record.Cycle()}}
	if res.Yield.Found {
		marks = append(marks, plot.Marker{Label: "yield", Cycle: res.Yield.Match.Record.Cycle()})
	}
	if res.Break.Found {
		marks = append(marks, plot.Marker{Label: "break", Cycle: res.Break.Match.Record.Cycle()})
	}
	return marks
}

// plot draws the reduced stream into PlotDir. It runs before the
// intermediate files are removed.
func (rn *Runner) plot(reduced, dir string, res *Result) ([]string, error) {
	in, err := rn.FS.Open(reduced)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	s, err := plot.Collect(l1records.NewReader(in, l1records.SchemaReduced))
	if err != nil {
		return nil, err
	}
	if err := rn.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	marks := res.markers()

	outputs := []struct {
		suffix string
		render func(io.Writer) error
	}{
		{"_displacement.png", func(w io.Writer) error { return plot.WritePNG(w, res.Specimen, s, plot.Displacement, marks) }},
		{"_load.png", func(w io.Writer) error { return plot.WritePNG(w, res.Specimen, s, plot.Load, marks) }},
		{".html", func(w io.Writer) error { return plot.WriteHTML(w, res.Specimen, s, marks) }},
	}

	files := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path, err := security.ArtifactPath(dir, res.Specimen, o.suffix)
		if err != nil {
			return files, err
		}
		if err := rn.writeFile(path, o.render); err != nil {
			return files, fmt.Errorf("%s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func (rn *Runner) writeFile(path string, render func(io.Writer) error) error {
	f, err := rn.FS.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/fatigue.report/internal/config"
	"github.com/banshee-data/fatigue.report/internal/db"
	"github.com/banshee-data/fatigue.report/internal/fatigue/batch"
	"github.com/banshee-data/fatigue.report/internal/fatigue/loadtable"
	"github.com/banshee-data/fatigue.report/internal/fatigue/pipeline"
	"github.com/banshee-data/fatigue.report/internal/fatigue/report"
	"github.com/banshee-data/fatigue.report/internal/security"
	"github.com/banshee-data/fatigue.report/internal/version"
)

// DB_FILE is the default results database.
const DB_FILE = "fatigue.db"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "process":
		err = runProcess(ctx, args, os.Stdout)
	case "batch":
		err = runBatch(ctx, args, os.Stdout)
	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		dbPath := fs.String("db", DB_FILE, "Results database")
		fs.Parse(args)
		err = db.RunMigrateCommand(fs.Args(), *dbPath, os.Stdout)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`fatigue - locate preload, yield and breaking points in fatigue recordings

Usage: fatigue <command> [options]

Commands:
  process    Analyse a single recording
  batch      Analyse every recording under a folder and write a summary
  migrate    Manage the results database schema
  version    Show version
  help       Show this help message

Examples:
  fatigue process -load 120 "S12 run.csv"
  fatigue batch -root ./recordings -loads loads.txt -out ./results -xlsx
  fatigue migrate -db fatigue.db status`)
}

// loadConfig returns the defaults when path is empty.
func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.EmptyAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}

func runProcess(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(out)
	load := fs.Float64("load", 0, "Expected preload load (required)")
	configPath := fs.String("config", "", "Analysis config JSON (defaults when empty)")
	tolerance := fs.Float64("tolerance", -1, "Preload load tolerance percent (overrides config)")
	minStd := fs.Float64("std", -1, "Preload variability ceiling (overrides config)")
	buffer := fs.Int("buffer", 0, "Preload window length (overrides config)")
	plotDir := fs.String("plots", "", "Write diagnostic charts to this directory")
	keep := fs.Bool("keep", false, "Keep intermediate files next to the charts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: fatigue process -load <load> [options] <recording.csv>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	p := cfg.PipelineParams(*load)
	if *tolerance >= 0 {
		p.LoadTolerancePercent = *tolerance
	}
	if *minStd >= 0 {
		p.MinStd = *minStd
	}
	if *buffer > 0 {
		p.BufferSize = *buffer
	}
	if *plotDir != "" {
		if err := os.MkdirAll(*plotDir, 0o755); err != nil {
			return err
		}
		p.PlotDir = *plotDir
		if *keep {
			p.WorkDir = *plotDir
			p.KeepIntermediate = true
		}
	}

	res, err := pipeline.Run(ctx, fs.Arg(0), p)
	if err != nil {
		return err
	}
	printPhases(out, res, p)
	return nil
}

// printPhases writes each boundary heading followed by its record, or
// "not found".
func printPhases(out io.Writer, res *pipeline.Result, p pipeline.Params) {
	fmt.Fprintln(out, "End of preload")
	fmt.Fprintln(out, res.Preload.Record.String())
	printPhase(out, fmt.Sprintf("Yield point (%g%% disp)", p.YieldDispPercent), res.Yield)
	if p.DetectBreak {
		printPhase(out, fmt.Sprintf("Breaking point (%g%% disp)", p.BreakDispPercent), res.Break)
	}
}

func printPhase(out io.Writer, heading string, ph pipeline.Phase) {
	fmt.Fprintln(out, heading)
	if !ph.Found {
		fmt.Fprintln(out, report.NotFound)
		return
	}
	fmt.Fprintf(out, "%s [%s channel, %+.2f%%]\n", ph.Match.Record.String(), ph.Match.Channel, ph.Match.Change)
}

type batchFlags struct {
	root       string
	loads      string
	configPath string
	outDir     string
	xlsx       bool
	dbPath     string
	workers    int
	plots      bool
	keep       bool
}

func parseBatchFlags(args []string, out io.Writer) (batchFlags, error) {
	var f batchFlags
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&f.root, "root", ".", "Folder searched recursively for *.csv recordings")
	fs.StringVar(&f.loads, "loads", "", "Load table: one 'specimen load' pair per line (required)")
	fs.StringVar(&f.configPath, "config", "", "Analysis config JSON (defaults when empty)")
	fs.StringVar(&f.outDir, "out", "results", "Output directory for the summary and charts")
	fs.BoolVar(&f.xlsx, "xlsx", false, "Also write summary.xlsx")
	fs.StringVar(&f.dbPath, "db", "", "Store the run in this SQLite database (disabled when empty)")
	fs.IntVar(&f.workers, "workers", 0, "Specimens analysed concurrently (overrides config)")
	fs.BoolVar(&f.plots, "plots", false, "Write diagnostic charts (overrides config)")
	fs.BoolVar(&f.keep, "keep", false, "Keep intermediate files (overrides config)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.loads == "" {
		return f, errors.New("-loads is required")
	}
	return f, nil
}

func runBatch(ctx context.Context, args []string, out io.Writer) error {
	f, err := parseBatchFlags(args, out)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}

	lf, err := os.Open(f.loads)
	if err != nil {
		return err
	}
	loads, err := loadtable.Parse(lf)
	lf.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", f.loads, err)
	}

	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return err
	}

	// ExpectedLoad is replaced per specimen by the driver.
	params := cfg.PipelineParams(0)
	if f.plots || cfg.GetPlots() {
		params.PlotDir = filepath.Join(f.outDir, "plots")
	}
	if f.keep || cfg.GetKeepIntermediate() {
		params.KeepIntermediate = true
		params.WorkDir = filepath.Join(f.outDir, "intermediate")
		if err := os.MkdirAll(params.WorkDir, 0o755); err != nil {
			return err
		}
	}
	workers := cfg.GetWorkers()
	if f.workers > 0 {
		workers = f.workers
	}

	run, err := batch.NewDriver().Execute(ctx, batch.Options{
		Root:    f.root,
		Loads:   loads,
		Params:  params,
		Workers: workers,
		Skip:    []string{f.outDir},
	})
	if err != nil {
		return err
	}

	rows := report.FromRun(run)
	if err := writeSummary(f.outDir, ".csv", rows, report.WriteCSV); err != nil {
		return err
	}
	if f.xlsx {
		if err := writeSummary(f.outDir, ".xlsx", rows, report.WriteXLSX); err != nil {
			return err
		}
	}

	if f.dbPath != "" {
		store, err := db.NewDB(f.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveRun(run); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "run %s: %d specimens, %d failed\n", run.ID, len(run.Outcomes), run.Failed())
	return nil
}

func writeSummary(dir, ext string, rows []report.Row, write func(io.Writer, []report.Row) error) error {
	path, err := security.ArtifactPath(dir, "summary", ext)
	if err != nil {
		return err
	}
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(w, rows); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Close()
}

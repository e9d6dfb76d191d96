package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	yoloprep "github.com/menta2k/yolo-prep"
	"github.com/menta2k/yolo-prep/internal/cli"
	"github.com/menta2k/yolo-prep/internal/config"
	"github.com/menta2k/yolo-prep/internal/monitoring"
	"github.com/menta2k/yolo-prep/pkg/ledger"
	"github.com/menta2k/yolo-prep/pkg/report"
	"github.com/menta2k/yolo-prep/pkg/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	manifest     string
	verbose      bool
	configPath   string
	jsonPath     string
	ledgerPath   string
	chartDir     string
	workers      int
	minBoxPixels float64
	minImageSize int
	progress     bool
	noColor      bool
	logLevel     string
}

func parseFlags(args []string, stderr io.Writer) (*options, map[string]bool, error) {
	var o options
	fset := flag.NewFlagSet("yolo-validate", flag.ContinueOnError)
	fset.SetOutput(stderr)

	// short and long forms bind to the same variable
	fset.BoolVar(&o.verbose, "verbose", false, "list every missing, corrupted and invalid file")
	fset.BoolVar(&o.verbose, "v", false, "list every problem (alias for -verbose)")
	fset.StringVar(&o.configPath, "config", "", "JSON configuration file (default: "+config.GetConfigPath()+" when present)")
	fset.StringVar(&o.jsonPath, "json", "", "write the full validation result as JSON to this file")
	fset.StringVar(&o.ledgerPath, "ledger", "", "record the run in this SQLite ledger")
	fset.StringVar(&o.chartDir, "chart-dir", "", "write the training class distribution charts to this directory")
	fset.IntVar(&o.workers, "workers", 0, "number of parallel workers (default: number of CPUs)")
	fset.Float64Var(&o.minBoxPixels, "min-box-pixels", 0, "reject boxes smaller than this many pixels on either side")
	fset.IntVar(&o.minImageSize, "min-image-size", 0, "warn about images with a side shorter than this many pixels")
	fset.BoolVar(&o.progress, "progress", false, "show progress bars")
	fset.BoolVar(&o.noColor, "no-color", false, "disable coloured output")
	fset.StringVar(&o.logLevel, "log-level", "info", "log level: debug|info|warn|error")

	fset.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [options] MANIFEST\n\n", fset.Name())
		fmt.Fprintf(stderr, "Validates a YOLO dataset described by a data.yaml manifest.\n")
		fmt.Fprintf(stderr, "Exits 1 when a label file is invalid, an image is corrupted or there are no training images.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fset.PrintDefaults()
	}

	if err := fset.Parse(args); err != nil {
		return nil, nil, err
	}
	if fset.NArg() != 1 {
		fset.Usage()
		return nil, nil, errors.New("exactly one manifest path is required")
	}
	o.manifest = fset.Arg(0)
	return &o, cli.Visited(fset), nil
}

func run(ctx context.Context, fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	o, set, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return cli.ExitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return cli.ExitFailure
	}
	monitoring.Setup(o.logLevel, stderr)

	cfg, err := cli.LoadConfig(fs, o.configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return cli.ExitFailure
	}
	if set["workers"] {
		cfg.Runtime.Workers = o.workers
	}
	if set["min-box-pixels"] {
		cfg.Checks.MinBoxPixels = o.minBoxPixels
	}
	if set["min-image-size"] {
		cfg.Checks.MinImageSize = o.minImageSize
	}
	if set["json"] {
		cfg.Output.JSONReport = o.jsonPath
	}
	if set["ledger"] {
		cfg.Output.Ledger = o.ledgerPath
	}
	if set["chart-dir"] {
		cfg.Output.ChartDir = o.chartDir
	}
	if set["progress"] {
		cfg.Runtime.Progress = o.progress
	}
	if set["log-level"] {
		cfg.Runtime.LogLevel = o.logLevel
	} else if cfg.Runtime.LogLevel != o.logLevel {
		monitoring.Setup(cfg.Runtime.LogLevel, stderr)
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return cli.ExitFailure
	}

	p := report.NewPrinter(stdout, o.verbose, !o.noColor && cli.ColorEnabled(stdout))
	p.Banner("YOLO Dataset Validation")

	if ok, _ := afero.Exists(fs, o.manifest); !ok {
		p.Error("Configuration file not found: %s", o.manifest)
		return cli.ExitFailure
	}
	p.Success("Found configuration: %s", o.manifest)
	p.Step("Validating configuration and dataset paths...")

	opts := yoloprep.ValidateOptionsFromConfig(cfg, o.manifest)
	if cfg.Runtime.Progress {
		opts.Progress = stderr
	}
	res, err := yoloprep.NewWithFs(fs).Validate(ctx, opts)
	if err != nil {
		printFatal(p, err)
		return cli.ExitFailure
	}
	p.Success("Dataset paths valid")

	p.Step("Validating training set...")
	printSubset(p, res.Train, "training")
	if res.Train.Tally.Total == 0 {
		p.Error("No training images found!")
	}
	p.ImageSizes(res.Images)

	p.Step("Analyzing class distribution...")
	p.Distribution("Class Distribution (Training Set)", res.Distribution, res.Config.Name)
	if cfg.Output.ChartDir != "" {
		paths, err := cli.WriteCharts(fs, cfg.Output.ChartDir, types.SubsetTrain,
			"Class Distribution (Training Set)", res.Distribution, res.Config.Names)
		if err != nil {
			p.Warning("Failed to write charts: %v", err)
		}
		for _, path := range paths {
			p.Info("Chart: %s", path)
		}
	}

	if res.Val != nil {
		p.Step("Validating validation set...")
		printSubset(p, res.Val, "validation")
		if res.Val.Tally.Total > 0 {
			p.Success("Validation set has %d images", res.Val.Tally.Total)
		}
	}
	for _, w := range res.Warnings {
		p.Warning("%s", w)
	}

	record(ctx, fs, cfg.Output.JSONReport, cfg.Output.Ledger, res)

	p.Line("")
	p.Line("%s", strings.Repeat("═", 37))
	if !res.Passed {
		p.Error("Validation completed with errors")
		p.Line("")
		p.Info("Fix the issues above before training")
		return cli.ExitFailure
	}
	p.Success("Validation passed!")
	p.Line("")
	p.Info("Dataset is ready for training")
	return cli.ExitOK
}

func printFatal(p *report.Printer, err error) {
	switch {
	case errors.Is(err, types.ErrMissingKey), errors.Is(err, types.ErrInvalidManifest):
		p.Error("Invalid configuration structure: %v", err)
	case errors.Is(err, types.ErrSourceMissing):
		p.Error("Base path does not exist: %v", err)
	case errors.Is(err, types.ErrTrainImagesMissing):
		p.Error("Training images path does not exist: %v", err)
	default:
		p.Error("Validation failed: %v", err)
	}
}

func printSubset(p *report.Printer, rep *report.ValidationReport, name string) {
	p.Info("Found %d %s images", rep.Tally.Total, name)
	p.Missing(rep.Missing)
	p.Invalid("corrupted images", rep.Corrupted())
	invalid := rep.InvalidLabels()
	p.Invalid("invalid label files", invalid)
	if len(invalid) == 0 && rep.Tally.Valid > 0 {
		p.Success("All %s labels valid", name)
	}
}

// record writes the JSON report and the ledger entry when enabled. Failures are
// reported but never change the exit code.
func record(ctx context.Context, fs afero.Fs, jsonPath, ledgerPath string, res *yoloprep.ValidateResult) {
	if jsonPath != "" {
		if err := report.WriteJSON(fs, jsonPath, res); err != nil {
			log.Warn().Err(err).Str("path", jsonPath).Msg("failed to write JSON report")
		}
	}
	if ledgerPath == "" {
		return
	}
	run := &ledger.Run{
		Mode:       ledger.ModeValidate,
		Source:     res.Config.File,
		Output:     res.Config.BasePath(),
		Tally:      res.Tally,
		Passed:     res.Passed,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Files:      append(ledger.FilesFromReport(res.Train), ledger.FilesFromReport(res.Val)...),
	}
	id, err := cli.RecordRun(ctx, ledgerPath, run)
	if err != nil {
		log.Warn().Err(err).Str("path", ledgerPath).Msg("failed to record run")
		return
	}
	log.Info().Str("run_id", id).Msg("recorded run")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	yoloprep "github.com/menta2k/yolo-prep"
	"github.com/menta2k/yolo-prep/internal/cli"
	"github.com/menta2k/yolo-prep/internal/config"
	"github.com/menta2k/yolo-prep/internal/monitoring"
	"github.com/menta2k/yolo-prep/pkg/distribution"
	"github.com/menta2k/yolo-prep/pkg/ledger"
	"github.com/menta2k/yolo-prep/pkg/registry"
	"github.com/menta2k/yolo-prep/pkg/report"
	"github.com/menta2k/yolo-prep/pkg/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	source, output    string
	trainRatio        float64
	seed              int64
	configPath        string
	workers, quality  int
	dropInvalidLines  bool
	webpLossless      bool
	minBoxPixels      float64
	minImageSize      int
	jsonPath          string
	ledgerPath        string
	chartDir          string
	progress, noColor bool
	logLevel          string
}

func parseFlags(args []string, stderr io.Writer) (*options, map[string]bool, error) {
	var o options
	fset := flag.NewFlagSet("yolo-prep", flag.ContinueOnError)
	fset.SetOutput(stderr)

	fset.StringVar(&o.source, "source", "", "source directory holding images and their .txt labels side by side")
	fset.StringVar(&o.output, "output", "", "output directory for the train/val layout")
	fset.Float64Var(&o.trainRatio, "train-ratio", 0.8, "fraction of pairs assigned to train (0..1, exclusive)")
	fset.Int64Var(&o.seed, "seed", 42, "random seed for the split")
	fset.StringVar(&o.configPath, "config", "", "JSON configuration file (default: "+config.GetConfigPath()+" when present)")
	fset.IntVar(&o.workers, "workers", 0, "number of parallel workers (default: number of CPUs)")
	fset.IntVar(&o.quality, "quality", 95, "JPEG/WebP output quality (1-100)")
	fset.BoolVar(&o.dropInvalidLines, "drop-invalid-lines", false, "keep label files with some valid lines, dropping the invalid ones")
	fset.BoolVar(&o.webpLossless, "webp-lossless", false, "write WebP images losslessly")
	fset.Float64Var(&o.minBoxPixels, "min-box-pixels", 0, "reject boxes smaller than this many pixels on either side")
	fset.IntVar(&o.minImageSize, "min-image-size", 0, "warn about images with a side shorter than this many pixels")
	fset.StringVar(&o.jsonPath, "json", "", "write the full run result as JSON to this file")
	fset.StringVar(&o.ledgerPath, "ledger", "", "record the run in this SQLite ledger")
	fset.StringVar(&o.chartDir, "chart-dir", "", "write class distribution charts (HTML and PNG) to this directory")
	fset.BoolVar(&o.progress, "progress", false, "show progress bars")
	fset.BoolVar(&o.noColor, "no-color", false, "disable coloured output")
	fset.StringVar(&o.logLevel, "log-level", "info", "log level: debug|info|warn|error")

	fset.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s -source DIR -output DIR [options]\n\n", fset.Name())
		fmt.Fprintf(stderr, "Checks a flat YOLO dataset, splits it into train/val and writes the canonical layout:\n")
		fmt.Fprintf(stderr, "  images/{train,val}, labels/{train,val}, classes.txt, data.yaml\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fset.PrintDefaults()
	}

	if err := fset.Parse(args); err != nil {
		return nil, nil, err
	}
	if o.source == "" || o.output == "" {
		fset.Usage()
		return nil, nil, errors.New("-source and -output are required")
	}
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
	if set["train-ratio"] {
		cfg.Dataset.TrainRatio = o.trainRatio
	}
	if set["seed"] {
		cfg.Dataset.Seed = o.seed
	}
	if set["workers"] {
		cfg.Runtime.Workers = o.workers
	}
	if set["quality"] {
		cfg.Output.Quality = o.quality
	}
	if set["drop-invalid-lines"] {
		cfg.Checks.DropInvalidLines = o.dropInvalidLines
	}
	if set["webp-lossless"] {
		cfg.Output.WebPLossless = o.webpLossless
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

	p := report.NewPrinter(stdout, false, !o.noColor && cli.ColorEnabled(stdout))
	p.Banner("YOLO Dataset Preprocessing")
	p.Info("Source: %s", o.source)
	p.Info("Output: %s", o.output)
	p.Info("Split:  train %.0f%%, val %.0f%% (seed %d)",
		cfg.Dataset.TrainRatio*100, (1-cfg.Dataset.TrainRatio)*100, cfg.Dataset.Seed)

	opts := yoloprep.PreprocessOptionsFromConfig(cfg, o.source, o.output)
	if cfg.Runtime.Progress {
		opts.Progress = stderr
	}

	p.Step("Checking images and labels...")
	res, err := yoloprep.NewWithFs(fs).Preprocess(ctx, opts)
	if res != nil {
		printChecks(p, res)
	}
	if err != nil {
		if res != nil && errors.Is(err, types.ErrNoValidPairs) {
			p.Statistics(res.Tally)
			record(ctx, fs, cfg.Output.JSONReport, cfg.Output.Ledger, res, false)
		}
		p.Line("")
		p.Error("Preprocessing failed: %v", err)
		return cli.ExitFailure
	}

	p.ImageSizes(res.Images)
	p.Success("Train: %d, Val: %d", len(res.Train), len(res.Val))
	if res.Tally.WriteFailures > 0 {
		p.Invalid("pairs could not be written", res.Failures)
	}
	printRegistry(p, res.Registry, res.ClassesFile)
	if res.Manifest != "" {
		p.Success("Wrote dataset manifest: %s", res.Manifest)
	}

	for _, s := range []struct {
		subset, title string
		stats         *distribution.Stats
	}{
		{types.SubsetTrain, "Class Distribution (Training Set)", res.TrainStats},
		{types.SubsetVal, "Class Distribution (Validation Set)", res.ValStats},
	} {
		if s.stats == nil {
			continue
		}
		p.Distribution(s.title, *s.stats, res.Registry.Name)
		if cfg.Output.ChartDir != "" {
			paths, err := cli.WriteCharts(fs, cfg.Output.ChartDir, s.subset, s.title, *s.stats, res.Registry.Names)
			if err != nil {
				p.Warning("Failed to write %s charts: %v", s.subset, err)
			}
			for _, path := range paths {
				p.Info("Chart: %s", path)
			}
		}
	}

	p.Statistics(res.Tally)
	record(ctx, fs, cfg.Output.JSONReport, cfg.Output.Ledger, res, true)

	p.Line("")
	p.Success("Preprocessing complete")
	p.Info("Train images: %s", filepath.Join(o.output, "images", types.SubsetTrain))
	p.Info("Val images:   %s", filepath.Join(o.output, "images", types.SubsetVal))
	return cli.ExitOK
}

func printChecks(p *report.Printer, res *yoloprep.PreprocessResult) {
	rep := res.Report
	p.Missing(rep.Missing)
	p.Invalid("corrupted images", rep.Corrupted())
	p.Invalid("invalid label files", rep.InvalidLabels())
	if rep.Tally.Valid > 0 {
		p.Success("Found %d valid image/label pairs", rep.Tally.Valid)
	}
}

func printRegistry(p *report.Printer, reg *registry.Registry, classesFile string) {
	switch {
	case classesFile == "":
		p.Error("Could not determine classes; create classes.txt manually")
		return
	case reg.Origin == registry.OriginExplicit:
		p.Success("Copied class manifest: %s", classesFile)
	default:
		p.Warning("Source has no %s; classes inferred from labels", registry.ClassesFile)
		p.Success("Wrote class manifest: %s", classesFile)
	}
	p.Info("Classes (%d): %v", reg.NC(), reg.Names)
	if gaps := reg.Gaps(); len(gaps) > 0 {
		p.Warning("Class ids never observed: %v", gaps)
	}
}

// record writes the JSON report and the ledger entry when enabled. Failures are
// reported but never change the exit code.
func record(ctx context.Context, fs afero.Fs, jsonPath, ledgerPath string, res *yoloprep.PreprocessResult, passed bool) {
	if jsonPath != "" {
		if err := report.WriteJSON(fs, jsonPath, res); err != nil {
			log.Warn().Err(err).Str("path", jsonPath).Msg("failed to write JSON report")
		} else {
			log.Info().Str("path", jsonPath).Msg("wrote JSON report")
		}
	}
	if ledgerPath == "" {
		return
	}
	run := &ledger.Run{
		Mode:       ledger.ModePreprocess,
		Source:     res.Source,
		Output:     res.Output,
		Seed:       res.Seed,
		TrainRatio: res.TrainRatio,
		Tally:      res.Tally,
		Passed:     passed,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Files:      ledger.FilesFromReport(res.Report),
	}
	id, err := cli.RecordRun(ctx, ledgerPath, run)
	if err != nil {
		log.Warn().Err(err).Str("path", ledgerPath).Msg("failed to record run")
		return
	}
	log.Info().Str("run_id", id).Str("path", ledgerPath).Msg("recorded run")
}

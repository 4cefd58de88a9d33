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

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/runner"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReportFile is the name of the JSON report written into the output directory.
const ReportFile = "report.json"

// Flags holds the command line. Zero values mean "not given"; Apply only copies flags that were
// set explicitly so the config file keeps the last word otherwise.
type Flags struct {
	ConfigPath      string
	Model           string
	Labels          string
	NumClasses      int
	Backend         string
	Images          string
	Extension       string
	MinScore        float64
	Headless        bool
	OutputDir       string
	ContinueOnError bool
	LogLevel        string

	set map[string]bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string, output io.Writer) (*Flags, error) {
	f := &Flags{set: map[string]bool{}}
	fs := flag.NewFlagSet("go-detect", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&f.ConfigPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&f.Model, "model", "", "Path to the frozen inference graph")
	fs.StringVar(&f.Labels, "labels", "", "Path to the label map (.pbtxt)")
	fs.IntVar(&f.NumClasses, "num-classes", 0, "Number of classes the model detects")
	fs.StringVar(&f.Backend, "backend", "", "Inference backend: tensorflow, onnx or opencv")
	fs.StringVar(&f.Images, "images", "", "Directory of images to inspect")
	fs.StringVar(&f.Extension, "ext", "", "Image file extension, e.g. .jpg")
	fs.Float64Var(&f.MinScore, "min-score", 0, "Only draw detections scoring above this")
	fs.BoolVar(&f.Headless, "headless", false, "Write annotated images to -output-dir instead of showing them")
	fs.StringVar(&f.OutputDir, "output-dir", "", "Output directory for annotated images in headless mode")
	fs.BoolVar(&f.ContinueOnError, "continue-on-error", false, "Keep going when an image fails")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(fl *flag.Flag) {
		f.set[fl.Name] = true
	})
	return f, nil
}

// Apply overlays the explicitly set flags onto cfg.
func (f *Flags) Apply(cfg *config.Config) {
	if f.set["model"] {
		cfg.Model.Path = f.Model
	}
	if f.set["labels"] {
		cfg.Labels.Path = f.Labels
	}
	if f.set["num-classes"] {
		cfg.Labels.NumClasses = f.NumClasses
	}
	if f.set["backend"] {
		cfg.Model.Backend = config.Backend(f.Backend)
	}
	if f.set["images"] {
		cfg.Images.Dir = f.Images
	}
	if f.set["ext"] {
		cfg.Images.Extension = f.Extension
	}
	if f.set["min-score"] {
		cfg.Annotate.MinScore = float32(f.MinScore)
	}
	if f.set["headless"] {
		cfg.Display.Mode = config.DisplayInteractive
		if f.Headless {
			cfg.Display.Mode = config.DisplayHeadless
		}
	}
	if f.set["output-dir"] {
		cfg.Display.OutputDir = f.OutputDir
	}
	if f.set["continue-on-error"] {
		cfg.Run.ContinueOnError = f.ContinueOnError
	}
	if f.set["log-level"] {
		cfg.Log.Level = f.LogLevel
	}
}

// LoadConfig reads the config file if one was given, then applies the flags.
func (f *Flags) LoadConfig() (config.Config, error) {
	cfg := config.Default()
	if f.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(f.ConfigPath); err != nil {
			return cfg, err
		}
	}
	f.Apply(&cfg)
	return cfg, cfg.Validate()
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(cfg.Level); err != nil {
			return nil, errors.Wrapf(config.ErrInvalid, "log.level: %v", err)
		}
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Wrapf(config.ErrInvalid, "log.format %q is not text or json", cfg.Format)
	}
	return logger, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	flags, err := ParseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := flags.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 2
	}

	logger, err := NewLogger(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prof := profiler.New()
	d, err := detector.New(cfg, detector.WithLogger(logger), detector.WithProfiler(prof))
	if err != nil {
		logger.WithError(err).Error("failed to build detector")
		return 1
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.WithError(err).Warn("failed to close detector")
		}
	}()

	paths, err := images.ListImages(cfg.Images.Dir, cfg.Images.Extension)
	if err != nil {
		logger.WithError(err).Error("failed to list images")
		return 1
	}
	logger.WithFields(logrus.Fields{"dir": cfg.Images.Dir, "images": len(paths)}).Info("images found")

	report, err := runner.New(d, cfg.Run.ContinueOnError, logger).Run(ctx, paths)
	if err != nil {
		logger.WithError(err).Warn("run interrupted")
	}

	if cfg.Display.Report {
		out := filepath.Join(cfg.Display.OutputDir, ReportFile)
		if werr := report.WriteJSON(out); werr != nil {
			logger.WithError(werr).Error("failed to write report")
			return 1
		}
		logger.WithField("report", out).Info("report written")
	}

	prof.Log(logger)
	logger.WithFields(logrus.Fields{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}).Info("done")

	if err != nil || report.Failed > 0 {
		return 1
	}
	return 0
}

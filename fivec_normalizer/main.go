package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"FiveC-Bias-Correction/fivec_normalizer/analysis"
	"FiveC-Bias-Correction/fivec_normalizer/config"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
	"FiveC-Bias-Correction/fivec_normalizer/io"
)

const usage = "Usage: fivec-normalize [options] <interaction_file> <project_file>\n\n" +
	"Filter fragments of a 5C dataset, learn distance parameters and optional\n" +
	"fragment corrections, and write the project file.\n\nOptions:\n"

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func newLogger(quiet bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if quiet {
		cfg.Level.SetLevel(zapcore.WarnLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fivec-normalize", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}
	logger, err := newLogger(cfg.Quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	defer logger.Sync()

	if err := normalize(cfg, fs.Arg(0), fs.Arg(1), logger); err != nil {
		logger.Error("Normalization failed", zap.Error(err))
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

// normalize runs filter, distance and the configured correction, then saves.
func normalize(cfg *config.Config, dataPath, projectPath string, logger *zap.Logger) error {
	startTime := time.Now()
	ds, err := io.ReadDataset(dataPath, logger)
	if err != nil {
		return err
	}
	s := analysis.New(ds, logger)
	window := filter.Window{Min: cfg.MinDistance, Max: cfg.MaxDistance}

	if _, err := s.FilterFragments(cfg.MinInteractions, window); err != nil {
		return err
	}
	if _, err := s.FindDistanceParameters(window); err != nil {
		return err
	}

	switch cfg.Normalize {
	case config.NormalizeNone:
	case config.NormalizeProbability:
		err = s.FindProbabilityCorrections(cfg.Probability, window)
	case config.NormalizeExpress:
		err = s.FindExpressCorrections(cfg.Express, window)
	case config.NormalizeBinning:
		err = s.FindBinningCorrections(cfg.Binning, window)
	default:
		err = fmt.Errorf("%w: unknown normalization %q", errUsage, cfg.Normalize)
	}
	if err != nil {
		return err
	}

	if err := io.SaveProject(projectPath, dataPath, s); err != nil {
		return err
	}
	logger.Info("Wrote project",
		zap.String("path", projectPath),
		zap.String("normalization", s.Normalization),
		zap.Duration("elapsed", time.Since(startTime)))
	return nil
}

// Command stackfit fits one stacked-ensemble layer described by a YAML file
// on a CSV dataset and writes the out-of-fold prediction matrix.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/estimation"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
	"github.com/YuminosukeSato/mlstack/ensemble/layer"
	"github.com/YuminosukeSato/mlstack/pkg/config"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
	"github.com/YuminosukeSato/mlstack/pkg/memmap"
	"github.com/YuminosukeSato/mlstack/pkg/telemetry"
)

func main() {
	opts := NewOptions()
	fs := pflag.NewFlagSet("stackfit", pflag.ExitOnError)
	opts.AddFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if err := opts.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.GetLogger().Error("stackfit failed", err)
		stop()
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) (log.Logger, error) {
	if cfg.Log.Format == "console" {
		lvl, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		log.SetLogger(log.NewConsoleLogger(os.Stderr, lvl))
	} else if err := log.Setup(cfg.Log.Level, os.Stderr); err != nil {
		return nil, err
	}
	return log.GetLogger().With(log.ComponentKey, "stackfit"), nil
}

func run(ctx context.Context, opts *Options, stdout io.Writer) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	telemetry.Register()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	X, y, features, err := loadCSV(opts.Data, opts.Target)
	if err != nil {
		return err
	}
	rows, cols := X.Dims()
	logger.Info("data loaded", log.SamplesKey, rows, log.FeaturesKey, cols, "columns", strings.Join(features, ","))

	l, err := cfg.BuildLayer(logger)
	if err != nil {
		return err
	}
	engine, mode, err := cfg.BuildEngine(logger)
	if err != nil {
		return err
	}
	runner, err := estimation.New(l, estimation.WithEngine(engine), estimation.WithMode(mode))
	if err != nil {
		return err
	}

	c, cleanup, err := cfg.OpenCache(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("cache cleanup failed", log.ErrorKey, err.Error())
		}
	}()
	if cfg.Cache.Watch {
		if err := c.Watch(ctx); err != nil {
			return err
		}
	}

	folds, err := l.Folder().Folds(rows)
	if err != nil {
		return err
	}
	P, closeP, err := outputMatrix(opts, index.HeldOut(folds, rows), l.Columns())
	if err != nil {
		return err
	}
	defer closeP()

	res, err := runner.Fit(ctx, X, y, P, c)
	if err != nil {
		return err
	}
	l.Apply(res)

	header := columnNames(l)
	if err := saveCSV(opts.Output, header, P); err != nil {
		return err
	}
	logger.Info("prediction matrix written", "path", opts.Output, log.CacheDirKey, c.Dir())

	if opts.Predict != "" {
		F := mat.NewDense(rows, l.Columns(), nil)
		if err := runner.Predict(ctx, X, F); err != nil {
			return err
		}
		if err := saveCSV(opts.Predict, header, F); err != nil {
			return err
		}
	}

	printScores(stdout, res)

	if opts.Plot != "" {
		if err := plotOutOfFold(opts.Plot, l.Name, y, P, header); err != nil {
			return err
		}
	}
	if opts.Metrics != "" {
		if err := dumpMetrics(opts.Metrics, stdout); err != nil {
			return err
		}
	}
	return nil
}

// outputMatrix returns the prediction matrix, memory-mapped next to the
// output file when requested.
func outputMatrix(opts *Options, rows, cols int) (mat.Mutable, func(), error) {
	if !opts.Mmap {
		return mat.NewDense(rows, cols, nil), func() {}, nil
	}
	path := filepath.Join(filepath.Dir(opts.Output), "."+filepath.Base(opts.Output)+".bin")
	m, err := memmap.Create(path, rows, cols, memmap.Float64)
	if err != nil {
		return nil, nil, err
	}
	return m, func() {
		_ = m.Close()
		_ = os.Remove(path)
	}, nil
}

// columnNames names the prediction columns "case__estimator" (or
// "estimator" for the unnamed case), with a ".k" suffix for multi-column
// blocks.
func columnNames(l *layer.Layer) []string {
	names := make([]string, l.Columns())
	w := l.Width()
	for key, col := range layer.AssignColumns(l.Cases, w) {
		base := key.Estimator
		if key.Case != "" {
			base = key.Case + cache.Separator + key.Estimator
		}
		for k := 0; k < w; k++ {
			name := base
			if w > 1 {
				name = fmt.Sprintf("%s.%d", base, k)
			}
			names[col+k] = name
		}
	}
	return names
}

func printScores(w io.Writer, res *layer.FitResult) {
	if len(res.Scores) == 0 {
		return
	}
	names := make([]string, 0, len(res.Scores))
	for name := range res.Scores {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "%-30s %12s %12s\n", "estimator", "mean", "std")
	for _, name := range names {
		s := res.Scores[name]
		fmt.Fprintf(w, "%-30s %12.6f %12.6f\n", name, s.Mean, s.Std)
	}
}

func dumpMetrics(path string, stdout io.Writer) error {
	if path == "-" {
		return telemetry.WriteText(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := telemetry.WriteText(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

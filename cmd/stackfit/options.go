package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// Options holds the command line of stackfit.
type Options struct {
	Config string
	Data   string
	// Target is the name of the label column of Data.
	Target string

	Output string
	// Mmap writes the prediction matrix through a memory-mapped file.
	Mmap bool
	// Predict also writes full-data predictions of the training rows.
	Predict string
	Plot    string
	Metrics string

	Timeout time.Duration
}

// NewOptions returns the defaults.
func NewOptions() *Options {
	return &Options{
		Target:  "y",
		Output:  "oof.csv",
		Timeout: time.Hour,
	}
}

// AddFlags binds the options to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Config, "config", "c", o.Config, "Layer configuration file (YAML).")
	fs.StringVarP(&o.Data, "data", "d", o.Data, "Training data as CSV with a header row.")
	fs.StringVarP(&o.Target, "target", "t", o.Target, "Name of the label column.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Where to write the out-of-fold prediction matrix (CSV).")
	fs.BoolVar(&o.Mmap, "mmap", o.Mmap, "Fill the prediction matrix in a memory-mapped file next to --output.")
	fs.StringVar(&o.Predict, "predict", o.Predict, "Also write full-data predictions of the training rows to this CSV.")
	fs.StringVar(&o.Plot, "plot", o.Plot, "Write an out-of-fold vs target scatter plot (png, svg or pdf).")
	fs.StringVar(&o.Metrics, "metrics", o.Metrics, "Write Prometheus metrics in text format to this file ('-' for stdout).")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Abort the run after this long.")
}

// Validate checks required flags.
func (o *Options) Validate() error {
	if o.Config == "" {
		return errors.NewConfigurationError("config", "flag is required", "")
	}
	if o.Data == "" {
		return errors.NewConfigurationError("data", "flag is required", "")
	}
	if o.Target == "" {
		return errors.NewConfigurationError("target", "must not be empty", "")
	}
	if o.Output == "" {
		return errors.NewConfigurationError("output", "must not be empty", "")
	}
	if o.Timeout <= 0 {
		return errors.NewConfigurationError("timeout", "must be positive", o.Timeout)
	}
	return nil
}

// Package layer describes one layer of a stacked ensemble: its
// preprocessing cases, their estimators, the fold discipline and the fitted
// state produced by a fit.
package layer

import (
	"fmt"
	"strings"
	"time"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
	"github.com/YuminosukeSato/mlstack/metrics"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
)

// Defaults of the transformer dependency wait.
const (
	DefaultWaitInterval = 100 * time.Millisecond
	DefaultWaitLimit    = 600 * time.Second
)

// TransformerEntry is one named stage of a preprocessing pipeline.
type TransformerEntry struct {
	Name        string
	Transformer model.Transformer
}

// EstimatorEntry is one named estimator of a case.
type EstimatorEntry struct {
	Name      string
	Estimator model.Estimator
}

// Case is a named preprocessing branch and the estimators fed by it. The
// empty name is the case without preprocessing.
type Case struct {
	Name         string
	Transformers []TransformerEntry
	Estimators   []EstimatorEntry
}

// Preprocess reports whether the case has a pipeline to fit.
func (c Case) Preprocess() bool {
	return len(c.Transformers) > 0
}

// Layer is the descriptor of one ensemble layer. It is built by the caller;
// the fitted state is attached with Apply.
type Layer struct {
	Name  string
	Cases []Case

	// Indexer yields the held-out folds; nil fits on the full data only.
	Indexer index.Indexer

	// Scorer scores held-out predictions; nil disables scoring.
	Scorer metrics.Scorer

	// Proba selects PredictProba instead of Predict.
	Proba bool

	// OutputWidth is the number of columns reserved per estimator (default 1).
	OutputWidth int

	// RaiseOnException makes the first dependency wait timeout fatal instead
	// of granting one more wait cycle.
	RaiseOnException bool

	// WaitInterval and WaitLimit bound the transformer dependency wait.
	WaitInterval time.Duration
	WaitLimit    time.Duration

	// Verbose logs progress at info level instead of debug.
	Verbose bool

	Logger log.Logger

	result *FitResult
}

// Width returns the number of output columns per estimator.
func (l *Layer) Width() int {
	if l.OutputWidth < 1 {
		return 1
	}
	return l.OutputWidth
}

// Interval returns the dependency poll interval.
func (l *Layer) Interval() time.Duration {
	if l.WaitInterval <= 0 {
		return DefaultWaitInterval
	}
	return l.WaitInterval
}

// Limit returns the dependency wait limit of one wait cycle.
func (l *Layer) Limit() time.Duration {
	if l.WaitLimit <= 0 {
		return DefaultWaitLimit
	}
	return l.WaitLimit
}

// Method returns the prediction method selected by Proba.
func (l *Layer) Method() model.PredictMethod {
	if l.Proba {
		return model.MethodPredictProba
	}
	return model.MethodPredict
}

// Folder returns the indexer, defaulting to full-data fits.
func (l *Layer) Folder() index.Indexer {
	if l.Indexer == nil {
		return index.FullIndexer{}
	}
	return l.Indexer
}

// Log returns the layer logger, defaulting to the global logger.
func (l *Layer) Log() log.Logger {
	lg := l.Logger
	if lg == nil {
		lg = log.GetLogger()
	}
	return lg.With(log.LayerKey, l.Name)
}

// NPred returns the number of full-data estimators, one per (case,
// estimator) pair.
func (l *Layer) NPred() int {
	n := 0
	for _, c := range l.Cases {
		n += len(c.Estimators)
	}
	return n
}

// NPrep returns the number of cases with a preprocessing pipeline.
func (l *Layer) NPrep() int {
	n := 0
	for _, c := range l.Cases {
		if c.Preprocess() {
			n++
		}
	}
	return n
}

// Columns returns the width of the prediction matrix.
func (l *Layer) Columns() int {
	return l.NPred() * l.Width()
}

func checkName(field, name string, allowEmpty bool) error {
	if name == "" {
		if allowEmpty {
			return nil
		}
		return errors.NewConfigurationError(field, "name must not be empty", name)
	}
	if strings.Contains(name, cache.Separator) || strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return errors.NewConfigurationError(field, fmt.Sprintf("name must not contain %q or begin or end with '_'", cache.Separator), name)
	}
	return nil
}

// Validate checks the descriptor: unique well-formed names, at least one
// estimator per case, no nil instances and prediction method support.
func (l *Layer) Validate() error {
	if len(l.Cases) == 0 {
		return errors.NewConfigurationError("cases", "a layer needs at least one case", 0)
	}
	if l.OutputWidth < 0 {
		return errors.NewConfigurationError("output_width", "must not be negative", l.OutputWidth)
	}
	if l.WaitInterval < 0 || l.WaitLimit < 0 {
		return errors.NewConfigurationError("wait", "interval and limit must not be negative", fmt.Sprintf("%s/%s", l.WaitInterval, l.WaitLimit))
	}

	method := l.Method()
	cases := make(map[string]struct{}, len(l.Cases))
	for _, c := range l.Cases {
		if err := checkName("case", c.Name, true); err != nil {
			return err
		}
		if _, dup := cases[c.Name]; dup {
			return errors.NewConfigurationError("case", "duplicate case name", c.Name)
		}
		cases[c.Name] = struct{}{}

		if c.Name == "" && c.Preprocess() {
			return errors.NewConfigurationError("case", "the unnamed case cannot have transformers", len(c.Transformers))
		}
		if len(c.Estimators) == 0 {
			return errors.NewConfigurationError("case."+c.Name, "needs at least one estimator", 0)
		}

		seen := make(map[string]struct{})
		for _, tr := range c.Transformers {
			if err := checkName("transformer", tr.Name, false); err != nil {
				return err
			}
			if tr.Transformer == nil {
				return errors.NewConfigurationError("transformer", "nil transformer", tr.Name)
			}
		}
		for _, est := range c.Estimators {
			if err := checkName("estimator", est.Name, false); err != nil {
				return err
			}
			if _, dup := seen[est.Name]; dup {
				return errors.NewConfigurationError("estimator", "duplicate estimator name in case "+c.Name, est.Name)
			}
			seen[est.Name] = struct{}{}
			if est.Estimator == nil {
				return errors.NewConfigurationError("estimator", "nil estimator", est.Name)
			}
			if !method.Supports(est.Estimator) {
				return errors.NewConfigurationError("proba", est.Name+" does not support "+method.String(), l.Proba)
			}
		}
	}
	return nil
}

// Apply attaches a fit result to the layer.
func (l *Layer) Apply(res *FitResult) {
	l.result = res
}

// Result returns the applied fit result, nil before Apply.
func (l *Layer) Result() *FitResult {
	return l.result
}

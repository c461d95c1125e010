// Package metrics provides scoring functions for regression and
// classification predictions.
package metrics

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// Scorer scores predictions against the true targets. A layer calls its
// scorer on every held-out fold; errors and panics are recorded as a
// missing score.
type Scorer func(yTrue, yPred mat.Matrix) (float64, error)

var scorers = map[string]Scorer{
	"mse":                  MSE,
	"rmse":                 RMSE,
	"mae":                  MAE,
	"r2":                   R2Score,
	"mape":                 MAPE,
	"log_loss":             LogLoss,
	"accuracy":             Accuracy,
	"classification_error": ClassificationError,
}

// Names returns the names accepted by Lookup in sorted order.
func Names() []string {
	names := make([]string, 0, len(scorers))
	for name := range scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the scorer registered under name. An empty name returns a
// nil scorer, which disables scoring.
func Lookup(name string) (Scorer, error) {
	if name == "" {
		return nil, nil
	}
	s, ok := scorers[strings.ToLower(name)]
	if !ok {
		return nil, errors.NewConfigurationError("scorer", "must be one of "+strings.Join(Names(), ", "), name)
	}
	return s, nil
}

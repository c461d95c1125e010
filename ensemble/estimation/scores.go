package estimation

import (
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/layer"
)

// ScoreSeparator joins the case key and estimator name of a score record.
const ScoreSeparator = "___"

// ScoreRecord is the score of one estimator instance. Value is nil when the
// instance produced no score.
type ScoreRecord struct {
	Key   string
	Value *float64
}

// RecordKey returns the score record key of an estimator instance.
func RecordKey(caseKey, estimator string) string {
	return caseKey + ScoreSeparator + estimator
}

// BuildScores aggregates fold scores per base estimator. The first nPred
// records belong to the full-data instances and name the result keys
// ("case__est", or "est" for the unnamed case); the remaining records are
// fold instances whose fold suffixes are stripped. Means and population
// standard deviations are returned; names without any score are omitted.
func BuildScores(records []ScoreRecord, nPred int) map[string]layer.Score {
	nPred = min(max(nPred, 0), len(records))

	names := make([]string, 0, nPred)
	values := make(map[string][]float64)
	for _, r := range records[:nPred] {
		caseName, est, _ := strings.Cut(r.Key, ScoreSeparator)
		name := est
		if caseName != "" {
			name = caseName + cache.Separator + est
		}
		if _, ok := values[name]; !ok {
			names = append(names, name)
			values[name] = nil
		}
	}

	for _, r := range records[nPred:] {
		if r.Value == nil {
			continue
		}
		caseKey, est, _ := strings.Cut(r.Key, ScoreSeparator)
		if i := strings.LastIndex(est, cache.Separator); i >= 0 {
			est = est[:i]
		}
		name := est
		if base, _, ok := strings.Cut(caseKey, cache.Separator); ok {
			name = base + cache.Separator + est
		}
		if _, ok := values[name]; !ok {
			names = append(names, name)
		}
		values[name] = append(values[name], *r.Value)
	}

	scores := make(map[string]layer.Score, len(names))
	for _, name := range names {
		v := values[name]
		if len(v) == 0 {
			continue
		}
		mean, std := stat.PopMeanStdDev(v, nil)
		scores[name] = layer.Score{Mean: mean, Std: std}
	}
	return scores
}

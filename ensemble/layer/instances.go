package layer

import (
	"fmt"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
)

// FullFold is the fold number of full-data entries.
const FullFold = -1

// ColumnKey identifies a base (case, estimator) pair.
type ColumnKey struct {
	Case      string
	Estimator string
}

// AssignColumns gives every (case, estimator) pair the first column of its
// output block, in case order then estimator order. Blocks are width
// columns wide and never overlap.
func AssignColumns(cases []Case, width int) map[ColumnKey]int {
	if width < 1 {
		width = 1
	}
	cols := make(map[ColumnKey]int)
	pos := 0
	for _, c := range cases {
		for _, est := range c.Estimators {
			cols[ColumnKey{Case: c.Name, Estimator: est.Name}] = pos * width
			pos++
		}
	}
	return cols
}

// FoldSuffix returns the suffix that qualifies names of fold i.
func FoldSuffix(fold int) string {
	return fmt.Sprintf("f%d", fold)
}

// QualifyCase returns the cache key of a case for a fold (or FullFold). The
// unnamed case stays unnamed.
func QualifyCase(caseName string, fold int) string {
	if fold == FullFold || caseName == "" {
		return caseName
	}
	return caseName + cache.Separator + FoldSuffix(fold)
}

// QualifyEstimator returns the name of an estimator instance of a fold.
func QualifyEstimator(name string, fold int) string {
	if fold == FullFold {
		return name
	}
	return name + cache.Separator + FoldSuffix(fold)
}

// Instance is an estimator of an entry with its qualified name and column.
type Instance struct {
	Name      string
	BaseName  string
	Estimator model.Estimator
	Column    int
}

// Entry is one element of an expanded instance list: a case restricted to
// one fold (or the full data), with fresh clones of its instances.
type Entry struct {
	// Case is the qualified case key used for cache files.
	Case     string
	BaseCase string
	Fold     int

	Train index.Spec
	Test  index.Spec

	Transformers []TransformerEntry
	Estimators   []Instance
}

// Preprocess reports whether the entry's estimators need a fitted pipeline.
func (e Entry) Preprocess() bool {
	return len(e.Transformers) > 0
}

// PipelineKey returns the cache key of the pipeline the entry depends on.
func (e Entry) PipelineKey() cache.Key {
	return cache.TransformerKey(e.Case)
}

// Instances expands the layer for the given folds. Full-data entries come
// first, one per case, followed by the fold entries fold by fold. The
// transformer list only holds cases with a pipeline; its first NPrep
// entries are the full-data pipelines. Every entry owns fresh clones.
func (l *Layer) Instances(folds []index.Fold) (transformers, estimators []Entry) {
	cols := AssignColumns(l.Cases, l.Width())

	build := func(c Case, fold int, train, test index.Spec) Entry {
		e := Entry{
			Case:     QualifyCase(c.Name, fold),
			BaseCase: c.Name,
			Fold:     fold,
			Train:    train,
			Test:     test,
		}
		for _, tr := range c.Transformers {
			e.Transformers = append(e.Transformers, TransformerEntry{Name: tr.Name, Transformer: tr.Transformer.Clone()})
		}
		for _, est := range c.Estimators {
			e.Estimators = append(e.Estimators, Instance{
				Name:      QualifyEstimator(est.Name, fold),
				BaseName:  est.Name,
				Estimator: est.Estimator.Clone(),
				Column:    cols[ColumnKey{Case: c.Name, Estimator: est.Name}],
			})
		}
		return e
	}

	add := func(e Entry) {
		estimators = append(estimators, e)
		if e.Preprocess() {
			transformers = append(transformers, e)
		}
	}

	for _, c := range l.Cases {
		add(build(c, FullFold, nil, nil))
	}
	for i, f := range folds {
		for _, c := range l.Cases {
			add(build(c, i, f.Train, f.Test))
		}
	}
	return transformers, estimators
}

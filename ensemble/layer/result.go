package layer

import (
	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// Partition selects the full-data or the fold instances of a fit.
type Partition string

const (
	PartitionFull Partition = "full"
	PartitionFold Partition = "fold"
)

// Pipeline is a fitted preprocessing pipeline of one qualified case.
type Pipeline struct {
	Case         string
	Transformers []TransformerEntry
}

// EstimatorArtifact is what a fit-estimator job persists: the fitted
// estimator, the rows it predicted (nil for full-data fits), its column and
// its score. A nil Score means no score was produced.
type EstimatorArtifact struct {
	Name      string
	Estimator model.Estimator
	Test      index.Spec
	Column    int
	Score     *float64
}

// FittedEstimator is a reassembled estimator artifact with its case.
type FittedEstimator struct {
	Case string
	EstimatorArtifact
}

// Score is the cross-validated score of one estimator.
type Score struct {
	Mean float64
	Std  float64
}

// FitResult is the fitted state of a layer. Full-data instances come first
// in both lists: NPrep pipelines and NPred estimators.
type FitResult struct {
	CycleID       string
	Preprocessing []Pipeline
	Estimators    []FittedEstimator
	NPred         int
	NPrep         int
	Scores        map[string]Score
}

// Retrieve returns the pipelines by case key and the estimators of the
// requested partition.
func (r *FitResult) Retrieve(p Partition) (map[string][]TransformerEntry, []FittedEstimator, error) {
	nPrep := min(max(r.NPrep, 0), len(r.Preprocessing))

	var (
		ests  []FittedEstimator
		preps []Pipeline
	)
	switch p {
	case PartitionFull:
		ests = r.Estimators[:min(r.NPred, len(r.Estimators))]
		if r.Preprocessing != nil {
			preps = r.Preprocessing[:nPrep]
		}
	case PartitionFold:
		ests = r.Estimators[min(r.NPred, len(r.Estimators)):]
		if r.Preprocessing != nil {
			preps = r.Preprocessing[nPrep:]
		}
	default:
		return nil, nil, errors.NewConfigurationError("partition", "only 'full' and 'fold' are acceptable", string(p))
	}

	if r.Preprocessing == nil {
		return nil, ests, nil
	}
	prep := make(map[string][]TransformerEntry, len(preps))
	for _, pl := range preps {
		prep[pl.Case] = pl.Transformers
	}
	return prep, ests, nil
}

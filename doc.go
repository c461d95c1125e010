// Package mlstack estimates the layers of stacked ensembles in parallel.
//
// A layer is a set of preprocessing cases, each feeding one or more
// estimators. Fitting a layer fits every (case, fold, estimator) instance on
// a worker pool and writes the held-out predictions into one matrix that
// becomes the input of the next layer. Fitted pipelines and estimators are
// exchanged between workers through a disk-backed artifact cache, so that an
// estimator only starts once its case's pipeline is available.
//
// # Quick Start
//
//	l := &layer.Layer{
//	    Name: "layer-1",
//	    Cases: []layer.Case{{
//	        Name:         "sc",
//	        Transformers: []layer.TransformerEntry{{Name: "std", Transformer: preprocessing.NewStandardScalerDefault()}},
//	        Estimators:   []layer.EstimatorEntry{{Name: "ls", Estimator: linear.NewLinearRegression()}},
//	    }},
//	    Indexer: index.StackIndexer{K: 5},
//	    Scorer:  metrics.MSE,
//	}
//
//	runner, err := estimation.New(l)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, _ := cache.NewTemp("")
//	defer c.Remove()
//
//	P := mat.NewDense(n, l.Columns(), nil)
//	res, err := runner.Fit(ctx, X, y, P, c)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l.Apply(res) // enables Predict and Transform
//
// # Packages
//
//   - ensemble/layer: layer descriptor, instance expansion, column layout, fit result
//   - ensemble/estimation: fit, predict and transform cycles, dependency wait, scores
//   - ensemble/cache: artifact cache with readiness signals
//   - ensemble/index: folds (stack, blend, full) and row slicing
//   - core/model: estimator and transformer interfaces, persistence
//   - core/parallel: worker pool with fail-fast and drain policies
//   - linear, preprocessing, metrics: estimators, transformers and scorers
//   - pkg/config, pkg/log, pkg/errors, pkg/telemetry, pkg/memmap: support
//
// The stackfit command (cmd/stackfit) runs a layer described in YAML on a
// CSV file.
package mlstack

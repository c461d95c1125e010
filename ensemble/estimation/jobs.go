package estimation

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
	"github.com/YuminosukeSato/mlstack/ensemble/layer"
	"github.com/YuminosukeSato/mlstack/metrics"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
	"github.com/YuminosukeSato/mlstack/pkg/telemetry"
)

// Env carries what every job of one dispatch shares.
type Env struct {
	Layer  string
	Cache  *cache.Cache
	Method model.PredictMethod
	// Width is the number of columns reserved per estimator.
	Width   int
	Logger  log.Logger
	Verbose bool
}

func (env *Env) logger() log.Logger {
	if env.Logger == nil {
		return log.GetLogger()
	}
	return env.Logger
}

func (env *Env) width() int {
	if env.Width < 1 {
		return 1
	}
	return env.Width
}

// progress logs at info level for verbose layers and debug otherwise.
func (env *Env) progress(msg string, fields ...any) {
	if env.Verbose {
		env.logger().Info(msg, fields...)
		return
	}
	env.logger().Debug(msg, fields...)
}

// track records metrics and a completion record for one job.
func (env *Env) track(kind, caseKey, est string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	telemetry.RecordJob(env.Layer, kind, elapsed, err)
	if err == nil {
		env.progress("job done",
			log.JobKindKey, kind,
			log.CaseKey, caseKey,
			log.EstimatorKey, est,
			log.DurationKey, elapsed,
		)
	}
	return err
}

// TransformerJob fits the pipeline of one qualified case.
type TransformerJob struct {
	Case     string
	Pipeline []layer.TransformerEntry
	Train    index.Spec
}

// FitTransformer slices the training rows, fits every stage in order and
// saves the fitted pipeline under "{case}__t". Stage outputs are fed
// forward only when the pipeline has more than one stage. On failure the
// pipeline key is marked failed so that waiting estimators stop early.
func (env *Env) FitTransformer(ctx context.Context, job TransformerJob, X, y mat.Matrix) error {
	key := cache.TransformerKey(job.Case)
	err := env.track(log.JobKindFitTransformer, job.Case, "", func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		x, z, err := index.Slice(X, y, job.Train)
		if err != nil {
			return err
		}

		for _, stage := range job.Pipeline {
			if err := stage.Transformer.Fit(x, z); err != nil {
				return errors.Wrapf(err, "stage %s", stage.Name)
			}
			if len(job.Pipeline) > 1 {
				if x, err = stage.Transformer.Transform(x); err != nil {
					return errors.Wrapf(err, "stage %s", stage.Name)
				}
			}
		}
		return env.Cache.Save(key, job.Pipeline)
	})
	if err != nil {
		err = errors.NewFitFailedError(log.JobKindFitTransformer, job.Case, "", err)
		env.Cache.Fail(key, err)
	}
	return err
}

// EstimatorJob fits one estimator instance of one qualified case.
type EstimatorJob struct {
	Case      string
	Name      string
	Estimator model.Estimator
	Train     index.Spec
	// Test is nil for full-data fits, which predict nothing.
	Test   index.Spec
	Column int
	// Preprocess makes the job wait for the case's fitted pipeline.
	Preprocess bool
	Wait       WaitPolicy
	Scorer     metrics.Scorer
}

// FitEstimator fits the estimator on the training rows (after the case's
// pipeline, if any). With a test spec it predicts the held-out rows into P
// at the job's column block, rebased by X.rows - P.rows, and scores them.
// The fitted estimator, its test spec, column and score are saved under
// "{case}__{name}__e".
func (env *Env) FitEstimator(ctx context.Context, job EstimatorJob, X, y mat.Matrix, P mat.Mutable) error {
	err := env.track(log.JobKindFitEstimator, job.Case, job.Name, func() error {
		x, z, err := index.Slice(X, y, job.Train)
		if err != nil {
			return err
		}

		var pipeline []layer.TransformerEntry
		if job.Preprocess {
			if pipeline, err = env.LoadTransformers(ctx, job.Case, job.Wait); err != nil {
				return err
			}
		}
		if x, err = applyPipeline(pipeline, x); err != nil {
			return err
		}
		if err := job.Estimator.Fit(x, z); err != nil {
			return err
		}

		artifact := layer.EstimatorArtifact{
			Name:      job.Name,
			Estimator: job.Estimator,
			Column:    job.Column,
		}
		if job.Test != nil {
			// x is replaced so only one subset of X is alive at a time
			x, z, err = index.Slice(X, y, job.Test)
			if err != nil {
				return err
			}
			if x, err = applyPipeline(pipeline, x); err != nil {
				return err
			}
			p, err := env.Method.Call(job.Estimator, x)
			if err != nil {
				return err
			}
			if err := env.write(P, job.Test, X, job.Column, p); err != nil {
				return err
			}
			artifact.Test = job.Test
			artifact.Score = env.score(job, z, p)
		}
		return env.Cache.Save(cache.EstimatorKey(job.Case, job.Name), artifact)
	})
	if err != nil {
		return errors.NewFitFailedError(log.JobKindFitEstimator, job.Case, job.Name, err)
	}
	return nil
}

// score runs the scorer; errors and panics yield no score.
func (env *Env) score(job EstimatorJob, yTrue, yPred mat.Matrix) *float64 {
	if job.Scorer == nil {
		return nil
	}
	s, err := errors.SafeCall("scorer", func() (float64, error) {
		return job.Scorer(yTrue, yPred)
	})
	if err != nil {
		env.logger().Debug("scoring failed, score dropped",
			log.CaseKey, job.Case,
			log.EstimatorKey, job.Name,
			log.ErrorKey, err.Error(),
		)
		return nil
	}
	return &s
}

// PredictJob predicts with one fitted estimator.
type PredictJob struct {
	Case      string
	Pipeline  []layer.TransformerEntry
	Estimator layer.FittedEstimator
}

// PredictFull transforms all of X with the pipeline and writes the
// predictions to every row of P at the estimator's column block.
func (env *Env) PredictFull(ctx context.Context, job PredictJob, X mat.Matrix, P mat.Mutable) error {
	return env.track(log.JobKindPredictFull, job.Case, job.Estimator.Name, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		x, err := applyPipeline(job.Pipeline, X)
		if err != nil {
			return err
		}
		p, err := env.Method.Call(job.Estimator.Estimator, x)
		if err != nil {
			return errors.NewFitFailedError(log.JobKindPredictFull, job.Case, job.Estimator.Name, err)
		}
		return env.write(P, nil, X, job.Estimator.Column, p)
	})
}

// PredictFold predicts the rows the estimator held out during fit and
// writes them to P, rebased by X.rows - P.rows.
func (env *Env) PredictFold(ctx context.Context, job PredictJob, X mat.Matrix, P mat.Mutable) error {
	return env.track(log.JobKindPredictFold, job.Case, job.Estimator.Name, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		x, err := index.SliceRows(X, job.Estimator.Test)
		if err != nil {
			return err
		}
		if x, err = applyPipeline(job.Pipeline, x); err != nil {
			return err
		}
		p, err := env.Method.Call(job.Estimator.Estimator, x)
		if err != nil {
			return errors.NewFitFailedError(log.JobKindPredictFold, job.Case, job.Estimator.Name, err)
		}
		return env.write(P, job.Estimator.Test, X, job.Estimator.Column, p)
	})
}

func applyPipeline(pipeline []layer.TransformerEntry, x mat.Matrix) (mat.Matrix, error) {
	for _, stage := range pipeline {
		var err error
		if x, err = stage.Transformer.Transform(x); err != nil {
			return nil, errors.Wrapf(err, "transform %s", stage.Name)
		}
	}
	return x, nil
}

// write copies the prediction block p into P starting at column col. rows
// selects rows of X (nil for all of them); they are shifted up by
// X.rows - P.rows so that P may hold only the trailing held-out rows.
func (env *Env) write(P mat.Mutable, rows index.Spec, X mat.Matrix, col int, p mat.Matrix) error {
	const op = "estimation.write"

	xr, _ := X.Dims()
	pr, pc := P.Dims()
	nr, nc := p.Dims()
	if nc > env.width() {
		return errors.NewDimensionError(op, env.width(), nc, 1)
	}
	if col < 0 || col+nc > pc {
		return errors.NewDimensionError(op, pc, col+nc, 1)
	}

	idx := rows.Indices(xr)
	if len(idx) != nr {
		return errors.NewDimensionError(op, len(idx), nr, 0)
	}
	offset := xr - pr
	for i, r := range idx {
		r -= offset
		if r < 0 || r >= pr {
			return errors.NewValueError(op, fmt.Sprintf("row %d is outside the prediction matrix (%d rows)", r, pr))
		}
		for j := 0; j < nc; j++ {
			P.Set(r, col+j, p.At(i, j))
		}
	}
	return nil
}

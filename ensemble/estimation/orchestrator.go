// Package estimation runs the fit, predict and transform cycles of an
// ensemble layer on a parallel engine. Fitted pipelines and estimators are
// exchanged through an artifact cache; predictions are written into a
// shared matrix on disjoint (row, column) regions.
package estimation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/parallel"
	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
	"github.com/YuminosukeSato/mlstack/ensemble/layer"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
)

// Mode selects how fit jobs are dispatched.
type Mode int

const (
	// Dual fits all pipelines in a first round and all estimators in a
	// second one.
	Dual Mode = iota
	// Combined dispatches pipelines and estimators in one round; estimators
	// wait for their pipeline through the cache.
	Combined
)

func (m Mode) String() string {
	switch m {
	case Dual:
		return "dual"
	case Combined:
		return "combined"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "dual" (or "") and "combined".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "dual":
		return Dual, nil
	case "combined":
		return Combined, nil
	default:
		return Dual, errors.NewConfigurationError("mode", "only 'dual' and 'combined' are acceptable", s)
	}
}

// Runner estimates one layer.
type Runner struct {
	layer  *layer.Layer
	engine *parallel.Engine
	mode   Mode
	logger log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithEngine sets the engine jobs are dispatched on.
func WithEngine(e *parallel.Engine) Option {
	return func(r *Runner) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithMode sets the fit dispatch mode.
func WithMode(m Mode) Option {
	return func(r *Runner) {
		r.mode = m
	}
}

// WithLogger overrides the layer's logger.
func WithLogger(l log.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l.With(log.LayerKey, r.layer.Name)
		}
	}
}

// New validates l and returns a Runner for it.
func New(l *layer.Layer, opts ...Option) (*Runner, error) {
	if l == nil {
		return nil, errors.NewValueError("estimation.New", "layer is nil")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{layer: l, mode: Dual, logger: l.Log()}
	for _, opt := range opts {
		opt(r)
	}
	if r.mode != Dual && r.mode != Combined {
		return nil, errors.NewConfigurationError("mode", "only 'dual' and 'combined' are acceptable", r.mode.String())
	}
	if r.engine == nil {
		r.engine = parallel.NewEngine(parallel.WithLogger(r.logger))
	}
	return r, nil
}

// Layer returns the layer being estimated.
func (r *Runner) Layer() *layer.Layer {
	return r.layer
}

func (r *Runner) env(c *cache.Cache) *Env {
	return &Env{
		Layer:   r.layer.Name,
		Cache:   c,
		Method:  r.layer.Method(),
		Width:   r.layer.Width(),
		Logger:  r.logger,
		Verbose: r.layer.Verbose,
	}
}

func (r *Runner) progress(msg string, fields ...any) {
	if r.layer.Verbose {
		r.logger.Info(msg, fields...)
		return
	}
	r.logger.Debug(msg, fields...)
}

func (r *Runner) draining() bool {
	return r.engine.Policy() == parallel.Drain
}

// Fit fits every (case, fold, estimator) instance of the layer and writes
// the held-out predictions into P, which must have one row per held-out row
// and Layer.Columns() columns. When y has more rows than X its leading rows
// are dropped. A layer without folds predicts the full data into P if P is
// non-nil. Artifacts of earlier cycles in c are discarded before any job
// runs. The returned result is not attached to the layer; call
// Layer.Apply to use it for Predict and Transform.
func (r *Runner) Fit(ctx context.Context, X, y mat.Matrix, P mat.Mutable, c *cache.Cache) (*layer.FitResult, error) {
	const op = "estimation.Fit"
	if X == nil || y == nil {
		return nil, errors.NewValueError(op, "X and y are required")
	}
	if c == nil {
		return nil, errors.NewValueError(op, "cache is required")
	}
	xr, xc := X.Dims()
	if xr == 0 || xc == 0 {
		return nil, errors.ErrEmptyData
	}
	y, err := alignTargets(X, y)
	if err != nil {
		return nil, err
	}

	folds, err := r.layer.Folder().Folds(xr)
	if err != nil {
		return nil, err
	}
	if len(folds) > 0 || P != nil {
		if err := r.checkOutput(op, P, index.HeldOut(folds, xr)); err != nil {
			return nil, err
		}
	}
	if r.mode == Combined && r.layer.NPrep() == 0 {
		return nil, errors.NewConfigurationError("mode", "combined dispatch needs at least one case with preprocessing", r.mode.String())
	}

	if err := c.Reset(); err != nil {
		return nil, err
	}

	cycle := uuid.NewString()
	lg := r.logger.With(log.CycleKey, cycle, log.OperationKey, log.OperationFit)
	start := time.Now()
	lg.Debug("fitting layer", log.SamplesKey, xr, log.FeaturesKey, xc, log.WorkersKey, r.engine.Workers())

	env := r.env(c)
	env.Logger = lg
	transformers, estimators := r.layer.Instances(folds)
	tJobs, eJobs := r.fitJobs(env, transformers, estimators, X, y, P)

	var rounds [][]parallel.Job
	switch r.mode {
	case Dual:
		rounds = [][]parallel.Job{tJobs, eJobs}
	case Combined:
		rounds = [][]parallel.Job{append(tJobs, eJobs...)}
	}

	var failures error
	for _, jobs := range rounds {
		if len(jobs) == 0 {
			continue
		}
		err := r.engine.Run(ctx, jobs)
		if err == nil {
			continue
		}
		if !r.draining() || ctx.Err() != nil {
			return nil, err
		}
		failures = errors.Join(failures, err)
		r.warnFailures(lg, err)
	}

	res, err := r.reassemble(c, transformers, estimators)
	if err != nil {
		return nil, errors.Join(err, failures)
	}
	res.CycleID = cycle

	if r.layer.Scorer != nil && len(folds) > 0 {
		records := make([]ScoreRecord, len(res.Estimators))
		for i, fe := range res.Estimators {
			records[i] = ScoreRecord{Key: RecordKey(fe.Case, fe.Name), Value: fe.Score}
		}
		res.Scores = BuildScores(records, res.NPred)
	}

	if len(folds) == 0 && P != nil {
		_, full, _ := res.Retrieve(layer.PartitionFull)
		if err := r.dispatch(ctx, env, res, full, X, P, env.PredictFull); err != nil {
			return nil, err
		}
	}

	r.progress("layer fitted",
		log.CycleKey, cycle,
		log.JobsKey, len(tJobs)+len(eJobs),
		log.DurationKey, time.Since(start),
	)
	return res, nil
}

// alignTargets drops the leading rows of y that have no counterpart in X.
func alignTargets(X, y mat.Matrix) (mat.Matrix, error) {
	xr, _ := X.Dims()
	yr, _ := y.Dims()
	switch {
	case yr == xr:
		return y, nil
	case yr > xr:
		return index.SliceRows(y, index.R(yr-xr, yr))
	default:
		return nil, errors.NewDimensionError("estimation.Fit", xr, yr, 0)
	}
}

func (r *Runner) checkOutput(op string, P mat.Matrix, rows int) error {
	if P == nil {
		return errors.NewValueError(op, "prediction matrix is required")
	}
	pr, pc := P.Dims()
	if pr != rows {
		return errors.NewDimensionError(op, rows, pr, 0)
	}
	if cols := r.layer.Columns(); pc != cols {
		return errors.NewDimensionError(op, cols, pc, 1)
	}
	return nil
}

func (r *Runner) fitJobs(env *Env, transformers, estimators []layer.Entry, X, y mat.Matrix, P mat.Mutable) (tJobs, eJobs []parallel.Job) {
	wait := WaitPolicy{
		Interval: r.layer.Interval(),
		Limit:    r.layer.Limit(),
		Raise:    r.layer.RaiseOnException,
	}
	for _, e := range transformers {
		job := TransformerJob{Case: e.Case, Pipeline: e.Transformers, Train: e.Train}
		tJobs = append(tJobs, func(ctx context.Context) error {
			return env.FitTransformer(ctx, job, X, y)
		})
	}
	for _, e := range estimators {
		for _, inst := range e.Estimators {
			job := EstimatorJob{
				Case:       e.Case,
				Name:       inst.Name,
				Estimator:  inst.Estimator,
				Train:      e.Train,
				Test:       e.Test,
				Column:     inst.Column,
				Preprocess: e.Preprocess(),
				Wait:       wait,
				Scorer:     r.layer.Scorer,
			}
			eJobs = append(eJobs, func(ctx context.Context) error {
				return env.FitEstimator(ctx, job, X, y, P)
			})
		}
	}
	return tJobs, eJobs
}

func (r *Runner) warnFailures(lg log.Logger, err error) {
	errs := []error{err}
	var de *parallel.DispatchError
	if errors.As(err, &de) {
		errs = de.Errs
	}
	for _, e := range errs {
		w := errors.NewFitFailedWarning(r.layer.Name, e)
		errors.Warn(w)
		lg.Warn("job failed, its artifacts are dropped", log.ErrorKey, e.Error())
	}
}

// reassemble loads the fitted artifacts in instance order. Artifacts of
// failed jobs are skipped when the engine drains.
func (r *Runner) reassemble(c *cache.Cache, transformers, estimators []layer.Entry) (*layer.FitResult, error) {
	res := &layer.FitResult{}
	skip := func(err error) bool {
		return r.draining() && cache.IsNotFound(err)
	}

	for _, e := range transformers {
		pipeline, err := cache.Load[[]layer.TransformerEntry](c, e.PipelineKey())
		if err != nil {
			if skip(err) {
				continue
			}
			return nil, err
		}
		res.Preprocessing = append(res.Preprocessing, layer.Pipeline{Case: e.Case, Transformers: pipeline})
		if e.Fold == layer.FullFold {
			res.NPrep++
		}
	}

	for _, e := range estimators {
		for _, inst := range e.Estimators {
			art, err := cache.Load[layer.EstimatorArtifact](c, cache.EstimatorKey(e.Case, inst.Name))
			if err != nil {
				if skip(err) {
					continue
				}
				return nil, err
			}
			res.Estimators = append(res.Estimators, layer.FittedEstimator{Case: e.Case, EstimatorArtifact: art})
			if e.Fold == layer.FullFold {
				res.NPred++
			}
		}
	}

	if len(res.Estimators) == 0 {
		return nil, errors.NewNotFittedErrorf(r.layer.Name, "Fit", "no estimators successfully fitted")
	}
	return res, nil
}

// Predict predicts X with the full-data estimators into P, which must have
// X's rows and Layer.Columns() columns.
func (r *Runner) Predict(ctx context.Context, X mat.Matrix, P mat.Mutable) error {
	return r.predict(ctx, log.OperationPredict, X, P)
}

// Transform predicts the rows each fold estimator held out during fit,
// reproducing the out-of-fold matrix of Fit for the same X.
func (r *Runner) Transform(ctx context.Context, X mat.Matrix, P mat.Mutable) error {
	return r.predict(ctx, log.OperationTransform, X, P)
}

func (r *Runner) predict(ctx context.Context, operation string, X mat.Matrix, P mat.Mutable) error {
	op := "estimation." + operation
	res := r.layer.Result()
	if res == nil || len(res.Estimators) == 0 {
		return errors.NewNotFittedErrorf(r.layer.Name, operation, "no estimators successfully fitted")
	}
	if X == nil {
		return errors.NewValueError(op, "X is required")
	}
	xr, _ := X.Dims()

	partition, rows := layer.PartitionFull, xr
	if operation == log.OperationTransform {
		partition = layer.PartitionFold
		folds, err := r.layer.Folder().Folds(xr)
		if err != nil {
			return err
		}
		rows = index.HeldOut(folds, xr)
	}
	_, ests, err := res.Retrieve(partition)
	if err != nil {
		return err
	}
	if len(ests) == 0 {
		if partition == layer.PartitionFold {
			return errors.NewValueError(op, "layer was fitted without folds, use Predict")
		}
		return errors.NewNotFittedErrorf(r.layer.Name, operation, "no full-data estimators fitted")
	}
	if err := r.checkOutput(op, P, rows); err != nil {
		return err
	}

	env := r.env(nil)
	env.Logger = r.logger.With(log.CycleKey, res.CycleID, log.OperationKey, operation)
	run := env.PredictFull
	if partition == layer.PartitionFold {
		run = env.PredictFold
	}

	start := time.Now()
	if err := r.dispatch(ctx, env, res, ests, X, P, run); err != nil {
		return err
	}
	r.progress("layer "+operation+" done", log.CycleKey, res.CycleID, log.DurationKey, time.Since(start))
	return nil
}

type predictFunc func(ctx context.Context, job PredictJob, X mat.Matrix, P mat.Mutable) error

func (r *Runner) dispatch(ctx context.Context, env *Env, res *layer.FitResult, ests []layer.FittedEstimator, X mat.Matrix, P mat.Mutable, run predictFunc) error {
	pipelines := make(map[string][]layer.TransformerEntry, len(res.Preprocessing))
	for _, pl := range res.Preprocessing {
		pipelines[pl.Case] = pl.Transformers
	}

	jobs := make([]parallel.Job, 0, len(ests))
	for _, fe := range ests {
		job := PredictJob{Case: fe.Case, Pipeline: pipelines[fe.Case], Estimator: fe}
		jobs = append(jobs, func(ctx context.Context) error {
			return run(ctx, job, X, P)
		})
	}
	return r.engine.Run(ctx, jobs)
}

// Retrieve returns the fitted pipelines and estimators of a partition of
// the layer's result.
func (r *Runner) Retrieve(p layer.Partition) (map[string][]layer.TransformerEntry, []layer.FittedEstimator, error) {
	res := r.layer.Result()
	if res == nil {
		return nil, nil, errors.NewNotFittedError(r.layer.Name, "Retrieve")
	}
	return res.Retrieve(p)
}

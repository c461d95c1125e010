package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/core/parallel"
	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/estimation"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
	"github.com/YuminosukeSato/mlstack/ensemble/layer"
	"github.com/YuminosukeSato/mlstack/linear"
	"github.com/YuminosukeSato/mlstack/metrics"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
	"github.com/YuminosukeSato/mlstack/preprocessing"
)

// Params are the parameters of one component.
type Params map[string]any

func (p Params) number(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, errors.NewConfigurationError("params."+key, "must be a number", v)
	}
}

func (p Params) integer(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	x, ok := v.(int)
	if !ok {
		return 0, errors.NewConfigurationError("params."+key, "must be an integer", v)
	}
	return x, nil
}

func (p Params) flag(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	x, ok := v.(bool)
	if !ok {
		return false, errors.NewConfigurationError("params."+key, "must be a boolean", v)
	}
	return x, nil
}

// check rejects parameters a component does not know.
func (p Params) check(kind string, known ...string) error {
	var unknown []string
	for k := range p {
		found := false
		for _, name := range known {
			if k == name {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.NewConfigurationError(kind+".params", "unknown parameters", strings.Join(unknown, ", "))
	}
	return nil
}

type (
	estimatorBuilder   func(Params) (model.Estimator, error)
	transformerBuilder func(Params) (model.Transformer, error)
)

var estimatorBuilders = map[string]estimatorBuilder{
	"linear_regression": func(p Params) (model.Estimator, error) {
		if err := p.check("linear_regression", "fit_intercept", "alpha"); err != nil {
			return nil, err
		}
		intercept, err := p.flag("fit_intercept", true)
		if err != nil {
			return nil, err
		}
		alpha, err := p.number("alpha", 0)
		if err != nil {
			return nil, err
		}
		return linear.NewLinearRegression(linear.WithFitIntercept(intercept), linear.WithAlpha(alpha)), nil
	},
	"logistic_regression": func(p Params) (model.Estimator, error) {
		if err := p.check("logistic_regression", "learning_rate", "max_iter", "tol", "l2"); err != nil {
			return nil, err
		}
		def := linear.NewLogisticRegression()
		lr, err := p.number("learning_rate", def.LearningRate)
		if err != nil {
			return nil, err
		}
		iter, err := p.integer("max_iter", def.MaxIter)
		if err != nil {
			return nil, err
		}
		tol, err := p.number("tol", def.Tol)
		if err != nil {
			return nil, err
		}
		l2, err := p.number("l2", def.L2)
		if err != nil {
			return nil, err
		}
		return linear.NewLogisticRegression(
			linear.WithLearningRate(lr),
			linear.WithMaxIter(iter),
			linear.WithTol(tol),
			linear.WithL2(l2),
		), nil
	},
}

var transformerBuilders = map[string]transformerBuilder{
	"standard_scaler": func(p Params) (model.Transformer, error) {
		if err := p.check("standard_scaler", "with_mean", "with_std"); err != nil {
			return nil, err
		}
		mean, err := p.flag("with_mean", true)
		if err != nil {
			return nil, err
		}
		std, err := p.flag("with_std", true)
		if err != nil {
			return nil, err
		}
		return preprocessing.NewStandardScaler(mean, std), nil
	},
	"min_max_scaler": func(p Params) (model.Transformer, error) {
		if err := p.check("min_max_scaler", "min", "max"); err != nil {
			return nil, err
		}
		lo, err := p.number("min", 0)
		if err != nil {
			return nil, err
		}
		hi, err := p.number("max", 1)
		if err != nil {
			return nil, err
		}
		if lo >= hi {
			return nil, errors.NewConfigurationError("min_max_scaler.params", "min must be below max", fmt.Sprintf("[%v, %v]", lo, hi))
		}
		return preprocessing.NewMinMaxScaler([2]float64{lo, hi}), nil
	},
	"kmeans": func(p Params) (model.Transformer, error) {
		if err := p.check("kmeans", "n_clusters", "max_iter", "batch_size", "n_init", "seed"); err != nil {
			return nil, err
		}
		def := preprocessing.NewKMeansFeatures()
		n, err := p.integer("n_clusters", def.NClusters)
		if err != nil {
			return nil, err
		}
		iter, err := p.integer("max_iter", def.MaxIter)
		if err != nil {
			return nil, err
		}
		batch, err := p.integer("batch_size", def.BatchSize)
		if err != nil {
			return nil, err
		}
		nInit, err := p.integer("n_init", def.NInit)
		if err != nil {
			return nil, err
		}
		seed, err := p.integer("seed", 0)
		if err != nil {
			return nil, err
		}
		if n < 1 || seed < 0 {
			return nil, errors.NewConfigurationError("kmeans.params", "n_clusters must be positive and seed non-negative", fmt.Sprintf("n_clusters=%d seed=%d", n, seed))
		}
		return preprocessing.NewKMeansFeatures(
			preprocessing.WithClusters(n),
			preprocessing.WithKMeansMaxIter(iter),
			preprocessing.WithBatchSize(batch),
			preprocessing.WithNInit(nInit),
			preprocessing.WithSeed(uint64(seed)),
		), nil
	},
}

func kinds[T any](m map[string]T) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// BuildLayer builds and validates the layer descriptor.
func (c *Config) BuildLayer(logger log.Logger) (*layer.Layer, error) {
	lc := c.Layer
	scorer, err := metrics.Lookup(lc.Scorer)
	if err != nil {
		return nil, err
	}

	l := &layer.Layer{
		Name:             lc.Name,
		Scorer:           scorer,
		Proba:            lc.Proba,
		OutputWidth:      lc.OutputWidth,
		RaiseOnException: lc.RaiseOnException,
		WaitInterval:     lc.Wait.Interval.Std(),
		WaitLimit:        lc.Wait.Limit.Std(),
		Verbose:          lc.Verbose,
		Logger:           logger,
	}
	switch lc.Kind {
	case KindStack:
		l.Indexer = index.StackIndexer{K: lc.Folds, Shuffle: lc.Shuffle, Seed: lc.Seed}
	case KindBlend:
		l.Indexer = index.BlendIndexer{TestSize: lc.TestSize}
	case KindFull:
		l.Indexer = index.FullIndexer{}
	}

	for _, cc := range lc.Cases {
		lcase := layer.Case{Name: cc.Name}
		for _, tc := range cc.Transformers {
			build, ok := transformerBuilders[tc.Kind]
			if !ok {
				return nil, errors.NewConfigurationError("transformer.kind", "must be one of "+kinds(transformerBuilders), tc.Kind)
			}
			tr, err := build(Params(tc.Params))
			if err != nil {
				return nil, errors.Wrapf(err, "case %q transformer %q", cc.Name, tc.Name)
			}
			lcase.Transformers = append(lcase.Transformers, layer.TransformerEntry{Name: tc.Name, Transformer: tr})
		}
		for _, ec := range cc.Estimators {
			build, ok := estimatorBuilders[ec.Kind]
			if !ok {
				return nil, errors.NewConfigurationError("estimator.kind", "must be one of "+kinds(estimatorBuilders), ec.Kind)
			}
			est, err := build(Params(ec.Params))
			if err != nil {
				return nil, errors.Wrapf(err, "case %q estimator %q", cc.Name, ec.Name)
			}
			lcase.Estimators = append(lcase.Estimators, layer.EstimatorEntry{Name: ec.Name, Estimator: est})
		}
		l.Cases = append(l.Cases, lcase)
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// BuildEngine returns the parallel engine and the fit dispatch mode.
func (c *Config) BuildEngine(logger log.Logger) (*parallel.Engine, estimation.Mode, error) {
	policy, err := parallel.ParsePolicy(c.Engine.Policy)
	if err != nil {
		return nil, 0, err
	}
	mode, err := estimation.ParseMode(c.Engine.Mode)
	if err != nil {
		return nil, 0, err
	}
	opts := []parallel.EngineOption{parallel.WithPolicy(policy), parallel.WithLogger(logger)}
	if c.Engine.Workers > 0 {
		opts = append(opts, parallel.WithWorkers(c.Engine.Workers))
	}
	return parallel.NewEngine(opts...), mode, nil
}

// OpenCache opens the configured cache directory. The returned cleanup
// closes the cache and, unless Keep is set, removes its artifacts.
func (c *Config) OpenCache(logger log.Logger) (*cache.Cache, func() error, error) {
	opts := []cache.Option{cache.WithLogger(logger), cache.WithMemoTTL(c.Cache.MemoTTL.Std())}

	var (
		cc  *cache.Cache
		err error
	)
	if c.Cache.Dir != "" {
		cc, err = cache.New(c.Cache.Dir, opts...)
	} else {
		cc, err = cache.NewTemp(c.Cache.Parent, opts...)
	}
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() error {
		if c.Cache.Keep {
			return cc.Close()
		}
		return cc.Remove()
	}
	return cc, cleanup, nil
}

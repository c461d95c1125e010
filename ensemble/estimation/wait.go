package estimation

import (
	"context"
	"time"

	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/layer"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
	"github.com/YuminosukeSato/mlstack/pkg/telemetry"
)

// WaitPolicy controls how long an estimator job waits for its pipeline.
type WaitPolicy struct {
	Interval time.Duration
	Limit    time.Duration
	// Raise fails on the first breach of Limit instead of warning once and
	// waiting another Limit.
	Raise bool
}

func (w WaitPolicy) interval() time.Duration {
	if w.Interval <= 0 {
		return layer.DefaultWaitInterval
	}
	return w.Interval
}

func (w WaitPolicy) limit() time.Duration {
	if w.Limit <= 0 {
		return layer.DefaultWaitLimit
	}
	return w.Limit
}

// LoadTransformers returns the fitted pipeline of caseKey, waiting for it
// to appear in the cache. A wait that exceeds the limit warns once and
// starts over with raising enabled; the second breach fails with a
// DependencyTimeoutError. A pipeline whose producer failed aborts the wait
// immediately.
func (env *Env) LoadTransformers(ctx context.Context, caseKey string, w WaitPolicy) ([]layer.TransformerEntry, error) {
	key := cache.TransformerKey(caseKey)
	interval, limit, raise := w.interval(), w.limit(), w.Raise

	began := time.Now()
	start := began
	warned := false
	outcome := func(result string) {
		telemetry.RecordWait(env.Layer, result, time.Since(began))
	}

	ready := env.Cache.Ready(key)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pipeline, err := cache.Load[[]layer.TransformerEntry](env.Cache, key)
		if err == nil {
			if warned {
				outcome(telemetry.WaitWarned)
			} else {
				outcome(telemetry.WaitReady)
			}
			return pipeline, nil
		}
		if !cache.IsNotFound(err) {
			return nil, err
		}
		if cause := env.Cache.Failure(key); cause != nil {
			outcome(telemetry.WaitCancelled)
			return nil, errors.Wrapf(cause, "pipeline %s will not be written", caseKey)
		}

		if time.Since(start) >= limit {
			if raise {
				outcome(telemetry.WaitTimeout)
				return nil, errors.NewDependencyTimeoutError(caseKey, env.Cache.Path(key), limit, err)
			}
			warning := errors.NewParallelProcessingWarning(caseKey, env.Cache.Path(key), interval, limit)
			errors.Warn(warning)
			env.logger().Warn(warning.Error(),
				log.CaseKey, caseKey,
				log.CacheFileKey, key.Filename(),
				log.WaitedKey, time.Since(began),
				log.LimitKey, limit,
			)
			raise, warned = true, true
			start = time.Now()
		}

		select {
		case <-ctx.Done():
			outcome(telemetry.WaitCancelled)
			return nil, ctx.Err()
		case <-ready:
			ready = nil
		case <-ticker.C:
		}
	}
}

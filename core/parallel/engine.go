package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
)

// Job is one unit of work of a dispatch. Jobs of one dispatch run in
// unspecified order and must only write to resources they own.
type Job func(ctx context.Context) error

// Policy decides what a dispatch does when a job fails.
type Policy int

const (
	// FailFast cancels the dispatch context on the first failure; jobs that
	// have not started yet are abandoned and the first error is returned.
	FailFast Policy = iota
	// Drain runs every job to completion and returns all failures joined.
	Drain
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	if p == Drain {
		return "drain"
	}
	return "fail-fast"
}

// ParsePolicy parses "fail-fast" or "drain".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "drain":
		return Drain, nil
	default:
		return FailFast, errors.NewConfigurationError("engine.policy", "must be 'fail-fast' or 'drain'", s)
	}
}

// DispatchError collects the failures of a drained dispatch.
type DispatchError struct {
	Errs []error
}

func (e *DispatchError) Error() string {
	return errors.Join(e.Errs...).Error()
}

// Unwrap exposes every job failure to errors.Is / errors.As.
func (e *DispatchError) Unwrap() []error {
	return e.Errs
}

// Engine runs job lists over a bounded pool of goroutines.
type Engine struct {
	workers int
	policy  Policy
	logger  log.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers sets the pool size. Values below 1 mean runtime.NumCPU().
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithPolicy sets the fan-in failure policy.
func WithPolicy(p Policy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l log.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an Engine; by default it uses one worker per CPU and FailFast.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{policy: FailFast}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.NumCPU()
	}
	if e.logger == nil {
		e.logger = log.GetLogger()
	}
	return e
}

// Workers returns the pool size.
func (e *Engine) Workers() int { return e.workers }

// Policy returns the fan-in failure policy.
func (e *Engine) Policy() Policy { return e.policy }

// Run executes jobs and blocks until the dispatch is complete. Panics in
// jobs are recovered and reported as errors.PanicError.
func (e *Engine) Run(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	e.logger.Debug("dispatching jobs",
		log.JobsKey, len(jobs),
		log.WorkersKey, e.workers,
		"policy", e.policy.String(),
	)

	if e.policy == Drain {
		return e.drain(ctx, jobs)
	}
	return e.failFast(ctx, jobs)
}

func (e *Engine) failFast(ctx context.Context, jobs []Job) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if gctx.Err() != nil {
				// abandoned after an earlier failure or cancellation
				return nil
			}
			return errors.SafeExecute("parallel job", func() error { return job(gctx) })
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Engine) drain(ctx context.Context, jobs []Job) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(e.workers)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := errors.SafeExecute("parallel job", func() error { return job(ctx) }); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		return &DispatchError{Errs: errs}
	}
	return nil
}

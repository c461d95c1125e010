package parallel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
)

func quietLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelError)
	return l
}

func TestEngine_RunsAllJobs(t *testing.T) {
	e := NewEngine(WithWorkers(3), WithLogger(quietLogger()))
	var n int64
	jobs := make([]Job, 50)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			atomic.AddInt64(&n, 1)
			return nil
		}
	}
	require.NoError(t, e.Run(context.Background(), jobs))
	assert.Equal(t, int64(50), n)
	assert.Equal(t, 3, e.Workers())
}

func TestEngine_Empty(t *testing.T) {
	assert.NoError(t, NewEngine().Run(context.Background(), nil))
}

func TestEngine_WorkerLimit(t *testing.T) {
	e := NewEngine(WithWorkers(2), WithLogger(quietLogger()))
	var cur, peak int64
	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			v := atomic.AddInt64(&cur, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if v <= p || atomic.CompareAndSwapInt64(&peak, p, v) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&cur, -1)
			return nil
		}
	}
	require.NoError(t, e.Run(context.Background(), jobs))
	assert.LessOrEqual(t, peak, int64(2))
}

func TestEngine_FailFastAbandons(t *testing.T) {
	e := NewEngine(WithWorkers(1), WithPolicy(FailFast), WithLogger(quietLogger()))
	boom := errors.New("boom")
	var ran int64
	jobs := []Job{
		func(context.Context) error { return boom },
	}
	for i := 0; i < 5; i++ {
		jobs = append(jobs, func(context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
	}

	err := e.Run(context.Background(), jobs)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, int64(0), atomic.LoadInt64(&ran))
}

func TestEngine_DrainCollects(t *testing.T) {
	e := NewEngine(WithWorkers(4), WithPolicy(Drain), WithLogger(quietLogger()))
	var ran int64
	var jobs []Job
	for i := 0; i < 6; i++ {
		i := i
		jobs = append(jobs, func(context.Context) error {
			atomic.AddInt64(&ran, 1)
			if i%2 == 0 {
				return fmt.Errorf("job %d failed", i)
			}
			return nil
		})
	}

	err := e.Run(context.Background(), jobs)
	require.Error(t, err)
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Len(t, dispatchErr.Errs, 3)
	assert.Equal(t, int64(6), ran)
}

func TestEngine_RecoversPanics(t *testing.T) {
	for _, policy := range []Policy{FailFast, Drain} {
		t.Run(policy.String(), func(t *testing.T) {
			e := NewEngine(WithPolicy(policy), WithLogger(quietLogger()))
			err := e.Run(context.Background(), []Job{
				func(context.Context) error { panic("estimator exploded") },
			})
			var panicErr *errors.PanicError
			require.True(t, errors.As(err, &panicErr))
		})
	}
}

func TestEngine_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewEngine(WithLogger(quietLogger())).Run(ctx, []Job{
		func(context.Context) error { return nil },
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("drain")
	require.NoError(t, err)
	assert.Equal(t, Drain, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)

	_, err = ParsePolicy("retry")
	assert.True(t, errors.IsConfiguration(err))
}

func TestParallelize(t *testing.T) {
	var mu sync.Mutex
	seen := make([]bool, 1003)
	Parallelize(len(seen), func(start, end int) {
		mu.Lock()
		defer mu.Unlock()
		for i := start; i < end; i++ {
			assert.False(t, seen[i])
			seen[i] = true
		}
	})
	for i, ok := range seen {
		assert.True(t, ok, "index %d not visited", i)
	}

	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)
}

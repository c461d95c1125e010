package estimation

import (
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
)

func init() {
	model.Register(&countingTransformer{})
}

// regressionData returns X (n x 3) and y = X w + 1 + noise.
func regressionData(n int, seed uint64, noise float64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	w := []float64{2, -1, 0.5}
	X := mat.NewDense(n, len(w), nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		v := 1.0
		for j, wj := range w {
			x := rng.NormFloat64()
			X.Set(i, j, x)
			v += wj * x
		}
		y.Set(i, 0, v+noise*rng.NormFloat64())
	}
	return X, y
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.NewTemp(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Remove() })
	return c
}

func testLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelDebug)
	return l
}

// countingTransformer adds Shift to every value and counts Transform calls.
type countingTransformer struct {
	Shift float64
	calls *atomic.Int64
}

func newCounting(shift float64) *countingTransformer {
	return &countingTransformer{Shift: shift, calls: new(atomic.Int64)}
}

func (c *countingTransformer) Fit(X, _ mat.Matrix) error { return nil }

func (c *countingTransformer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if c.calls != nil {
		c.calls.Add(1)
	}
	r, k := X.Dims()
	out := mat.NewDense(r, k, nil)
	out.Apply(func(i, j int, v float64) float64 { return v + c.Shift }, X)
	return out, nil
}

func (c *countingTransformer) Clone() model.Transformer {
	return &countingTransformer{Shift: c.Shift, calls: c.calls}
}

func (c *countingTransformer) Calls() int64 {
	return c.calls.Load()
}

// brokenEstimator never fits.
type brokenEstimator struct{}

func (brokenEstimator) Fit(X, y mat.Matrix) error {
	return errors.New("broken estimator")
}

func (brokenEstimator) Predict(X mat.Matrix) (mat.Matrix, error) {
	return nil, errors.New("broken estimator")
}

func (brokenEstimator) Clone() model.Estimator { return brokenEstimator{} }

func hasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v != v {
				return true
			}
		}
	}
	return false
}

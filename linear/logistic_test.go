package linear

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// three well separated clusters on a line
func clusters() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(30, 1, nil)
	y := mat.NewDense(30, 1, nil)
	for i := 0; i < 30; i++ {
		class := i / 10
		X.Set(i, 0, float64(class*4-4)+float64(i%10)*0.1)
		y.Set(i, 0, float64(class))
	}
	return X, y
}

func TestLogisticRegression_Multiclass(t *testing.T) {
	X, y := clusters()
	m := NewLogisticRegression(WithMaxIter(3000))
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, []float64{0, 1, 2}, m.Classes)

	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y, pred))

	proba, err := m.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 30, r)
	assert.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, floats.Sum(mat.Row(nil, i, proba)), 1e-12)
	}
}

func TestLogisticRegression_Binary(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{-3, -2, -1, 1, 2, 3})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	m := NewLogisticRegression(WithLearningRate(1), WithTol(1e-8), WithL2(0))
	require.NoError(t, m.Fit(X, y))

	proba, err := m.PredictProba(mat.NewDense(2, 1, []float64{-5, 5}))
	require.NoError(t, err)
	assert.Greater(t, proba.At(0, 0), 0.9)
	assert.Greater(t, proba.At(1, 1), 0.9)
	assert.Greater(t, m.NIter, 0)
}

func TestLogisticRegression_Errors(t *testing.T) {
	m := NewLogisticRegression()
	_, err := m.PredictProba(mat.NewDense(1, 1, nil))
	assert.True(t, errors.IsNotFitted(err))

	err = m.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{1, 1, 1}))
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))
}

func TestLogisticRegression_IsProbabilistic(t *testing.T) {
	var est model.Estimator = NewLogisticRegression()
	assert.True(t, model.MethodPredictProba.Supports(est))
	assert.False(t, model.MethodPredictProba.Supports(NewLinearRegression()))

	X, y := clusters()
	require.NoError(t, est.Fit(X, y))
	clone := est.Clone()
	_, err := clone.Predict(X)
	assert.True(t, errors.IsNotFitted(err))

	var buf bytes.Buffer
	require.NoError(t, model.Encode(&buf, &est))
	var restored model.Estimator
	require.NoError(t, model.Decode(&buf, &restored))
	want, _ := model.MethodPredictProba.Call(est, X)
	got, err := model.MethodPredictProba.Call(restored, X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

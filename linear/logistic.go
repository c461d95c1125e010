package linear

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// LogisticRegression is a multinomial logistic regression fitted by full
// batch gradient descent on the softmax cross-entropy. Binary problems are
// the two-class case; PredictProba always returns one column per class in
// ascending label order.
type LogisticRegression struct {
	LearningRate float64
	MaxIter      int
	Tol          float64
	L2           float64

	// Classes are the sorted distinct labels seen in Fit.
	Classes []float64
	// Coef is the row-major (classes × (features+1)) weight matrix; column
	// zero holds the intercepts.
	Coef  []float64
	NIter int
	State *model.StateManager
}

// NewLogisticRegression creates an unfitted model.
func NewLogisticRegression(opts ...LogisticOption) *LogisticRegression {
	m := &LogisticRegression{
		LearningRate: 0.5,
		MaxIter:      500,
		Tol:          1e-6,
		L2:           1e-4,
		State:        model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Clone returns an unfitted copy with the same hyperparameters.
func (m *LogisticRegression) Clone() model.Estimator {
	return &LogisticRegression{
		LearningRate: m.LearningRate,
		MaxIter:      m.MaxIter,
		Tol:          m.Tol,
		L2:           m.L2,
		State:        model.NewStateManager(),
	}
}

func distinct(y mat.Matrix) []float64 {
	r, _ := y.Dims()
	seen := make(map[float64]struct{})
	for i := 0; i < r; i++ {
		seen[y.At(i, 0)] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// Fit learns the class weights.
func (m *LogisticRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LogisticRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LogisticRegression.Fit", "y must be a column vector")
	}
	classes := distinct(y)
	if len(classes) < 2 {
		return errors.NewValueError("LogisticRegression.Fit", "needs samples of at least 2 classes")
	}
	if m.State == nil {
		m.State = model.NewStateManager()
	}

	k := len(classes)
	Xa := withIntercept(X, true)

	// one-hot targets
	Y := mat.NewDense(r, k, nil)
	for i := 0; i < r; i++ {
		Y.Set(i, sort.SearchFloat64s(classes, y.At(i, 0)), 1)
	}

	W := mat.NewDense(k, c+1, nil)
	var P, grad mat.Dense
	m.NIter = 0
	for it := 0; it < m.MaxIter; it++ {
		m.NIter = it + 1
		P.Mul(Xa, W.T())
		softmaxRows(&P)

		// grad = (P - Y)^T Xa / n + L2 * W (intercepts excluded)
		P.Sub(&P, Y)
		grad.Mul(P.T(), Xa)
		grad.Scale(1/float64(r), &grad)
		for a := 0; a < k; a++ {
			for j := 1; j <= c; j++ {
				grad.Set(a, j, grad.At(a, j)+m.L2*W.At(a, j))
			}
		}

		W.Sub(W, scaled(m.LearningRate, &grad))
		if floats.Max(absAll(grad.RawMatrix().Data)) < m.Tol {
			break
		}
	}

	m.Classes = classes
	m.Coef = append([]float64(nil), W.RawMatrix().Data...)
	m.State.SetFitted(c, r)
	return nil
}

func scaled(f float64, a mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, a)
	return &out
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

// softmaxRows normalizes every row of P to a probability distribution.
func softmaxRows(P *mat.Dense) {
	r, _ := P.Dims()
	for i := 0; i < r; i++ {
		row := P.RawRowView(i)
		mx := floats.Max(row)
		var sum float64
		for j := range row {
			row[j] = math.Exp(row[j] - mx)
			sum += row[j]
		}
		floats.Scale(1/sum, row)
	}
}

// PredictProba returns the n × classes probability matrix.
func (m *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.State.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := m.State.RequireFeatures("LogisticRegression.PredictProba", c); err != nil {
		return nil, err
	}
	W := mat.NewDense(len(m.Classes), c+1, m.Coef)

	var P mat.Dense
	P.Mul(withIntercept(X, true), W.T())
	softmaxRows(&P)
	return &P, nil
}

// Predict returns the most probable label of every row (n×1).
func (m *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	P, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := P.Dims()
	out := mat.NewDense(r, 1, nil)
	dense := P.(*mat.Dense)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.Classes[floats.MaxIdx(dense.RawRowView(i))])
	}
	return out, nil
}

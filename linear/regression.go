// Package linear provides linear estimators usable as layer estimators.
// All fitted state lives in exported fields so fitted models can be cached
// with encoding/gob.
package linear

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/core/parallel"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

func init() {
	model.Register(&LinearRegression{})
	model.Register(&LogisticRegression{})
}

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は線形回帰モデル（Alpha > 0 の場合はリッジ回帰）
type LinearRegression struct {
	// ハイパーパラメータ
	FitIntercept bool
	Alpha        float64

	// 学習済みパラメータ
	Weights   []float64
	Intercept float64
	State     *model.StateManager
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...RegressionOption) *LinearRegression {
	lr := &LinearRegression{FitIntercept: true, State: model.NewStateManager()}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Clone は同じハイパーパラメータを持つ未学習のモデルを返す
func (lr *LinearRegression) Clone() model.Estimator {
	return &LinearRegression{FitIntercept: lr.FitIntercept, Alpha: lr.Alpha, State: model.NewStateManager()}
}

// withIntercept は先頭に 1 の列を追加した X を作成する
func withIntercept(X mat.Matrix, intercept bool) *mat.Dense {
	r, c := X.Dims()
	off := 0
	if intercept {
		off = 1
	}
	out := mat.NewDense(r, c+off, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if intercept {
				out.Set(i, 0, 1.0)
			}
			for j := 0; j < c; j++ {
				out.Set(i, j+off, X.At(i, j))
			}
		}
	})
	return out
}

// Fit はモデルを訓練データで学習させる
// 正規方程式 (X^T X + αI) w = X^T y を解く
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}
	if lr.State == nil {
		lr.State = model.NewStateManager()
	}

	Xa := withIntercept(X, lr.FitIntercept)
	_, p := Xa.Dims()

	var XTX mat.Dense
	XTX.Mul(Xa.T(), Xa)
	if lr.Alpha > 0 {
		start := 0
		if lr.FitIntercept {
			start = 1 // 切片は正則化しない
		}
		for j := start; j < p; j++ {
			XTX.Set(j, j, XTX.At(j, j)+lr.Alpha)
		}
	}

	yVec := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}
	var XTy mat.VecDense
	XTy.MulVec(Xa.T(), yVec)

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(p, XTX.RawMatrix().Data)); !ok {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &XTy); err != nil {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	// 切片と重みを分離
	lr.Intercept = 0
	off := 0
	if lr.FitIntercept {
		lr.Intercept = w.AtVec(0)
		off = 1
	}
	lr.Weights = make([]float64, c)
	for j := 0; j < c; j++ {
		lr.Weights[j] = w.AtVec(j + off)
	}

	lr.State.SetFitted(c, r)
	return nil
}

// Predict は入力データに対する予測を行う（n×1）
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.State.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.State.RequireFeatures("LinearRegression.Predict", c); err != nil {
		return nil, err
	}

	// 予測: y = X * weights + intercept
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	r, _ := y.Dims()
	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	var tss, rss float64
	for i := 0; i < r; i++ {
		d := y.At(i, 0) - yMean
		e := y.At(i, 0) - yPred.At(i, 0)
		tss += d * d
		rss += e * e
	}
	if tss == 0 {
		return 0, errors.Newf("total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}

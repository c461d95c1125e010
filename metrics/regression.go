package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// column は n×1 の行列（または VecDense）を値のスライスとして取り出す
func column(op string, m mat.Matrix) ([]float64, error) {
	r, c := m.Dims()
	if r == 0 {
		return nil, errors.NewValueError(op, "empty vector")
	}
	if c != 1 {
		return nil, errors.NewValueError(op, "must be a column vector (n×1 matrix)")
	}
	out := make([]float64, r)
	for i := range out {
		out[i] = m.At(i, 0)
	}
	return out, nil
}

// columnPair は yTrue と yPred を同じ長さの列として取り出す
func columnPair(op string, yTrue, yPred mat.Matrix) ([]float64, []float64, error) {
	t, err := column(op, yTrue)
	if err != nil {
		return nil, nil, err
	}
	p, err := column(op, yPred)
	if err != nil {
		return nil, nil, err
	}
	if len(t) != len(p) {
		return nil, nil, errors.NewDimensionError(op, len(t), len(p), 0)
	}
	return t, p, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columnPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := range t {
		diff := t[i] - p[i]
		sum += diff * diff
	}
	return sum / float64(len(t)), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columnPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAE = (1/n) * Σ|yTrue - yPred|
	var sum float64
	for i := range t {
		sum += math.Abs(t[i] - p[i])
	}
	return sum / float64(len(t)), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columnPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yMean float64
	for _, v := range t {
		yMean += v
	}
	yMean /= float64(len(t))

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := range t {
		tss += (t[i] - yMean) * (t[i] - yMean)
		rss += (t[i] - p[i]) * (t[i] - p[i])
	}

	// すべてのyTrueが同じ値の場合
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}

// MAPE は平均絶対パーセンテージ誤差を計算する
func MAPE(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columnPair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAPE = (100/n) * Σ|yTrue - yPred|/|yTrue|
	var sum float64
	validCount := 0
	for i := range t {
		if t[i] != 0 { // ゼロ除算を避ける
			sum += math.Abs(t[i]-p[i]) / math.Abs(t[i])
			validCount++
		}
	}
	if validCount == 0 {
		return 0, errors.Newf("MAPE: all yTrue values are zero")
	}
	return (sum / float64(validCount)) * 100, nil
}

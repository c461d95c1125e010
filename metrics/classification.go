package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// logLossEps は log(0) を避けるためのクリッピング幅
const logLossEps = 1e-15

func clip(p float64) float64 {
	return math.Min(math.Max(p, logLossEps), 1-logLossEps)
}

// BinaryLogLoss は二値分類の対数損失を計算する。
// yPred はクラス1の確率（n×1）
func BinaryLogLoss(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columnPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := range t {
		if t[i] != 0 && t[i] != 1 {
			return 0, errors.NewValueError("BinaryLogLoss", "labels must be 0 or 1")
		}
		q := clip(p[i])
		sum -= t[i]*math.Log(q) + (1-t[i])*math.Log(1-q)
	}
	return sum / float64(len(t)), nil
}

// LogLoss は多クラスの対数損失を計算する。
// yTrue は 0..k-1 のクラスラベル（n×1）、yPred は n×k の確率行列。
// k == 1 の場合は BinaryLogLoss と同じ
func LogLoss(yTrue, yPred mat.Matrix) (float64, error) {
	r, k := yPred.Dims()
	if k == 1 {
		return BinaryLogLoss(yTrue, yPred)
	}
	t, err := column("LogLoss", yTrue)
	if err != nil {
		return 0, err
	}
	if len(t) != r {
		return 0, errors.NewDimensionError("LogLoss", len(t), r, 0)
	}

	var sum float64
	for i, label := range t {
		c := int(label)
		if float64(c) != label || c < 0 || c >= k {
			return 0, errors.NewValueError("LogLoss", "labels must be class indices below the number of probability columns")
		}
		sum -= math.Log(clip(yPred.At(i, c)))
	}
	return sum / float64(len(t)), nil
}

// labels は予測をクラスラベルへ変換する。n×k の確率行列は argmax を取る
func labels(op string, yPred mat.Matrix) ([]float64, error) {
	r, k := yPred.Dims()
	if k == 1 {
		return column(op, yPred)
	}
	if r == 0 {
		return nil, errors.NewValueError(op, "empty vector")
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if yPred.At(i, j) > yPred.At(i, best) {
				best = j
			}
		}
		out[i] = float64(best)
	}
	return out, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred mat.Matrix) (float64, error) {
	t, err := column("Accuracy", yTrue)
	if err != nil {
		return 0, err
	}
	p, err := labels("Accuracy", yPred)
	if err != nil {
		return 0, err
	}
	if len(t) != len(p) {
		return 0, errors.NewDimensionError("Accuracy", len(t), len(p), 0)
	}

	correct := 0
	for i := range t {
		if t[i] == p[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(t)), nil
}

// ClassificationError は誤分類率（1 - Accuracy）を計算する
func ClassificationError(yTrue, yPred mat.Matrix) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

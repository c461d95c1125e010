package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う。
	// 戻り値は n_samples × n_outputs の行列で、n_outputs == 1 が通常の1次元予測
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator はレイヤー内で学習・予測される推定器のインターフェース。
// 同じパラメータを持つ未学習のコピーを Clone で作れることが必要
// （フォールドごとに独立したインスタンスを学習するため）。
type Estimator interface {
	Fitter
	Predictor

	// Clone は未学習の新しいインスタンスを同じハイパーパラメータで作成する
	Clone() Estimator
}

// ProbabilisticEstimator はクラス確率を出力できる推定器
type ProbabilisticEstimator interface {
	Estimator

	// PredictProba は n_samples × n_classes の確率行列を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// PredictMethod はレイヤーが推定器から予測を取り出す方法
type PredictMethod int

const (
	// MethodPredict は Predict を使う
	MethodPredict PredictMethod = iota
	// MethodPredictProba は PredictProba を使う
	MethodPredictProba
)

// String は予測メソッド名を返す
func (m PredictMethod) String() string {
	if m == MethodPredictProba {
		return "predict_proba"
	}
	return "predict"
}

// Supports は est が m を実行できるかを返す
func (m PredictMethod) Supports(est Estimator) bool {
	if m == MethodPredictProba {
		_, ok := est.(ProbabilisticEstimator)
		return ok
	}
	return true
}

// Call は m に従って予測を行う。Supports で事前に検証されていることが前提
func (m PredictMethod) Call(est Estimator, X mat.Matrix) (mat.Matrix, error) {
	if m == MethodPredictProba {
		return est.(ProbabilisticEstimator).PredictProba(X)
	}
	return est.Predict(X)
}

package model

import "gonum.org/v1/gonum/mat"

// Transformer はデータ変換のインターフェース。
// パイプラインの各段として学習され、後段へ変換結果を渡す
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する。y は教師なしの変換器では無視される
	Fit(X, y mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// Clone は未学習の新しいインスタンスを同じパラメータで作成する
	Clone() Transformer
}

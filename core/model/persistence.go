package model

import (
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// Register は gob でインターフェース値として保存される具体型を登録する。
// キャッシュに書かれる推定器・変換器は、パッケージの init で登録しておく必要がある。
// 同じ型を複数回登録しても安全。
//
// 使用例:
//
//	func init() {
//	    model.Register(&LinearRegression{})
//	}
func Register(value interface{}) {
	gob.Register(value)
}

// Encode はモデル（または任意のペイロード）を w に書き出す
//
// パラメータ:
//   - w: 保存先のWriter
//   - payload: 保存する値。インターフェース値を含む場合は具体型が Register 済みであること
//
// 戻り値:
//   - error: 保存に失敗した場合のエラー
func Encode(w io.Writer, payload interface{}) error {
	if err := gob.NewEncoder(w).Encode(payload); err != nil {
		return errors.Wrap(err, "failed to encode payload")
	}
	return nil
}

// Decode は r からペイロードを out（ポインタ）へ読み込む
func Decode(r io.Reader, out interface{}) error {
	if err := gob.NewDecoder(r).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode payload")
	}
	return nil
}

// Package preprocessing provides transformers usable as pipeline stages of
// a preprocessing case.
package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

func init() {
	model.Register(&StandardScaler{})
	model.Register(&MinMaxScaler{})
}

// StandardScaler はデータを平均0、標準偏差1に変換する
type StandardScaler struct {
	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（0 の特徴量は 1 として扱う）
	Scale []float64

	State *model.StateManager
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X, nil)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{WithMean: withMean, WithStd: withStd, State: model.NewStateManager()}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Clone は同じ設定の未学習スケーラーを返す
func (s *StandardScaler) Clone() model.Transformer {
	return NewStandardScaler(s.WithMean, s.WithStd)
}

// Fit は訓練データから平均と母標準偏差を計算する。y は使用しない
func (s *StandardScaler) Fit(X, _ mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		if s.WithStd && std > 0 {
			s.Scale[j] = std
		}
	}

	s.State.SetFitted(c, r)
	return nil
}

// Transform は (X - Mean) / Scale を返す
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.State.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("StandardScaler.Transform", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return out, nil
}

// InverseTransform は標準化を元に戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.State.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("StandardScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return out, nil
}

func (s *StandardScaler) String() string {
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
}

// MinMaxScaler は各特徴量を FeatureRange の区間へ線形に写像する
type MinMaxScaler struct {
	// FeatureRange は変換後の範囲 (デフォルト: [0, 1])
	FeatureRange [2]float64

	DataMin []float64
	DataMax []float64

	State *model.StateManager
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{FeatureRange: featureRange, State: model.NewStateManager()}
}

// NewMinMaxScalerDefault は [0, 1] へ写像するMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0, 1})
}

// Clone は同じ設定の未学習スケーラーを返す
func (m *MinMaxScaler) Clone() model.Transformer {
	return NewMinMaxScaler(m.FeatureRange)
}

// Fit は各特徴量の最小値・最大値を記録する。y は使用しない
func (m *MinMaxScaler) Fit(X, _ mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValueError("MinMaxScaler.Fit", fmt.Sprintf("invalid feature range %v", m.FeatureRange))
	}
	if m.State == nil {
		m.State = model.NewStateManager()
	}

	m.DataMin = make([]float64, c)
	m.DataMax = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m.DataMin[j] = floats.Min(col)
		m.DataMax[j] = floats.Max(col)
	}

	m.State.SetFitted(c, r)
	return nil
}

// Transform は X を FeatureRange へ写像する。値域が 0 の特徴量は下限になる
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.State.RequireFitted("MinMaxScaler", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := m.State.RequireFeatures("MinMaxScaler.Transform", c); err != nil {
		return nil, err
	}

	lo, hi := m.FeatureRange[0], m.FeatureRange[1]
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		span := m.DataMax[j] - m.DataMin[j]
		for i := 0; i < r; i++ {
			v := lo
			if span > 0 {
				v = lo + (X.At(i, j)-m.DataMin[j])/span*(hi-lo)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// InverseTransform は写像を元に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.State.RequireFitted("MinMaxScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := m.State.RequireFeatures("MinMaxScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	lo, hi := m.FeatureRange[0], m.FeatureRange[1]
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			span := m.DataMax[j] - m.DataMin[j]
			out.Set(i, j, (X.At(i, j)-lo)/(hi-lo)*span+m.DataMin[j])
		}
	}
	return out, nil
}

func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=%v)", m.FeatureRange)
}

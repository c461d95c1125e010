// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// レイヤー推定エンジンの失敗分類（未学習、依存待ちタイムアウト、設定エラー、学習失敗）を
// 構造化されたエラー型として表現します。
package errors

import (
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("mlstack-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ParallelProcessingWarning は並列ジョブが依存する成果物を待ち切れなかったが、
// 猶予サイクルでの再試行が許される場合に発生する警告です。
type ParallelProcessingWarning struct {
	Case     string
	Path     string
	Interval time.Duration
	Limit    time.Duration
}

func (w *ParallelProcessingWarning) Error() string {
	return fmt.Sprintf("transformer %s not found in cache (%s). Will check every %s for %s before aborting.",
		w.Case, w.Path, w.Interval, w.Limit)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ParallelProcessingWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("case", w.Case).
		Str("path", w.Path).
		Dur("interval", w.Interval).
		Dur("limit", w.Limit).
		Str("type", "ParallelProcessingWarning")
}

// NewParallelProcessingWarning は新しいParallelProcessingWarningを作成します。
func NewParallelProcessingWarning(caseName, path string, interval, limit time.Duration) *ParallelProcessingWarning {
	return &ParallelProcessingWarning{Case: caseName, Path: path, Interval: interval, Limit: limit}
}

// FitFailedWarning はドレイン方式のディスパッチでジョブが失敗し、
// その成果物が再構成から除外された場合の警告です。
type FitFailedWarning struct {
	Layer string
	Err   error
}

func (w *FitFailedWarning) Error() string {
	return fmt.Sprintf("layer %s: job failed and its artifact will be skipped: %v", w.Layer, w.Err)
}

func (w *FitFailedWarning) Unwrap() error {
	return w.Err
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *FitFailedWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("layer", w.Layer).
		AnErr("cause", w.Err).
		Str("type", "FitFailedWarning")
}

// NewFitFailedWarning は新しいFitFailedWarningを作成します。
func NewFitFailedWarning(layer string, err error) *FitFailedWarning {
	return &FitFailedWarning{Layer: layer, Err: err}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
	Reason    string
}

func (e *NotFittedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("mlstack: %s: this model is not fitted yet (%s). Call Fit() before using %s()", e.ModelName, e.Reason, e.Method)
	}
	return fmt.Sprintf("mlstack: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("reason", e.Reason).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// NewNotFittedErrorf は理由付きのNotFittedErrorを作成します。
func NewNotFittedErrorf(modelName, method, format string, args ...interface{}) error {
	err := &NotFittedError{ModelName: modelName, Method: method, Reason: fmt.Sprintf(format, args...)}
	return errors.WithStack(err)
}

// DependencyTimeoutError は前処理パイプラインの成果物が待機上限を超えても
// キャッシュに現れなかった場合の致命的エラーです。
type DependencyTimeoutError struct {
	Case  string
	Path  string
	Limit time.Duration
	Cause error
}

func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("mlstack: the file %s cannot be found after %s of waiting. "+
		"Check that time to fit transformers is sufficiently fast to complete fitting before fitting estimators. "+
		"Consider reducing the preprocessing intensity in the ensemble, or increase the wait limit. Details: %v",
		e.Path, e.Limit, e.Cause)
}

func (e *DependencyTimeoutError) Unwrap() error {
	return e.Cause
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DependencyTimeoutError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("case", e.Case).
		Str("path", e.Path).
		Dur("limit", e.Limit).
		Str("type", "DependencyTimeoutError")
}

// NewDependencyTimeoutError は新しいDependencyTimeoutErrorを作成し、スタックトレースを付与します。
func NewDependencyTimeoutError(caseName, path string, limit time.Duration, cause error) error {
	err := &DependencyTimeoutError{Case: caseName, Path: path, Limit: limit, Cause: cause}
	return errors.WithStack(err)
}

// ConfigurationError はレイヤー記述子や実行モードの設定が不正な場合のエラーです。
type ConfigurationError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mlstack: invalid configuration for '%s': %s (got: %v)", e.Field, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError は新しいConfigurationErrorを作成し、スタックトレースを付与します。
func NewConfigurationError(field, reason string, value interface{}) error {
	err := &ConfigurationError{Field: field, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// FitFailedError は個々のジョブ（変換器・推定器の学習や予測）が失敗した場合のエラーです。
type FitFailedError struct {
	Job       string
	Case      string
	Estimator string
	Err       error
}

func (e *FitFailedError) Error() string {
	if e.Estimator != "" {
		return fmt.Sprintf("mlstack: %s failed for case '%s', estimator '%s': %v", e.Job, e.Case, e.Estimator, e.Err)
	}
	return fmt.Sprintf("mlstack: %s failed for case '%s': %v", e.Job, e.Case, e.Err)
}

func (e *FitFailedError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FitFailedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("job", e.Job).
		Str("case", e.Case).
		Str("estimator", e.Estimator).
		AnErr("cause", e.Err).
		Str("type", "FitFailedError")
}

// NewFitFailedError は新しいFitFailedErrorを作成し、スタックトレースを付与します。
func NewFitFailedError(job, caseName, estimator string, err error) error {
	return errors.WithStack(&FitFailedError{Job: job, Case: caseName, Estimator: estimator, Err: err})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("mlstack: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("mlstack: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mlstack: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mlstack: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// Join は複数のエラーを一つにまとめます。nil のみの場合は nil を返します。
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsNotFitted はエラーが NotFittedError を含むかどうかを判定します。
func IsNotFitted(err error) bool {
	var target *NotFittedError
	return errors.As(err, &target)
}

// IsConfiguration はエラーが ConfigurationError を含むかどうかを判定します。
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsDependencyTimeout はエラーが DependencyTimeoutError を含むかどうかを判定します。
func IsDependencyTimeout(err error) bool {
	var target *DependencyTimeoutError
	return errors.As(err, &target)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")

	// ErrArtifactExists は同一キャッシュキーへの二重書き込みを示します。
	ErrArtifactExists = New("artifact already written")
)

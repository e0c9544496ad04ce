// Package errors はパイプライン共通のエラー型と警告を提供します。
//
// エラーは cockroachdb/errors でスタックトレースを付けて返し、呼び出し側は
// As で型を取り出して分岐します。警告は処理を止めず、zerolog に出力されます。
package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// 共通の原因エラー。Is で判定します。
var (
	ErrEmptyData      = errors.New("empty data")
	ErrSingularMatrix = errors.New("singular matrix")
)

// NotFittedError は学習前に Predict や Transform が呼ばれたことを表します。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("heartrisk: %s.%s called before Fit", e.ModelName, e.Method)
}

func (e *NotFittedError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "NotFittedError").Str("model_name", e.ModelName).Str("method", e.Method)
}

// NewNotFittedError は NotFittedError をスタック付きで返します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は行数または列数の不一致です。Axis は 0 が行、1 が列です。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("heartrisk: %s: expected %d %s, got %d", e.Op, e.Expected, e.axisName(), e.Got)
}

func (e *DimensionError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "DimensionError").
		Str("operation", e.Op).
		Str("axis", e.axisName()).
		Int("expected", e.Expected).
		Int("got", e.Got)
}

// NewDimensionError は DimensionError をスタック付きで返します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は設定値やハイパーパラメータが許容範囲外であることを表します。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("heartrisk: invalid %s=%v: %s", e.ParamName, e.Value, e.Reason)
}

func (e *ValidationError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "ValidationError").
		Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value)
}

// NewValidationError は ValidationError をスタック付きで返します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は入力データが処理できない状態であることを表します。
// 例: PCA の成分数が min(n_samples, n_features) を超える、近傍数より観測値が少ない。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("heartrisk: %s: %s", e.Op, e.Message)
}

// NewValueError は ValueError をスタック付きで返します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// UnsupportedMethodError は未知の学習手法名です。設定エラーとして扱い、
// 部分的な結果は出力しません。
type UnsupportedMethodError struct {
	Method    string
	Supported []string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("heartrisk: unsupported method %q: select one of [%s]", e.Method, strings.Join(e.Supported, " "))
}

func (e *UnsupportedMethodError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "UnsupportedMethodError").Str("method", e.Method).Strs("supported", e.Supported)
}

// NewUnsupportedMethodError は UnsupportedMethodError をスタック付きで返します。
func NewUnsupportedMethodError(method string, supported []string) error {
	return errors.WithStack(&UnsupportedMethodError{Method: method, Supported: supported})
}

// ModelError は学習や推論の失敗です。Err に原因を保持します。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("heartrisk: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("heartrisk: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError は ModelError をスタック付きで返します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NumericalInstabilityError は NaN や Inf を検出したことを表します。
// Values には問題の値だけを保持します。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	shown := e.Values
	if len(shown) > 5 {
		shown = shown[:5]
	}
	parts := make([]string, len(shown))
	for i, v := range shown {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	if len(e.Values) > len(shown) {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("heartrisk: %s: non-finite values at iteration %d: [%s]",
		e.Operation, e.Iteration, strings.Join(parts, ", "))
}

// NewNumericalInstabilityError は NumericalInstabilityError をスタック付きで返します。
func NewNumericalInstabilityError(op string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: op, Values: values, Iteration: iteration})
}

// Is は errors.Is と同じです。
func Is(err, target error) bool { return errors.Is(err, target) }

// As は errors.As と同じです。
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Wrap はメッセージを付けてラップします。スタックも付与されます。
func Wrap(err error, message string) error { return errors.Wrap(err, message) }

// Wrapf はフォーマット済みメッセージを付けてラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New はスタック付きのエラーを作成します。
func New(message string) error { return errors.New(message) }

// Newf はフォーマット済みメッセージでスタック付きのエラーを作成します。
func Newf(format string, args ...interface{}) error { return errors.Newf(format, args...) }

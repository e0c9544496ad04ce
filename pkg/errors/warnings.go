package errors

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// warningSink は警告の出力先です。CLI 起動時にロガーが差し替えられ、
// テストではフックで警告を捕捉します。
type warningSink struct {
	mu     sync.Mutex
	logger zerolog.Logger
	hook   func(w error)
}

var sink = &warningSink{logger: zerolog.Nop()}

// SetWarningLogger は警告を出力する zerolog ロガーを設定します。
func SetWarningLogger(logger zerolog.Logger) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.logger = logger
}

// SetWarningHandler は警告ごとに呼ばれるフックを設定します。nil で解除します。
func SetWarningHandler(handler func(w error)) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.hook = handler
}

// Warn は処理を止めずに警告を記録します。
// w が zerolog.LogObjectMarshaler なら構造化フィールドとして出力します。
func Warn(w error) {
	sink.mu.Lock()
	defer sink.mu.Unlock()

	event := sink.logger.Warn()
	if m, ok := w.(zerolog.LogObjectMarshaler); ok {
		event = event.EmbedObject(m)
	}
	event.Msg(w.Error())

	if sink.hook != nil {
		sink.hook(w)
	}
}

// ConvergenceWarning は最適化が反復上限までに収束しなかったことを表します。
// 学習結果はそのまま使われます。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	msg := w.Message
	if msg == "" {
		msg = "increase max_iter or rescale the inputs"
	}
	return fmt.Sprintf("%s did not converge in %d iterations: %s", w.Algorithm, w.Iterations, msg)
}

func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "ConvergenceWarning").
		Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations)
}

// NewConvergenceWarning は ConvergenceWarning を作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning は評価指標が定義できず既定値で置き換えたことを表します。
// 例: 検証 fold に陽性が1件もない場合の ROC 曲線。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("%s is undefined (%s); using %g", w.Metric, w.Condition, w.Result)
}

func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "UndefinedMetricWarning").
		Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result)
}

// NewUndefinedMetricWarning は UndefinedMetricWarning を作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

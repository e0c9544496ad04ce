package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// PanicError は回復した panic を表すエラーです。
// gonum は形状不一致や分解の失敗を panic で通知するため、学習や射影の呼び出し口で
// 通常のエラー値に変換します。
type PanicError struct {
	Op    string      // panic を回復した操作
	Value interface{} // panic() に渡された値
	Stack string      // 回復時点のゴルーチンスタック
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("heartrisk: %s: panic: %v", e.Op, e.Value)
}

// Unwrap は panic の値がエラーであればそれを返します（mat.ErrShape など）。
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recover は defer で使い、panic を *err に代入します。
// 既にエラーが入っていれば副次エラーとして残します。
//
//	func (p *PCA) Fit(X mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "PCA.Fit")
//	    ...
//	}
func Recover(err *error, op string) {
	r := recover()
	if r == nil {
		return
	}
	var pe error = &PanicError{Op: op, Value: r, Stack: string(debug.Stack())}
	if *err != nil {
		pe = errors.CombineErrors(pe, *err)
	}
	*err = pe
}

// SafeExecute は fn を実行し、panic をエラーに変換して返します。
func SafeExecute(op string, fn func() error) (err error) {
	defer Recover(&err, op)
	return fn()
}

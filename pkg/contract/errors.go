package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定）。
var (
	// ErrMalformedInput: 输入违反分词契约（非数字字节、空报告、长度不足等）。
	ErrMalformedInput = errors.New("malformed input")
	// ErrInvalidInput: 调用参数非法（例如批上限 <= 0）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrSeqInvalid: 判定序列违反顺序/归属约束。
	ErrSeqInvalid = errors.New("sequence invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// InputError 定位畸形输入；errors.Is(err, ErrMalformedInput) 为真。
type InputError struct {
	FileID FileID
	Line   int
	Col    int
	Reason string
}

func (e *InputError) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FileID, e.Line, e.Col, e.Reason)
	}
	return fmt.Sprintf("%s:%d: %s", e.FileID, e.Line, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrMalformedInput }

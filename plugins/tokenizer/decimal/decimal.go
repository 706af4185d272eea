// Package decimal 将“每行一份报告、空白分隔的非负十进制整数”文本拆为 Report。
//
// 行在拆分时一次性完成边界校验（字节集合、位数、长度），
// 通过校验的行以原始字节保存，数值由 Report.Levels 在消费时逐个解码，
// 因此下游分类器看到的永远是合法、前向、不整体物化的序列。
package decimal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"rptsafe/pkg/contract"
)

// MaxDigitsCap: 18 位十进制不超过 int64，且任意两数之差不溢出。
const MaxDigitsCap = 18

// Options 为 decimal Tokenizer 的可选配置。
type Options struct {
	// MaxDigits: 单个数值的最大位数，<=0 或超过 18 时取 18。
	MaxDigits int `json:"max_digits"`
	// MinLevels: 每份报告最少数值个数，<=0 时取 2。
	MinLevels int `json:"min_levels"`
	// SkipBlankLines: 跳过空白行；默认空白行视为空报告并报错。
	SkipBlankLines bool `json:"skip_blank_lines"`
}

// Tokenizer 实现 contract.Tokenizer。
type Tokenizer struct {
	maxDigits int
	minLevels int
	skipBlank bool
}

// New 创建 decimal Tokenizer。
func New(opts *Options) *Tokenizer {
	t := &Tokenizer{maxDigits: MaxDigitsCap, minLevels: 2}
	if opts == nil {
		return t
	}
	if opts.MaxDigits > 0 && opts.MaxDigits < MaxDigitsCap {
		t.maxDigits = opts.MaxDigits
	}
	if opts.MinLevels > 0 {
		t.minLevels = opts.MinLevels
	}
	t.skipBlank = opts.SkipBlankLines
	return t
}

var _ contract.Tokenizer = (*Tokenizer)(nil)

// Tokenize 逐行读取 r，返回按 Index 0..n-1 排列的报告。
// 最后一行可以没有换行符；CRLF 归一为 LF；空输入返回零份报告。
func (t *Tokenizer) Tokenize(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Report, error) {
	br := bufio.NewReader(r)
	var reps []contract.Report
	var idx contract.Index
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := br.ReadBytes('\n')
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return nil, err
		}
		if eof && len(raw) == 0 {
			break
		}
		raw = bytes.TrimSuffix(raw, []byte{'\n'})
		raw = bytes.TrimSuffix(raw, []byte{'\r'})

		n, col, reason := t.scan(raw)
		if reason != "" {
			return nil, &contract.InputError{FileID: fileID, Line: line, Col: col, Reason: reason}
		}
		switch {
		case n == 0 && t.skipBlank:
		case n == 0:
			return nil, &contract.InputError{FileID: fileID, Line: line, Reason: "empty report"}
		case n < t.minLevels:
			return nil, &contract.InputError{FileID: fileID, Line: line,
				Reason: fmt.Sprintf("report has %d levels, need at least %d", n, t.minLevels)}
		default:
			rep := contract.Report{Index: idx, FileID: fileID, Line: line, Raw: bytes.TrimSpace(raw)}
			rep.Levels = Levels(rep.Raw)
			reps = append(reps, rep)
			idx++
		}
		if eof {
			break
		}
	}
	return reps, nil
}

// scan 校验一行并返回数值个数；失败时返回 1 基列号与原因。
func (t *Tokenizer) scan(raw []byte) (n, col int, reason string) {
	digits := 0
	for i, c := range raw {
		switch {
		case c >= '0' && c <= '9':
			if digits == 0 {
				n++
			}
			digits++
			if digits > t.maxDigits {
				return n, i + 1, fmt.Sprintf("level exceeds %d digits", t.maxDigits)
			}
		case c == ' ' || c == '\t':
			digits = 0
		case c == '-':
			return n, i + 1, "negative level"
		default:
			return n, i + 1, fmt.Sprintf("unexpected byte %q", c)
		}
	}
	return n, 0, ""
}

// Levels 返回对已校验行字节的惰性解码序列；每次遍历都从行首开始。
// 非法字节按分隔符处理，调用方应只传入通过校验的行。
func Levels(raw []byte) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		var v int64
		in := false
		for _, c := range raw {
			if c >= '0' && c <= '9' {
				v = v*10 + int64(c-'0')
				in = true
				continue
			}
			if in {
				if !yield(v) {
					return
				}
				v, in = 0, false
			}
		}
		if in {
			yield(v)
		}
	}
}

package decimal

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rptsafe/pkg/contract"
)

const sample = `7 6 4 2 1
1 2 7 8 9
9 7 6 2 1
1 3 2 4 5
8 6 4 4 1
1 3 6 7 9
`

func levels(t *testing.T, r contract.Report) []int64 {
	t.Helper()
	return slices.Collect(r.Levels)
}

// TestTokenizeSample 六行样例
func TestTokenizeSample(t *testing.T) {
	reps, err := New(nil).Tokenize(context.Background(), "levels.txt", strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, reps, 6)
	for i, r := range reps {
		assert.Equal(t, contract.Index(i), r.Index)
		assert.Equal(t, i+1, r.Line)
		assert.Equal(t, contract.FileID("levels.txt"), r.FileID)
	}
	assert.Equal(t, []int64{7, 6, 4, 2, 1}, levels(t, reps[0]))
	assert.Equal(t, []int64{1, 3, 6, 7, 9}, levels(t, reps[5]))
	// 可重复遍历
	assert.Equal(t, levels(t, reps[2]), levels(t, reps[2]))
}

// TestTokenizeLineEndings CRLF、无结尾换行、制表符与多空格
func TestTokenizeLineEndings(t *testing.T) {
	in := "1 2\r\n3\t\t4  5\r\n 06 7 "
	reps, err := New(nil).Tokenize(context.Background(), "f", strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, reps, 3)
	assert.Equal(t, []int64{1, 2}, levels(t, reps[0]))
	assert.Equal(t, []int64{3, 4, 5}, levels(t, reps[1]))
	assert.Equal(t, []int64{6, 7}, levels(t, reps[2]))
	assert.Equal(t, "06 7", string(reps[2].Raw))
}

// TestTokenizeEmptyInput 空输入产生零份报告
func TestTokenizeEmptyInput(t *testing.T) {
	reps, err := New(nil).Tokenize(context.Background(), "f", strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, reps)
}

// TestTokenizeMalformed 畸形输入在边界失败并定位
func TestTokenizeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		opts   *Options
		in     string
		line   int
		col    int
		reason string
	}{
		{"非数字", nil, "1 2\n1 x 3\n", 2, 3, `unexpected byte 'x'`},
		{"负号", nil, "1 -2\n", 1, 3, "negative level"},
		{"空行", nil, "1 2\n\n3 4\n", 2, 0, "empty report"},
		{"仅空白", nil, "  \t\n", 1, 0, "empty report"},
		{"长度不足", nil, "5\n", 1, 0, "report has 1 levels, need at least 2"},
		{"自定义最小长度", &Options{MinLevels: 3}, "1 2\n", 1, 0, "report has 2 levels, need at least 3"},
		{"位数超限", nil, "1 1234567890123456789\n", 1, 21, "level exceeds 18 digits"},
		{"自定义位数", &Options{MaxDigits: 2}, "10 100\n", 1, 6, "level exceeds 2 digits"},
		{"行内回车", nil, "1\r2\n", 1, 2, `unexpected byte '\r'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts).Tokenize(context.Background(), "in.txt", strings.NewReader(tt.in))
			require.ErrorIs(t, err, contract.ErrMalformedInput)
			var ie *contract.InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, contract.FileID("in.txt"), ie.FileID)
			assert.Equal(t, tt.line, ie.Line)
			assert.Equal(t, tt.col, ie.Col)
			assert.Equal(t, tt.reason, ie.Reason)
		})
	}
}

// TestTokenizeSkipBlank 跳过空行时 Index 连续、Line 保留源行号
func TestTokenizeSkipBlank(t *testing.T) {
	reps, err := New(&Options{SkipBlankLines: true}).Tokenize(context.Background(), "f", strings.NewReader("1 2\n\n\n3 4\n\n"))
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, contract.Index(1), reps[1].Index)
	assert.Equal(t, 4, reps[1].Line)
}

// TestMaxDigitsCap 配置无法放宽到 18 位以上
func TestMaxDigitsCap(t *testing.T) {
	tk := New(&Options{MaxDigits: 40})
	assert.Equal(t, MaxDigitsCap, tk.maxDigits)
	reps, err := tk.Tokenize(context.Background(), "f", strings.NewReader("999999999999999999 0\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{999999999999999999, 0}, levels(t, reps[0]))
}

// TestLevelsEarlyStop 消费者提前停止
func TestLevelsEarlyStop(t *testing.T) {
	var got []int64
	for v := range Levels([]byte("1 2 3 4")) {
		got = append(got, v)
		if v == 2 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2}, got)
}

// TestTokenizeCtxCancel ctx 取消
func TestTokenizeCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Tokenize(ctx, "f", strings.NewReader(sample))
	require.ErrorIs(t, err, context.Canceled)
}

func BenchmarkTokenize(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString(sample)
	}
	in := sb.String()
	tk := New(nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tk.Tokenize(context.Background(), "f", strings.NewReader(in)); err != nil {
			b.Fatal(err)
		}
	}
}

package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rptsafe/pkg/contract"
)

func reports(fid contract.FileID, raws ...string) []contract.Report {
	out := make([]contract.Report, len(raws))
	for i, r := range raws {
		out[i] = contract.Report{Index: contract.Index(i), FileID: fid, Line: i + 1, Raw: []byte(r)}
	}
	return out
}

func sizes(bs []contract.Batch) []int {
	var out []int
	for _, b := range bs {
		out = append(out, len(b.Reports))
	}
	return out
}

// TestMakeByCount 仅按条数切分，最后一批可不满
func TestMakeByCount(t *testing.T) {
	reps := reports("f", "1 2", "3 4", "5 6", "7 8", "9 9")
	bs, err := New(nil).Make(context.Background(), reps, contract.BatchLimit{MaxReports: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes(bs))
	for i, b := range bs {
		assert.Equal(t, int64(i), b.BatchIndex)
		assert.Equal(t, contract.FileID("f"), b.FileID)
	}
	assert.Equal(t, contract.Index(4), bs[2].Reports[0].Index)
}

// TestMakeByBytes 字节预算先于条数生效；超限单条独占一批
func TestMakeByBytes(t *testing.T) {
	reps := reports("f", "1 2", "3 4", strings.Repeat("9 ", 10), "5 6")
	bs, err := New(&Options{MaxBytes: 6}).Make(context.Background(), reps, contract.BatchLimit{MaxReports: 10})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1}, sizes(bs))
}

// TestMakeAppendIsolated 批切片的容量被截断，追加不会覆盖相邻批
func TestMakeAppendIsolated(t *testing.T) {
	reps := reports("f", "1 2", "3 4")
	bs, err := New(nil).Make(context.Background(), reps, contract.BatchLimit{MaxReports: 1})
	require.NoError(t, err)
	_ = append(bs[0].Reports, contract.Report{Raw: []byte("x")})
	assert.Equal(t, "3 4", string(reps[1].Raw))
}

// TestMakeInvalid 上限非法、索引不连续、FileID 混入
func TestMakeInvalid(t *testing.T) {
	b := New(nil)
	ctx := context.Background()
	_, err := b.Make(ctx, nil, contract.BatchLimit{})
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	reps := reports("f", "1 2", "3 4")
	reps[1].Index = 2
	_, err = b.Make(ctx, reps, contract.BatchLimit{MaxReports: 4})
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	reps = reports("f", "1 2", "3 4")
	reps[1].FileID = "g"
	_, err = b.Make(ctx, reps, contract.BatchLimit{MaxReports: 4})
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	reps = reports("f", "1 2")
	reps[0].Index = 1
	_, err = b.Make(ctx, reps, contract.BatchLimit{MaxReports: 4})
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

// TestMakeEmpty 空输入
func TestMakeEmpty(t *testing.T) {
	bs, err := New(nil).Make(context.Background(), nil, contract.BatchLimit{MaxReports: 1})
	require.NoError(t, err)
	assert.Empty(t, bs)
}

// TestMakeCtxCancel ctx 取消
func TestMakeCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Make(ctx, reports("f", "1 2"), contract.BatchLimit{MaxReports: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func BenchmarkMake(b *testing.B) {
	raws := make([]string, 10000)
	for i := range raws {
		raws[i] = "7 6 4 2 1"
	}
	reps := reports("f", raws...)
	bt := New(&Options{MaxBytes: 4096})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := bt.Make(context.Background(), reps, contract.BatchLimit{MaxReports: 256}); err != nil {
			b.Fatal(err)
		}
	}
}

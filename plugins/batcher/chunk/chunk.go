package chunk

import (
	"context"
	"fmt"

	"rptsafe/pkg/contract"
)

// Options 为分块 Batcher 的可选配置。
type Options struct {
	// MaxBytes: 每批报告原始字节数上限（按 len(Raw) 累计）。<=0 表示只按条数切分。
	// 单份报告超过上限时独占一批。
	MaxBytes int `json:"max_bytes"`
}

// Batcher 按条数与字节预算把连续报告切成不重叠的批。
type Batcher struct {
	maxBytes int
}

// New 创建分块 Batcher。
func New(opts *Options) *Batcher {
	b := &Batcher{}
	if opts != nil && opts.MaxBytes > 0 {
		b.maxBytes = opts.MaxBytes
	}
	return b
}

var _ contract.Batcher = (*Batcher)(nil)

// Make 在同一 FileID 内按 Index 连续切片：
// - 每批不超过 limit.MaxReports 条；
// - 设置 MaxBytes 时，批内 Raw 字节累计不超过上限（至少一条）；
// - 批共享输入切片的底层数组，不复制报告。
func (b *Batcher) Make(ctx context.Context, reports []contract.Report, limit contract.BatchLimit) ([]contract.Batch, error) {
	if limit.MaxReports <= 0 {
		return nil, fmt.Errorf("batcher: max reports must be > 0: %w", contract.ErrInvalidInput)
	}
	n := len(reports)
	if n == 0 {
		return nil, nil
	}
	fid := reports[0].FileID
	if reports[0].Index != 0 {
		return nil, fmt.Errorf("batcher: first index must be 0, got %d: %w", reports[0].Index, contract.ErrInvalidInput)
	}
	for i := 1; i < n; i++ {
		if reports[i].FileID != fid {
			return nil, fmt.Errorf("batcher: reports must share one FileID: %w", contract.ErrInvalidInput)
		}
		if reports[i].Index != reports[i-1].Index+1 {
			return nil, fmt.Errorf("batcher: index must be contiguous at %d: %w", i, contract.ErrInvalidInput)
		}
	}

	batches := make([]contract.Batch, 0, (n+limit.MaxReports-1)/limit.MaxReports)
	var batchIdx int64
	for l := 0; l < n; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := l + 1
		size := len(reports[l].Raw)
		for r < n && r-l < limit.MaxReports {
			next := len(reports[r].Raw)
			if b.maxBytes > 0 && size+next > b.maxBytes {
				break
			}
			size += next
			r++
		}
		batches = append(batches, contract.Batch{FileID: fid, BatchIndex: batchIdx, Reports: reports[l:r:r]})
		batchIdx++
		l = r
	}
	return batches, nil
}

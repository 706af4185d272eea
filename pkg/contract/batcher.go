package contract

import "context"

// BatchLimit: 切批上限。
type BatchLimit struct {
	// MaxReports: 每批最多报告数，必须为正数。
	MaxReports int
}

// Batcher: 将同一 FileID 的有序 Report 切分为若干 Batch。
// 约束：
//  1. 仅在同一 FileID 内成批；
//  2. 不重排、不丢失、不重叠；
//  3. BatchIndex 在同一 FileID 内 0..n-1 单调递增。
type Batcher interface {
	Make(ctx context.Context, reports []Report, limit BatchLimit) ([]Batch, error)
}

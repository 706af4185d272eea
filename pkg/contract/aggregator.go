package contract

import "context"

// Aggregator: 将同一文件一批判定结果折叠为计数。
// 约束：
//  1. 仅接受同一 FileID 的判定；
//  2. 判定按 Index 严格升序；
//  3. 不引入跨调用状态；
//  4. 序列违规返回 ErrSeqInvalid。
type Aggregator interface {
	Aggregate(ctx context.Context, fileID FileID, verdicts []Verdict) (Tally, error)
}

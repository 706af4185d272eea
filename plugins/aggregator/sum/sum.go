package sum

import (
	"context"

	"rptsafe/pkg/contract"
)

type aggregator struct{}

// New 创建求和聚合器。无选项；options 由注册表严格校验为空对象。
func New() contract.Aggregator { return aggregator{} }

var _ contract.Aggregator = aggregator{}

// Aggregate 按 Index 严格升序累计判定；
// 发现 FileID 混入或逆序/重复即返回 ErrSeqInvalid。
func (aggregator) Aggregate(ctx context.Context, fileID contract.FileID, verdicts []contract.Verdict) (contract.Tally, error) {
	if err := ctx.Err(); err != nil {
		return contract.Tally{}, err
	}
	var t contract.Tally
	for i, v := range verdicts {
		if v.FileID != fileID {
			return contract.Tally{}, contract.ErrSeqInvalid
		}
		if i > 0 && v.Index <= verdicts[i-1].Index {
			return contract.Tally{}, contract.ErrSeqInvalid
		}
		t.Reports++
		if v.Safe {
			t.Safe++
		}
	}
	return t, nil
}

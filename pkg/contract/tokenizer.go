package contract

import (
	"context"
	"io"
)

// Tokenizer: 将单文件字节流拆为有序 Report 序列，并分配 Index（0..n-1）。
// 约束：
// 1) 不跨文件合并；
// 2) Index 严格递增且稳定；
// 3) 畸形输入（非数字、空报告、长度不足、位数超限）在此边界以 *InputError 失败，
//    不得交由分类器产生错误判定；
// 4) 无内部并发。
type Tokenizer interface {
	Tokenize(ctx context.Context, fileID FileID, r io.Reader) ([]Report, error)
}

package contract

import (
	"iter"

	"rptsafe/pkg/safety"
)

// Classifier: 对单份报告给出安全判定。
// 纯计算：无 I/O、无错误分支、不跨调用保留状态，可被多个 worker 并发调用。
type Classifier interface {
	Classify(levels iter.Seq[int64]) safety.Verdict
}

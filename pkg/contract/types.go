package contract

import "iter"

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Index: 单文件内稳定递增的报告索引（0..n-1）。
type Index int64

// Report: 一行即一份报告。
// 约束：
// - FileID 一致；
// - Index 自 0 严格递增；
// - Line 为源文件中的 1 基行号（跳过空行时与 Index 不同）；
// - Raw 为已校验的行字节（不含换行），数值由 Levels 惰性解码，不整体物化。
type Report struct {
	Index  Index
	FileID FileID
	Line   int
	Raw    []byte
	// Levels: 前向、一次性可重放的数值序列。由 Tokenizer 绑定解码器。
	Levels iter.Seq[int64]
}

// Batch: 同一文件内连续的报告切片，供 worker 并行判定。
type Batch struct {
	FileID FileID
	// BatchIndex: 同一 FileID 内的批序（0..n-1，严格递增），用于顺序门闩。
	BatchIndex int64
	Reports    []Report
}

// Verdict: 单份报告的判定结果（用于汇总与 JSONL 边车）。
type Verdict struct {
	FileID     FileID `json:"file_id"`
	Index      Index  `json:"index"`
	Line       int    `json:"line"`
	Levels     int    `json:"levels"`
	Safe       bool   `json:"safe"`
	Increasing string `json:"increasing"`
	Decreasing string `json:"decreasing"`
}

// Tally: 计数结果；加法满足交换律与结合律，合并顺序不影响结果。
type Tally struct {
	Reports int `json:"reports"`
	Safe    int `json:"safe"`
}

// Add 合并两份计数。
func (t Tally) Add(o Tally) Tally {
	return Tally{Reports: t.Reports + o.Reports, Safe: t.Safe + o.Safe}
}

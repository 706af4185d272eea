package contract

import (
	"context"
	"io"
)

// ArtifactID: 持久化工件标识，与 FileID 复用同一表示。
type ArtifactID = FileID

// SummaryArtifact: 整次运行的汇总工件名。
const SummaryArtifact ArtifactID = "summary.json"

// VerdictsArtifact 返回某输入文件的逐报告判定边车名。
func VerdictsArtifact(fileID FileID) ArtifactID {
	return ArtifactID(string(fileID) + ".verdicts.jsonl")
}

// Writer: 将结果以流式方式持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 流式写入，按字节透传，不读取/修改业务内容；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

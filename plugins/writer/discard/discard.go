// Package discard 提供丢弃全部工件的 Writer，用于只需要计数的运行。
package discard

import (
	"context"
	"io"

	"rptsafe/pkg/contract"
)

type Writer struct{}

var _ contract.Writer = Writer{}

// Write 读空 r 后丢弃；ctx 取消时尽快返回。
func (Writer) Write(ctx context.Context, _ contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.Copy(io.Discard, r)
	return err
}

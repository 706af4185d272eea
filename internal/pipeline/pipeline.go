package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"rptsafe/internal/diag"
	"rptsafe/pkg/contract"
	"rptsafe/pkg/safety"
)

// - 单点并发：仅此层管理并发与背压；原子组件均为同步、无内部并发。
// - 顺序门闩：同一 FileID 的批按 BatchIndex 严格递增提交；乱序结果暂存，连续冲刷。
// - 首错取消：任一阶段出现错误，记录首错并 cancel 整体；排空后返回该错误。
// - 计数可加：每批独立求和，worker 完成顺序不影响总数。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader     contract.Reader
	Tokenizer  contract.Tokenizer
	Batcher    contract.Batcher
	Classifier contract.Classifier
	Aggregator contract.Aggregator
	Writer     contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs      []string
	Concurrency int
	// BatchSize: 每批最多报告数；<=0 时取 256。
	BatchSize int
	// Budget: 仅回显到汇总中；分类器在装配期已绑定预算。
	Budget safety.Budget
	// Verdicts: 为每个输入写出 <file>.verdicts.jsonl。
	Verdicts bool
	// Summary: 运行结束写出 summary.json。
	Summary bool
}

const defaultBatchSize = 256

// FileSummary 单个输入文件的计数。
type FileSummary struct {
	FileID  contract.FileID `json:"file_id"`
	Reports int             `json:"reports"`
	Safe    int             `json:"safe"`
}

// Summary 整次运行的计数。
type Summary struct {
	Budget  int           `json:"budget"`
	Files   []FileSummary `json:"files"`
	Reports int           `json:"reports"`
	Safe    int           `json:"safe"`
}

// Run 执行完整流水线：Reader → Tokenizer → Batcher → Classifier(workers) → 门闩 → Aggregator → Writer。
// 返回的 Summary 在出错时包含已完成文件的计数。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Summary, error) {
	sum := Summary{Budget: int(set.Budget), Files: []FileSummary{}}
	if err := sanity(comp, set); err != nil {
		return sum, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = diag.NewNop()
	}
	if set.Concurrency < 1 {
		set.Concurrency = 1
	}
	if set.BatchSize <= 0 {
		set.BatchSize = defaultBatchSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rtimer := logger.Start("reader", "iterate")
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		ttimer := logger.StartWith("tokenizer", "tokenize", string(fid), "")
		reports, err := comp.Tokenizer.Tokenize(ctx, fid, rc)
		if err != nil {
			kv := map[string]string{"err": err.Error()}
			var ie *contract.InputError
			if errors.As(err, &ie) {
				kv["line"] = strconv.Itoa(ie.Line)
			}
			fail(logger, "tokenizer", "tokenize failed", ttimer, string(fid), "", kv, err)
			return fmt.Errorf("tokenizer tokenize: %w", err)
		}
		ttimer.Finish("tokenize", int64(len(reports)))
		diag.IncOp("tokenizer", "finish", "success")

		tally, err := perFile(ctx, comp, set, logger, fid, reports)
		if err != nil {
			return fmt.Errorf("perFile: %w", err)
		}
		sum.Files = append(sum.Files, FileSummary{FileID: fid, Reports: tally.Reports, Safe: tally.Safe})
		sum.Reports += tally.Reports
		sum.Safe += tally.Safe
		return nil
	})
	if err != nil {
		fail(logger, "reader", "iterate failed", rtimer, "", "", nil, err)
		return sum, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(len(sum.Files)))
	diag.IncOp("reader", "finish", "success")

	if set.Summary {
		wtimer := logger.StartWith("writer", "write", string(contract.SummaryArtifact), "")
		b, _ := json.MarshalIndent(sum, "", "  ")
		if err := comp.Writer.Write(ctx, contract.SummaryArtifact, bytes.NewReader(append(b, '\n'))); err != nil {
			fail(logger, "writer", "write failed", wtimer, string(contract.SummaryArtifact), "", nil, err)
			return sum, fmt.Errorf("writer write(summary): %w", err)
		}
		wtimer.Finish("write", 1)
		diag.IncOp("writer", "finish", "success")
	}
	return sum, nil
}

type result struct {
	idx      int64
	verdicts []contract.Verdict
}

// perFile 对单个文件切批、并发判定，并按批序聚合与写出边车。
func perFile(ctx context.Context, comp Components, set Settings, logger *diag.Logger, fid contract.FileID, reports []contract.Report) (contract.Tally, error) {
	var total contract.Tally
	btimer := logger.StartWith("batcher", "make", string(fid), "")
	batches, err := comp.Batcher.Make(ctx, reports, contract.BatchLimit{MaxReports: set.BatchSize})
	if err != nil {
		fail(logger, "batcher", "make failed", btimer, string(fid), "", nil, err)
		return total, fmt.Errorf("batcher make: %w", err)
	}
	btimer.Finish("make", int64(len(batches)))
	diag.IncOp("batcher", "finish", "success")

	// 终端提示：文件开始（即使 total=0 也要发）
	term := diag.GetTerminal()
	term.FileStart(string(fid), len(batches))
	fileStart := time.Now()
	ok := false
	defer func() { term.FileFinish(ok, total.Reports, total.Safe, time.Since(fileStart)) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 边车：单次 Writer.Write，经管道流式写出
	var enc *json.Encoder
	var pw *io.PipeWriter
	wdone := make(chan error, 1)
	if set.Verdicts {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		go func() {
			err := comp.Writer.Write(ctx, contract.VerdictsArtifact(fid), pr)
			// 写者提前失败时解除编码端阻塞
			_ = pr.CloseWithError(err)
			wdone <- err
		}()
		enc = json.NewEncoder(pw)
		enc.SetEscapeHTML(false)
	}

	// 有界通道：2×并发度，形成自然背压
	outCh := make(chan result, set.Concurrency*2)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)
	waitErr := make(chan error, 1)
	go func() {
		for _, b := range batches {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error { return classifyBatch(gctx, comp.Classifier, logger, b, outCh) })
		}
		waitErr <- g.Wait()
		close(outCh)
	}()

	expect := int64(0)
	var lastIdx contract.Index = -1
	buf := make(map[int64][]contract.Verdict)
	var firstErr error
	done := 0
	for r := range outCh {
		done++
		if firstErr != nil {
			continue
		}
		buf[r.idx] = r.verdicts
		for {
			vs, ready := buf[expect]
			if !ready {
				break
			}
			delete(buf, expect)
			if err := gate(ctx, comp.Aggregator, logger, fid, expect, lastIdx, vs, enc, &total); err != nil {
				firstErr = err
				cancel()
				break
			}
			if len(vs) > 0 {
				lastIdx = vs[len(vs)-1].Index
			}
			expect++
		}
		term.FileProgress(done, len(batches), total.Safe)
	}
	if werr := <-waitErr; werr != nil && firstErr == nil {
		firstErr = werr
	}

	if pw != nil {
		if firstErr != nil {
			_ = pw.CloseWithError(firstErr)
		} else {
			_ = pw.Close()
		}
		if werr := <-wdone; werr != nil && firstErr == nil {
			fail(logger, "writer", "write failed", nil, string(fid), "", nil, werr)
			return total, fmt.Errorf("writer write(verdicts): %w", werr)
		}
	}
	if firstErr != nil {
		return total, fmt.Errorf("worker first error: %w", firstErr)
	}
	diag.AddReports(total.Safe, total.Reports-total.Safe)
	ok = true
	return total, nil
}

// classifyBatch 逐份判定；只在报告之间检查取消，不打断单份报告的判定。
func classifyBatch(ctx context.Context, c contract.Classifier, logger *diag.Logger, b contract.Batch, out chan<- result) error {
	bid := strconv.FormatInt(b.BatchIndex, 10)
	timer := logger.StartWithKV("classifier", "classify", string(b.FileID), bid, map[string]string{
		"reports": strconv.Itoa(len(b.Reports)),
	})
	vs := make([]contract.Verdict, len(b.Reports))
	safe := 0
	for i, r := range b.Reports {
		if err := ctx.Err(); err != nil {
			return err
		}
		v := c.Classify(r.Levels)
		vs[i] = contract.Verdict{
			FileID:     r.FileID,
			Index:      r.Index,
			Line:       r.Line,
			Levels:     v.Levels,
			Safe:       v.Safe,
			Increasing: v.Increasing,
			Decreasing: v.Decreasing,
		}
		if v.Safe {
			safe++
		}
	}
	timer.Finish("classify", int64(safe))
	diag.IncOp("classifier", "finish", "success")
	select {
	case out <- result{idx: b.BatchIndex, verdicts: vs}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// gate 提交一批就绪判定：跨批顺序校验、聚合、写边车。
func gate(ctx context.Context, agg contract.Aggregator, logger *diag.Logger, fid contract.FileID, batch int64, lastIdx contract.Index, vs []contract.Verdict, enc *json.Encoder, total *contract.Tally) error {
	bid := strconv.FormatInt(batch, 10)
	if len(vs) > 0 && vs[0].Index <= lastIdx {
		fail(logger, "aggregator", "batch out of order", nil, string(fid), bid, nil, contract.ErrSeqInvalid)
		return contract.ErrSeqInvalid
	}
	atimer := logger.StartWith("aggregator", "aggregate", string(fid), bid)
	t, err := agg.Aggregate(ctx, fid, vs)
	if err != nil {
		fail(logger, "aggregator", "aggregate failed", atimer, string(fid), bid, nil, err)
		return err
	}
	atimer.Finish("aggregate", int64(t.Safe))
	diag.IncOp("aggregator", "finish", "success")
	*total = total.Add(t)
	if enc == nil {
		return nil
	}
	for i := range vs {
		if err := enc.Encode(&vs[i]); err != nil {
			fail(logger, "writer", "encode verdict failed", nil, string(fid), bid, nil, err)
			return err
		}
	}
	return nil
}

// fail 记录错误事件与指标。
func fail(logger *diag.Logger, comp, msg string, timer *diag.Timer, fileID, batch string, kv map[string]string, err error) {
	code := diag.Classify(err)
	logger.ErrorWithKV(comp, string(code), msg, timer.Since(), fileID, batch, kv)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Tokenizer == nil || c.Batcher == nil || c.Classifier == nil || c.Aggregator == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}

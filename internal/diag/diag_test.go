package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zapcore"

	"rptsafe/pkg/contract"
)

// 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30, 0)
	if _, err := w.Write([]byte("first line that is very long\n")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	defer w.Close()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		switch {
		case e.Name() == currentLogName:
			hasCurrent = true
		case strings.HasPrefix(e.Name(), "rptsafe-") && strings.HasSuffix(e.Name(), ".log"):
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
	b, _ := os.ReadFile(filepath.Join(dir, currentLogName))
	if string(b) != "second\n" {
		t.Fatalf("current 内容错误: %q", b)
	}
}

// 单条超过上限时不轮转空文件
func TestRotatingFileOversizedFirstWrite(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 4, 0)
	defer w.Close()
	if _, err := w.Write([]byte("0123456789\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ents, _ := os.ReadDir(dir)
	if len(ents) != 1 {
		t.Fatalf("expect only current, got %d files", len(ents))
	}
}

// 只保留最新的 keep 个轮转文件
func TestRotatingFileKeep(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 8, 2)
	defer w.Close()
	for i := 0; i < 6; i++ {
		if _, err := w.Write([]byte("0123456789\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	rotated := 0
	for _, e := range ents {
		if e.Name() != currentLogName {
			rotated++
		}
	}
	// 6 次写入触发 5 次轮转，保留 2 个
	if rotated != 2 {
		t.Fatalf("rotated files = %d, want 2", rotated)
	}
}

// 未打开时 Sync/Close 为 no-op；默认上限
func TestRotatingFileDefaults(t *testing.T) {
	w := NewRotatingFile(t.TempDir(), 0, 0)
	if w.maxBytes != 10*1024*1024 {
		t.Fatalf("default maxBytes: %d", w.maxBytes)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// 指标计数
func TestMetrics(t *testing.T) {
	before := testutil.ToFloat64(opTotal.WithLabelValues("reader", "finish", "success"))
	IncOp("reader", "finish", "success")
	if got := testutil.ToFloat64(opTotal.WithLabelValues("reader", "finish", "success")); got != before+1 {
		t.Fatalf("op_total: %v", got)
	}
	IncError("tokenizer", string(CodeMalformed))
	ObserveDuration("classify", "finish", 3)
	safeBefore := testutil.ToFloat64(reportsTotal.WithLabelValues("safe"))
	AddReports(4, 2)
	if got := testutil.ToFloat64(reportsTotal.WithLabelValues("safe")); got != safeBefore+4 {
		t.Fatalf("reports_total: %v", got)
	}
	if n, err := testutil.GatherAndCount(Gatherer(), "op_total", "error_total", "reports_total"); err != nil || n == 0 {
		t.Fatalf("gather: %d %v", n, err)
	}

	p := filepath.Join(t.TempDir(), "metrics.prom")
	if err := WriteMetrics(p); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	b, _ := os.ReadFile(p)
	for _, name := range []string{"op_total", "error_total", "op_duration_ms", "reports_total"} {
		if !strings.Contains(string(b), name) {
			t.Fatalf("metrics file missing %s", name)
		}
	}
}

// 错误分类
func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), CodeCancel},
		{&contract.InputError{FileID: "f", Line: 1, Reason: "empty report"}, CodeMalformed},
		{contract.ErrSeqInvalid, CodeInvariant},
		{contract.ErrInvalidInput, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{fs.ErrNotExist, CodeIO},
		{errors.New("other"), CodeUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// Logger 事件字段
func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(zapcore.AddSync(&buf), "corr", "debug")
	timer := l.StartWith("tokenizer", "tokenize", "in.txt", "")
	timer.Finish("tokenized", 6)
	l.StartWithKV("classify", "batch", "in.txt", "3", map[string]string{"reports": "64"})
	start := time.Now().Add(-5 * time.Millisecond)
	l.ErrorWithKV("tokenizer", string(CodeMalformed), "bad line", &start, "in.txt", "", map[string]string{"line": "2"})
	l.DebugStart("batcher", "make", "in.txt", "", nil)
	l.Warn("watch", string(CodeIO), "round failed", nil)
	l.Error("run", "unknown", "x", nil)

	evs := decodeLines(t, buf.Bytes())
	if len(evs) != 7 {
		t.Fatalf("expect 7 events, got %d", len(evs))
	}
	if evs[0]["corr_id"] != "corr" || evs[0]["stage"] != "start" || evs[0]["file_id"] != "in.txt" {
		t.Fatalf("start event: %v", evs[0])
	}
	if _, ok := evs[0]["batch_id"]; ok {
		t.Fatalf("空 batch_id 不应输出: %v", evs[0])
	}
	if evs[1]["stage"] != "finish" || evs[1]["count"] != float64(6) {
		t.Fatalf("finish event: %v", evs[1])
	}
	if kv, ok := evs[2]["kv"].(map[string]any); !ok || kv["reports"] != "64" {
		t.Fatalf("kv event: %v", evs[2])
	}
	if evs[3]["level"] != "error" || evs[3]["code"] != "malformed" || evs[3]["dur_ms"].(float64) < 5 {
		t.Fatalf("error event: %v", evs[3])
	}
	if evs[4]["level"] != "debug" {
		t.Fatalf("debug event: %v", evs[4])
	}
}

// 级别过滤
func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(zapcore.AddSync(&buf), "c", "warn")
	l.DebugStart("comp", "msg", "f", "b", nil)
	l.Start("comp", "msg").Finish("ok", 1)
	if buf.Len() != 0 {
		t.Fatalf("info/debug 应被过滤: %s", buf.String())
	}
	l.Error("comp", "code", "msg", nil)
	if buf.Len() == 0 {
		t.Fatalf("error 应输出")
	}
	if ParseLevel(" DEBUG ") != zapcore.DebugLevel || ParseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("ParseLevel")
	}
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
	if tnil.Since() != nil {
		t.Fatalf("nil timer Since")
	}
}

// 文件 sink
func TestLoggerWithSink(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger("corr", "info", dir)
	l.Start("comp", "msg").Finish("ok", 1)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, currentLogName))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if len(decodeLines(t, b)) != 2 {
		t.Fatalf("expect 2 lines: %s", b)
	}
	NewNop().Start("comp", "msg").Finish("ok", 0)
}

// 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(4, "automaton", 1)
	term.FileStart("in/levels.txt", 12)
	term.FileProgress(6, 12, 3) // 非 TTY：不输出进度
	term.FileFinish(true, 1000, 612, 5100*time.Millisecond)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] 并发=4 | 分类器=automaton | 预算=1",
		"[file] levels.txt | 批次=12",
		"[done] levels.txt | 报告 1000 | 安全 612 | 用时 5.1s",
		"[ok] 全部完成 | 文件 1 | 安全 612 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(2, "naive", 0)
	term.FileStart("/a/b/c/longfilename.txt", 3)

	term.FileProgress(1, 3, 0)
	first := sb.String()
	if !strings.Contains(first, "\r[") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	term.FileProgress(2, 3, 1)
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	time.Sleep(120 * time.Millisecond)
	term.FileProgress(2, 3, 1)
	if len(sb.String()) <= len(first) {
		t.Fatalf("third progress should append output")
	}
	term.FileFinish(false, 3, 1, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	if idx < 0 {
		t.Fatalf("finish should include fail line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 || !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg)
	}
}

type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

// 写失败降级为禁用态
func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.RunStart(1, "x", 1)
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.FileStart("a", 0)
	term.FileProgress(0, 0, 0)
	term.FileFinish(true, 0, 0, 0)
	term.RunFinish(true, 0)

	term = NewTerminal(&flakyWriter{fail: true}, true)
	term.isTTY = true
	term.FileStart("f.txt", 2)
	term.FileProgress(1, 2, 0)
	if term.enabled {
		t.Fatalf("terminal should be disabled after inline error")
	}
}

// nil 接收者与全局指针
func TestTerminalNilAndGlobal(t *testing.T) {
	var tn *Terminal
	tn.RunStart(1, "x", 0)
	tn.FileStart("a", 1)
	tn.FileProgress(0, 0, 0)
	tn.FileFinish(true, 0, 0, 0)
	tn.RunFinish(true, 0)

	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
}

// CI 环境强制非 TTY
func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	if NewTerminal(os.Stderr, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}

// 工具函数
func TestHelpers(t *testing.T) {
	if got := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.txt", 10); visLen(got) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("shortenBase: %q", got)
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase max<=0 should be empty")
	}
	if clean("a\nb\rc") != "a b c" {
		t.Fatalf("clean failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur")
	}
}

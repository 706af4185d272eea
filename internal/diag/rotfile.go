package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotatingFile 将日志写入指定目录，并按文件大小轮转；实现 zapcore.WriteSyncer。
// - 当前文件固定名：rptsafe-current.log
// - 轮转：当 size+len(p) 超过 maxBytes 时，将当前文件重命名为 rptsafe-<UTC 时间戳>.log，重新创建 current。
// - 保留：keep>0 时只保留最新的 keep 个轮转文件。
type RotatingFile struct {
	dir      string
	maxBytes int64
	keep     int
	mu       sync.Mutex
	f        *os.File
	curSize  int64
}

const (
	currentLogName = "rptsafe-current.log"
	rotatedPrefix  = "rptsafe-"
	rotatedSuffix  = ".log"
)

// NewRotatingFile: maxBytes<=0 取 10MiB；keep<=0 不清理历史文件。
func NewRotatingFile(dir string, maxBytes int64, keep int) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes, keep: keep}
}

// Write 写入一条已编码日志（zap 保证每次调用为完整一行）。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	if w.curSize > 0 && w.curSize+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.curSize += int64(n)
	return n, err
}

// Sync 刷盘；尚未打开文件时为 no-op。
func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	oldPath := w.f.Name()
	_ = w.f.Close()
	w.f = nil
	// 纳秒时间戳，避免同秒冲突覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(filepath.Dir(oldPath), rotatedPrefix+ts+rotatedSuffix)
	if err := os.Rename(oldPath, rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	w.prune()
	return w.ensureOpen()
}

// prune 删除超出保留数的最旧轮转文件；失败忽略（下次轮转重试）。
// 时间戳定长，按名字排序即按时间排序。
func (w *RotatingFile) prune() {
	if w.keep <= 0 {
		return
	}
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var rotated []string
	for _, e := range ents {
		n := e.Name()
		if n == currentLogName || e.IsDir() {
			continue
		}
		if strings.HasPrefix(n, rotatedPrefix) && strings.HasSuffix(n, rotatedSuffix) {
			rotated = append(rotated, n)
		}
	}
	if len(rotated) <= w.keep {
		return
	}
	sort.Strings(rotated)
	for _, n := range rotated[:len(rotated)-w.keep] {
		_ = os.Remove(filepath.Join(w.dir, n))
	}
}

// Close 关闭当前打开的文件句柄
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

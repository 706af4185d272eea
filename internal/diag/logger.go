package diag

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化事件日志：每个组件阶段记录 start/finish/error 三类事件，
// 由 zap 编码为单行 JSON，写入轮转文件。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 以配置的 level 初始化，日志写入 dir（空则 "logs"），10MiB 轮转，保留最近 5 个历史文件。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(dir, 10*1024*1024, 5)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入任意 WriteSyncer（测试或 stderr）。
func NewLoggerTo(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, ParseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// NewNop 丢弃全部事件。
func NewNop() *Logger { return &Logger{z: zap.NewNop()} }

// ParseLevel 解析 debug|info|warn|error，未知值回落为 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// scope 组装公共字段；空值不输出。
func scope(comp, stage, fileID, batch string, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 5)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if fileID != "" {
		fs = append(fs, zap.String("file_id", fileID))
	}
	if batch != "" {
		fs = append(fs, zap.String("batch_id", batch))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

func since(t *time.Time) zap.Field {
	var d int64
	if t != nil {
		d = time.Since(*t).Milliseconds()
	}
	return zap.Int64("dur_ms", d)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", "", nil)
}

// StartWith 记录带 file_id/batch_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID, batch string) *Timer {
	return l.StartWithKV(comp, msg, fileID, batch, nil)
}

// StartWithKV 记录带 file_id/batch_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, batch string, kv map[string]string) *Timer {
	l.z.Info(msg, scope(comp, "start", fileID, batch, kv)...)
	return &Timer{l: l, comp: comp, fileID: fileID, batch: batch, t0: time.Now()}
}

// DebugStart 输出调试级别的 start 事件，不计时。
func (l *Logger) DebugStart(comp, msg, fileID, batch string, kv map[string]string) {
	l.z.Debug(msg, scope(comp, "start", fileID, batch, kv)...)
}

// Warn 记录可恢复的异常（例如 watch 模式下单轮失败）。
func (l *Logger) Warn(comp, code, msg string, kv map[string]string) {
	l.z.Warn(msg, append(scope(comp, "warn", "", "", kv), zap.String("code", code))...)
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWithKV 支持附带键值对（例如行号、原因）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, batch string, kv map[string]string) {
	fs := append(scope(comp, "error", fileID, batch, kv), zap.String("code", code), since(durSince))
	l.z.Error(msg, fs...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	batch  string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	fs := append(scope(t.comp, "finish", t.fileID, t.batch, nil), since(&t.t0), zap.Int64("count", count))
	t.l.z.Info(msg, fs...)
}

// Since 返回计时起点，供 Error 系列计算耗时。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

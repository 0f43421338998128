package diag

import (
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化事件日志器：单行 JSON（zap 编码），默认写入 logs/doctrans-current.txt，10m 轮转。
// 事件字段：comp/stage/code/dur_ms/count/source/lang/kv。
// 所有方法对 nil 接收者安全。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 通过配置的 level 初始化，并将日志写入默认目录 logs，10m 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入任意 writer（测试或 stderr）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcISO8601,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(parseLevel(level)))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

func utcISO8601(t time.Time, e zapcore.PrimitiveArrayEncoder) {
	e.AppendString(t.UTC().Format(time.RFC3339))
}

func parseLevel(s string) zapcore.Level {
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

// Close 刷新并关闭底层文件。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func fields(comp, stage, code, source, lang string, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 6)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if code != "" {
		fs = append(fs, zap.String("code", code))
	}
	if source != "" {
		fs = append(fs, zap.String("source", source))
	}
	if lang != "" {
		fs = append(fs, zap.String("lang", lang))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Object("kv", kvObject(kv)))
	}
	return fs
}

// kvObject 以稳定键序输出。
type kvObject map[string]string

func (m kvObject) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, m[k])
	}
	return nil
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", "", nil)
}

// StartWith 记录带 source/lang 的 start。
func (l *Logger) StartWith(comp, msg, source, lang string) *Timer {
	return l.StartWithKV(comp, msg, source, lang, nil)
}

// StartWithKV 记录带 source/lang 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, source, lang string, kv map[string]string) *Timer {
	if l == nil || l.z == nil {
		return nil
	}
	l.z.Info(msg, fields(comp, "start", "", source, lang, kv)...)
	return &Timer{l: l, comp: comp, source: source, lang: lang, t0: time.Now()}
}

// Info 记录一次性的 info 事件。
func (l *Logger) Info(comp, msg string, kv map[string]string) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(msg, fields(comp, "info", "", "", "", kv)...)
}

// WarnWith 记录可降级的异常（不影响运行结果）。
func (l *Logger) WarnWith(comp, code, msg, source, lang string, kv map[string]string) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Warn(msg, fields(comp, "warn", code, source, lang, kv)...)
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 source/lang。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, source, lang string) {
	l.ErrorWithKV(comp, code, msg, durSince, source, lang, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, source, lang string, kv map[string]string) {
	if l == nil || l.z == nil {
		return
	}
	fs := fields(comp, "error", code, source, lang, kv)
	if durSince != nil {
		fs = append(fs, zap.Int64("dur_ms", time.Since(*durSince).Milliseconds()))
	}
	l.z.Error(msg, fs...)
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, source, lang string, kv map[string]string) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Debug(msg, fields(comp, "start", "", source, lang, kv)...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	source string
	lang   string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil || t.l.z == nil {
		return
	}
	dur := time.Since(t.t0)
	fs := fields(t.comp, "finish", "", t.source, t.lang, nil)
	fs = append(fs, zap.Int64("dur_ms", dur.Milliseconds()))
	if count != 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	t.l.z.Info(msg, fs...)
	ObserveDuration(t.comp, "finish", dur.Milliseconds())
}

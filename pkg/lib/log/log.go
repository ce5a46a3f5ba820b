// Package log 提供 chatcore 统一日志接口
//
// 基于标准库 log/slog 封装。各组件通过 Logger("core/eventbus") 获取带组件名的
// LazyLogger，每次输出都使用当前的 slog.Default()，支持运行时切换输出目标。
//
// 环境变量:
//
//	# 默认 info，eventbus 组件 debug
//	CHATCORE_LOG_LEVEL=core/eventbus=debug,info
//
//	# JSON 格式输出
//	CHATCORE_LOG_FORMAT=json
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	levelsMu sync.RWMutex
	levels   = ConfigFromEnv()
)

// Setup 按配置重建默认 logger
//
// w 为 nil 时输出到 os.Stderr。
func Setup(cfg Config, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	levelsMu.Lock()
	levels = cfg
	levelsMu.Unlock()

	// 组件级别由 LazyLogger 过滤，handler 放行所有级别
	opts := &slog.HandlerOptions{Level: cfg.minLevel(), AddSource: cfg.AddSource}
	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// SetOutput 设置日志输出目标，保留当前级别配置
func SetOutput(w io.Writer) {
	levelsMu.RLock()
	cfg := levels
	levelsMu.RUnlock()
	Setup(cfg, w)
}

// SetLevel 设置默认日志级别
func SetLevel(level slog.Level) {
	levelsMu.Lock()
	levels.DefaultLevel = level
	levelsMu.Unlock()
}

// Discard 丢弃所有日志输出，测试中使用
func Discard() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func enabled(component string, level slog.Level) bool {
	levelsMu.RLock()
	defer levelsMu.RUnlock()
	return level >= levels.LevelFor(component)
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 使用方式：
//
//	var logger = log.Logger("core/lifecycle")
//	logger.Info("服务已就绪", "service", id)
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !enabled(l.component, level) {
		return
	}
	slog.Default().With("component", l.component).Log(ctx, level, msg, args...)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), LevelError, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelWarn, msg, args...)
}

// With 返回附加属性后的 slog.Logger
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return slog.Default().With("component", l.component).With(args...)
}

// Enabled 组件是否输出该级别
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return enabled(l.component, level)
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, n int) string {
	if n <= 0 || len(id) <= n {
		return id
	}
	return id[:n]
}

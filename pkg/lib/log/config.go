package log

import (
	"log/slog"
	"os"
	"strings"
)

// 环境变量名
const (
	EnvLogLevel     = "CHATCORE_LOG_LEVEL"
	EnvLogFormat    = "CHATCORE_LOG_FORMAT"
	EnvLogAddSource = "CHATCORE_LOG_ADD_SOURCE"
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// ComponentLevels 各组件的日志级别
	ComponentLevels map[string]slog.Level

	// Format 输出格式
	Format Format

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelFor 获取组件的日志级别
func (c Config) LevelFor(component string) slog.Level {
	if level, ok := c.ComponentLevels[component]; ok {
		return level
	}
	return c.DefaultLevel
}

func (c Config) minLevel() slog.Level {
	lowest := c.DefaultLevel
	for _, l := range c.ComponentLevels {
		if l < lowest {
			lowest = l
		}
	}
	return lowest
}

// ConfigFromEnv 从环境变量解析配置
func ConfigFromEnv() Config {
	cfg := Config{
		DefaultLevel:    slog.LevelInfo,
		ComponentLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}
	ParseLevelSpec(&cfg, os.Getenv(EnvLogLevel))
	cfg.Format = ParseFormat(os.Getenv(EnvLogFormat))
	if v := os.Getenv(EnvLogAddSource); v != "" {
		cfg.AddSource = v != "false" && v != "0"
	}
	return cfg
}

// ParseLevelSpec 解析级别配置字符串
//
// 格式: component=level,component=level,defaultLevel
// 示例: core/eventbus=debug,warn
func ParseLevelSpec(cfg *Config, spec string) {
	if cfg.ComponentLevels == nil {
		cfg.ComponentLevels = make(map[string]slog.Level)
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if component, name, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(name); ok {
				cfg.ComponentLevels[strings.TrimSpace(component)] = level
			}
			continue
		}
		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析级别名
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ParseFormat 解析格式名，未知时返回文本格式
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return FormatJSON
	}
	return FormatText
}

package config

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
//                              Lifecycle
// ============================================================================

// LifecycleConfig 生命周期默认值，服务未单独配置时使用
type LifecycleConfig struct {
	// StartTimeout 等待就绪的超时
	// 默认值: 30s
	StartTimeout Duration `json:"start_timeout" yaml:"start_timeout"`

	// ShutdownTimeout 单个服务的关闭超时
	// 默认值: 10s
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultLifecycleConfig 返回默认生命周期配置
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		StartTimeout:    Duration(30 * time.Second),
		ShutdownTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证生命周期配置
func (c LifecycleConfig) Validate() error {
	if c.StartTimeout <= 0 {
		return fmt.Errorf("%w: lifecycle start_timeout must be positive", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: lifecycle shutdown_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *LifecycleConfig) fix() {
	def := DefaultLifecycleConfig()
	if c.StartTimeout <= 0 {
		c.StartTimeout = def.StartTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
}

// ============================================================================
//                              Metadata
// ============================================================================

// MetadataConfig 元数据存储配置
type MetadataConfig struct {
	// Capacity 最多缓存的实体数
	// 默认值: 4096
	Capacity int `json:"capacity" yaml:"capacity"`

	// AbsentBackoff 拉取失败后的退避时间
	// 默认值: 30s
	AbsentBackoff Duration `json:"absent_backoff" yaml:"absent_backoff"`

	// FetchTimeout 单次拉取超时
	// 默认值: 10s
	FetchTimeout Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
}

// DefaultMetadataConfig 返回默认元数据配置
func DefaultMetadataConfig() MetadataConfig {
	return MetadataConfig{
		Capacity:      4096,
		AbsentBackoff: Duration(30 * time.Second),
		FetchTimeout:  Duration(10 * time.Second),
	}
}

// Validate 验证元数据配置
func (c MetadataConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: metadata capacity must be positive", ErrInvalidConfig)
	}
	if c.AbsentBackoff < 0 {
		return fmt.Errorf("%w: metadata absent_backoff must not be negative", ErrInvalidConfig)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: metadata fetch_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *MetadataConfig) fix() {
	def := DefaultMetadataConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.AbsentBackoff < 0 {
		c.AbsentBackoff = def.AbsentBackoff
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
}

// ============================================================================
//                              EventBus
// ============================================================================

// EventBusConfig 事件总线配置
type EventBusConfig struct {
	// ObservationBuffer 观测订阅的默认缓冲区
	// 默认值: 64
	ObservationBuffer int `json:"observation_buffer" yaml:"observation_buffer"`

	// WarnInterval 序号回退与处理器错误告警的最小间隔
	// 默认值: 1s
	WarnInterval Duration `json:"warn_interval" yaml:"warn_interval"`

	// WarnBurst 告警突发数
	// 默认值: 5
	WarnBurst int `json:"warn_burst" yaml:"warn_burst"`
}

// DefaultEventBusConfig 返回默认事件总线配置
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		ObservationBuffer: 64,
		WarnInterval:      Duration(time.Second),
		WarnBurst:         5,
	}
}

// Validate 验证事件总线配置
func (c EventBusConfig) Validate() error {
	if c.ObservationBuffer < 0 {
		return fmt.Errorf("%w: event_bus observation_buffer must not be negative", ErrInvalidConfig)
	}
	if c.WarnInterval <= 0 {
		return fmt.Errorf("%w: event_bus warn_interval must be positive", ErrInvalidConfig)
	}
	if c.WarnBurst <= 0 {
		return fmt.Errorf("%w: event_bus warn_burst must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *EventBusConfig) fix() {
	def := DefaultEventBusConfig()
	if c.ObservationBuffer < 0 {
		c.ObservationBuffer = def.ObservationBuffer
	}
	if c.WarnInterval <= 0 {
		c.WarnInterval = def.WarnInterval
	}
	if c.WarnBurst <= 0 {
		c.WarnBurst = def.WarnBurst
	}
}

// ============================================================================
//                              Log / Metrics
// ============================================================================

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug, info, warn, error
	// 默认值: info
	Level string `json:"level" yaml:"level"`

	// Format 输出格式: text, json
	// 默认值: text
	Format string `json:"format" yaml:"format"`

	// FxEvents 输出 fx 依赖注入事件
	// 默认值: false
	FxEvents bool `json:"fx_events" yaml:"fx_events"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Format)
	}
	return nil
}

func (c *LogConfig) fix() {
	def := DefaultLogConfig()
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "":
		c.Level = def.Level
	case "warning":
		c.Level = "warn"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = def.Format
	}
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否收集 prometheus 指标
	// 默认值: true
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}

// Package config 提供 chatcore 的用户配置
//
// 配置按组件组织，可以从 JSON 或 YAML 文件加载：
//
//	cfg, err := config.LoadFile("chatcore.yaml")
//	if err != nil {
//	    return err
//	}
//
// 未出现在文件中的字段保留 NewConfig 的默认值。
package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("invalid config")

// Config chatcore 的完整配置
type Config struct {
	// Services 服务列表，按列表顺序注册
	Services []ServiceConfig `json:"services" yaml:"services"`

	// Lifecycle 生命周期默认值
	Lifecycle LifecycleConfig `json:"lifecycle" yaml:"lifecycle"`

	// Metadata 元数据存储配置
	Metadata MetadataConfig `json:"metadata" yaml:"metadata"`

	// EventBus 事件总线配置
	EventBus EventBusConfig `json:"event_bus" yaml:"event_bus"`

	// Log 日志配置
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Lifecycle: DefaultLifecycleConfig(),
		Metadata:  DefaultMetadataConfig(),
		EventBus:  DefaultEventBusConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置
//
// 返回所有问题，而不是只返回第一个。
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	var errs error
	errs = multierr.Append(errs, c.Lifecycle.Validate())
	errs = multierr.Append(errs, c.Metadata.Validate())
	errs = multierr.Append(errs, c.EventBus.Validate())
	errs = multierr.Append(errs, c.Log.Validate())

	seen := make(map[string]bool, len(c.Services))
	for i := range c.Services {
		s := &c.Services[i]
		if err := s.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("services[%d]: %w", i, err))
			continue
		}
		if seen[s.ID] {
			errs = multierr.Append(errs, fmt.Errorf("%w: duplicate service id %q", ErrInvalidConfig, s.ID))
		}
		seen[s.ID] = true
	}
	for _, s := range c.Services {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				errs = multierr.Append(errs, fmt.Errorf("%w: service %q depends on unknown %q", ErrInvalidConfig, s.ID, dep))
			}
		}
	}
	return errs
}

// ValidateAndFix 修复常见问题后验证
//
// 可修复的问题：
//   - 超时、容量为 0 或负数 -> 使用默认值
//   - 日志级别大小写 -> 小写
//   - 重启倍数小于 1 -> 默认倍数
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	c.Lifecycle.fix()
	c.Metadata.fix()
	c.EventBus.fix()
	c.Log.fix()
	for i := range c.Services {
		c.Services[i].Restart.fix()
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// Service 按 ID 查找服务配置
func (c *Config) Service(id string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

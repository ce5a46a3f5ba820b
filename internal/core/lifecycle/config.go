package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("invalid lifecycle config")

// Config 生命周期管理器配置
type Config struct {
	// StartTimeout 服务未指定时使用的就绪超时
	StartTimeout time.Duration

	// ShutdownTimeout 服务未指定时使用的关闭超时
	ShutdownTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		StartTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.StartTimeout <= 0 {
		return fmt.Errorf("%w: StartTimeout must be positive", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: ShutdownTimeout must be positive", ErrInvalidConfig)
	}
	return nil
}

package metadata

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("invalid metadata config")

// Config 元数据存储配置
type Config struct {
	// Capacity 最大条目数，超出时淘汰最久未访问的条目
	Capacity int

	// AbsentBackoff 拉取失败后的退避时间，期间直接返回不可用
	AbsentBackoff time.Duration

	// FetchTimeout 单次拉取超时
	FetchTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Capacity:      4096,
		AbsentBackoff: 30 * time.Second,
		FetchTimeout:  10 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: Capacity must be positive", ErrInvalidConfig)
	}
	if c.AbsentBackoff < 0 {
		return fmt.Errorf("%w: AbsentBackoff must not be negative", ErrInvalidConfig)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: FetchTimeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Clone 克隆配置
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

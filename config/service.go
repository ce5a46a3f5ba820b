package config

import (
	"fmt"
	"time"

	"github.com/dep2p/go-chatcore/pkg/types"
)

// ServiceConfig 一个服务的配置
type ServiceConfig struct {
	// ID 服务 ID，同时是事件源 ID
	ID string `json:"id" yaml:"id"`

	// Platform 协议名，启动时从已注册的协议中查找
	Platform string `json:"platform" yaml:"platform"`

	// DependsOn 依赖的服务 ID
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Restart 重启策略
	Restart RestartConfig `json:"restart" yaml:"restart"`

	// StartTimeout 就绪超时，0 使用 lifecycle 默认值
	StartTimeout Duration `json:"start_timeout,omitempty" yaml:"start_timeout,omitempty"`

	// ShutdownTimeout 关闭超时，0 使用 lifecycle 默认值
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`

	// Settings 协议私有设置，例如服务器地址、账号
	Settings map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Validate 验证服务配置
func (s ServiceConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: service id is empty", ErrInvalidConfig)
	}
	if s.Platform == "" {
		return fmt.Errorf("%w: service %q has no platform", ErrInvalidConfig, s.ID)
	}
	if s.StartTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: service %q has negative timeout", ErrInvalidConfig, s.ID)
	}
	for _, dep := range s.DependsOn {
		if dep == s.ID {
			return fmt.Errorf("%w: service %q depends on itself", ErrInvalidConfig, s.ID)
		}
	}
	if err := s.Restart.Validate(); err != nil {
		return fmt.Errorf("service %q: %w", s.ID, err)
	}
	return nil
}

// RestartConfig 重启策略配置
type RestartConfig struct {
	// Policy 策略: none, fixed-delay, backoff
	// 默认值: none
	Policy string `json:"policy" yaml:"policy"`

	// Delay 固定延迟，或退避的初始延迟
	// 默认值: 1s
	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`

	// MaxDelay 退避上限
	// 默认值: 60s
	MaxDelay Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`

	// Multiplier 退避倍数
	// 默认值: 2.0
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`

	// MaxRestarts 最多连续自动重启次数，0 表示不限
	MaxRestarts int `json:"max_restarts,omitempty" yaml:"max_restarts,omitempty"`
}

// 重启策略默认值
const (
	DefaultRestartDelay      = time.Second
	DefaultRestartMaxDelay   = 60 * time.Second
	DefaultRestartMultiplier = 2.0
)

// Validate 验证重启策略
func (r RestartConfig) Validate() error {
	if _, err := types.ParseRestartMode(r.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if r.Delay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("%w: restart delay must not be negative", ErrInvalidConfig)
	}
	if r.Multiplier < 0 {
		return fmt.Errorf("%w: restart multiplier must not be negative", ErrInvalidConfig)
	}
	if r.MaxRestarts < 0 {
		return fmt.Errorf("%w: max_restarts must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (r *RestartConfig) fix() {
	if r.Multiplier != 0 && r.Multiplier < 1 {
		r.Multiplier = DefaultRestartMultiplier
	}
	if r.Delay < 0 {
		r.Delay = Duration(DefaultRestartDelay)
	}
	if r.MaxDelay < 0 {
		r.MaxDelay = Duration(DefaultRestartMaxDelay)
	}
	if r.MaxRestarts < 0 {
		r.MaxRestarts = 0
	}
}

// ToPolicy 转换为重启策略，未设置的字段使用默认值
func (r RestartConfig) ToPolicy() (types.RestartPolicy, error) {
	mode, err := types.ParseRestartMode(r.Policy)
	if err != nil {
		return types.RestartPolicy{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	p := types.RestartPolicy{
		Mode:        mode,
		Delay:       r.Delay.Duration(),
		MaxDelay:    r.MaxDelay.Duration(),
		Multiplier:  r.Multiplier,
		MaxRestarts: r.MaxRestarts,
	}
	if mode == types.RestartNone {
		return p, nil
	}
	if p.Delay == 0 {
		p.Delay = DefaultRestartDelay
	}
	if mode == types.RestartBackoff {
		if p.MaxDelay == 0 {
			p.MaxDelay = DefaultRestartMaxDelay
		}
		if p.Multiplier == 0 {
			p.Multiplier = DefaultRestartMultiplier
		}
	}
	return p, nil
}

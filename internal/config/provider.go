// Package config 把用户配置分发给各个组件
package config

import (
	"fmt"

	"go.uber.org/fx"

	userconfig "github.com/dep2p/go-chatcore/config"
	"github.com/dep2p/go-chatcore/internal/core/eventbus"
	"github.com/dep2p/go-chatcore/internal/core/lifecycle"
	"github.com/dep2p/go-chatcore/internal/core/metadata"
	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
)

// Provider 配置提供者
type Provider struct {
	config *userconfig.Config
}

// NewProvider 创建配置提供者
func NewProvider(cfg *userconfig.Config) *Provider {
	if cfg == nil {
		cfg = userconfig.NewConfig()
	}
	return &Provider{config: cfg}
}

// GetConfig 获取完整配置
func (p *Provider) GetConfig() *userconfig.Config {
	return p.config
}

// Lifecycle 转换为生命周期管理器配置
func (p *Provider) Lifecycle() *lifecycle.Config {
	c := p.config.Lifecycle
	return &lifecycle.Config{
		StartTimeout:    c.StartTimeout.Duration(),
		ShutdownTimeout: c.ShutdownTimeout.Duration(),
	}
}

// Metadata 转换为元数据存储配置
func (p *Provider) Metadata() *metadata.Config {
	c := p.config.Metadata
	return &metadata.Config{
		Capacity:      c.Capacity,
		AbsentBackoff: c.AbsentBackoff.Duration(),
		FetchTimeout:  c.FetchTimeout.Duration(),
	}
}

// EventBus 转换为事件总线配置
func (p *Provider) EventBus() *eventbus.Config {
	c := p.config.EventBus
	return &eventbus.Config{
		ObservationBuffer: c.ObservationBuffer,
		WarnInterval:      c.WarnInterval.Duration(),
		WarnBurst:         c.WarnBurst,
	}
}

// Metrics 转换为指标配置
func (p *Provider) Metrics() *metrics.Config {
	return &metrics.Config{Enabled: p.config.Metrics.Enabled}
}

// ServiceSpecs 把服务配置与协议实现组合成服务描述
//
// protocols 以平台名为键；配置引用了未提供的平台时返回错误。
func (p *Provider) ServiceSpecs(protocols map[string]pkgif.Protocol) ([]pkgif.ServiceSpec, error) {
	specs := make([]pkgif.ServiceSpec, 0, len(p.config.Services))
	for _, s := range p.config.Services {
		proto, ok := protocols[s.Platform]
		if !ok {
			return nil, fmt.Errorf("%w: service %q uses unregistered platform %q",
				userconfig.ErrInvalidConfig, s.ID, s.Platform)
		}
		policy, err := s.Restart.ToPolicy()
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", s.ID, err)
		}

		settings := make(map[string]string, len(s.Settings))
		for k, v := range s.Settings {
			settings[k] = v
		}
		specs = append(specs, pkgif.ServiceSpec{
			ID:              s.ID,
			Protocol:        proto,
			DependsOn:       append([]string(nil), s.DependsOn...),
			Restart:         policy,
			StartTimeout:    s.StartTimeout.Duration(),
			ShutdownTimeout: s.ShutdownTimeout.Duration(),
			Settings:        settings,
		})
	}
	return specs, nil
}

// ============================================================================
//                              fx 模块
// ============================================================================

// ProviderResult fx 提供者结果
type ProviderResult struct {
	fx.Out

	Provider        *Provider
	LifecycleConfig *lifecycle.Config
	MetadataConfig  *metadata.Config
	EventBusConfig  *eventbus.Config
	MetricsConfig   *metrics.Config
}

// ProvideConfig 验证用户配置并提供各组件配置
func ProvideConfig(cfg *userconfig.Config) (ProviderResult, error) {
	if err := cfg.Validate(); err != nil {
		return ProviderResult{}, fmt.Errorf("配置验证失败: %w", err)
	}
	p := NewProvider(cfg)
	return ProviderResult{
		Provider:        p,
		LifecycleConfig: p.Lifecycle(),
		MetadataConfig:  p.Metadata(),
		EventBusConfig:  p.EventBus(),
		MetricsConfig:   p.Metrics(),
	}, nil
}

// Module 返回配置 fx 模块
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(ProvideConfig),
	)
}

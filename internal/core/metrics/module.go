package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-chatcore/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled: true,
	}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Config     *Config               `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Result Metrics 输出
type Result struct {
	fx.Out

	Metrics *Metrics
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(ProvideMetrics),
)

// ProvideMetrics 从参数创建指标
//
// 禁用时提供 nil，各记录方法对 nil 安全。
func ProvideMetrics(p Params) (Result, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	if !cfg.Enabled {
		return Result{}, nil
	}
	reg := p.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := New(reg)
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: m}, nil
}

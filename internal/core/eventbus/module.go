package eventbus

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
)

// ============================================================================
// 配置
// ============================================================================

// Config 事件总线配置
type Config struct {
	// ObservationBuffer 观测订阅默认缓冲区
	ObservationBuffer int

	// WarnInterval 乱序与处理器失败警告的最小间隔
	WarnInterval time.Duration

	// WarnBurst 警告突发数量
	WarnBurst int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ObservationBuffer: defaultObservationBuffer,
		WarnInterval:      time.Second,
		WarnBurst:         5,
	}
}

// ============================================================================
// Fx 模块
// ============================================================================

// Params 依赖参数
type Params struct {
	fx.In

	Config  *Config          `optional:"true"`
	Clock   clock.Clock      `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	EventBus   pkgif.EventBus
	Dispatcher pkgif.Dispatcher
	Raw        *Dispatcher
}

// Module 是 eventbus 的 Fx 模块
var Module = fx.Module("eventbus",
	fx.Provide(Provide),
	fx.Invoke(registerLifecycle),
)

// Provide 创建观测总线与分发器
func Provide(p Params) (Result, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = time.Second
	}
	if cfg.WarnBurst <= 0 {
		cfg.WarnBurst = 1
	}

	bus := NewBus(WithDefaultBuffer(cfg.ObservationBuffer))
	d, err := NewDispatcher(bus,
		WithClock(p.Clock),
		WithMetrics(p.Metrics),
		WithWarnRate(cfg.WarnInterval, cfg.WarnBurst),
	)
	if err != nil {
		return Result{}, err
	}
	return Result{EventBus: bus, Dispatcher: d, Raw: d}, nil
}

type lifecycleInput struct {
	fx.In

	LC         fx.Lifecycle
	Dispatcher *Dispatcher
}

// registerLifecycle 停止时关闭分发器
func registerLifecycle(in lifecycleInput) {
	in.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return in.Dispatcher.Close()
		},
	})
}

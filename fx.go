package chatcore

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	internalconfig "github.com/dep2p/go-chatcore/internal/config"
	"github.com/dep2p/go-chatcore/internal/core/eventbus"
	"github.com/dep2p/go-chatcore/internal/core/lifecycle"
	"github.com/dep2p/go-chatcore/internal/core/metadata"
	"github.com/dep2p/go-chatcore/internal/core/metrics"
	"github.com/dep2p/go-chatcore/internal/core/relationship"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
)

var fxLogger = log.Logger("chatcore/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置: 用户配置 -> 各组件配置
//  2. 基础: metrics -> eventbus
//  3. 服务: lifecycle（目录 + 管理器） -> metadata（通过目录找到协议）
//  4. 关系: relationship
//  5. 服务注册与 Core 组件注入
func buildFxApp(o *options, core *Core) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(o.config),
		internalconfig.Module(),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 可替换的基础设施
	// ════════════════════════════════════════════════════════════════════════
	if clk := o.clock; clk != nil {
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	if reg := o.registerer; reg != nil {
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 核心组件
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		metrics.Module,
		eventbus.Module,
		lifecycle.Module,
		metadata.Module,
		relationship.Module,
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. 服务注册与组件注入（在 OnStart 之前执行）
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Invoke(registerServices(o)),
		fx.Invoke(injectCoreComponents(o, core)),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 日志
	// ════════════════════════════════════════════════════════════════════════
	if o.config.Log.FxEvents {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("create fx logger: %w", err)
		}
		modules = append(modules, fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zl}
		}))
	} else {
		modules = append(modules, fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}))
	}

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// registerServices 注册配置文件与代码中的服务
func registerServices(o *options) func(*internalconfig.Provider, pkgif.LifecycleManager) error {
	return func(p *internalconfig.Provider, lm pkgif.LifecycleManager) error {
		specs, err := p.ServiceSpecs(o.protocols)
		if err != nil {
			return err
		}
		specs = append(specs, o.services...)

		for _, spec := range specs {
			if err := lm.Register(spec); err != nil {
				return err
			}
		}
		fxLogger.Debug("服务已注册", "count", len(specs))
		return nil
	}
}

// coreInjectParams Core 组件注入参数
type coreInjectParams struct {
	fx.In

	Bus        pkgif.EventBus
	Dispatcher pkgif.Dispatcher
	Store      pkgif.MetadataStore
	Manager    *lifecycle.Manager
	Resolver   *relationship.Resolver
	Metrics    *metrics.Metrics `optional:"true"`
}

// injectCoreComponents 把 fx 构建的组件交给 Core
func injectCoreComponents(o *options, core *Core) func(coreInjectParams) {
	return func(p coreInjectParams) {
		core.bus = p.Bus
		core.dispatcher = p.Dispatcher
		core.store = p.Store
		core.manager = p.Manager
		core.resolver = p.Resolver
		core.metrics = p.Metrics

		if len(o.middlewares) > 0 {
			p.Resolver.Use(o.middlewares...)
		}
	}
}

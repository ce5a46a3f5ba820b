package lifecycle

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// DirectoryResult 目录输出
//
// 目录单独提供，元数据存储依赖它解析来源，管理器又依赖元数据存储。
type DirectoryResult struct {
	fx.Out

	Directory *Directory
	Protocols pkgif.ProtocolDirectory
	Resolver  pkgif.FetcherResolver
}

// ProvideDirectory 提供活跃协议目录
func ProvideDirectory() DirectoryResult {
	d := NewDirectory()
	return DirectoryResult{Directory: d, Protocols: d, Resolver: d}
}

// Params 管理器依赖参数
type Params struct {
	fx.In

	LC         fx.Lifecycle
	Directory  *Directory
	Config     *Config             `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	Dispatcher pkgif.Dispatcher    `optional:"true"`
	Store      pkgif.MetadataStore `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
	Bus        pkgif.EventBus      `optional:"true"`
}

// Result 管理器输出
type Result struct {
	fx.Out

	Manager   *Manager
	Lifecycle pkgif.LifecycleManager
}

// ProvideManager 创建管理器
func ProvideManager(p Params) (Result, error) {
	opts := []Option{
		WithClock(p.Clock),
		WithDispatcher(p.Dispatcher),
		WithMetadataStore(p.Store),
		WithMetrics(p.Metrics),
	}

	var em pkgif.Emitter
	if p.Bus != nil {
		var err error
		// 有状态：晚到的订阅者也能看到最近一次状态变化
		em, err = p.Bus.Emitter(new(types.EvtServiceStateChanged), pkgif.Stateful())
		if err != nil {
			return Result{}, fmt.Errorf("create state emitter: %w", err)
		}
		opts = append(opts, WithEmitter(em))
	}

	m, err := NewManager(p.Config, p.Directory, opts...)
	if err != nil {
		if em != nil {
			em.Close()
		}
		return Result{}, err
	}

	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			err := m.Stop(ctx)
			if em != nil {
				em.Close()
			}
			return err
		},
	})
	return Result{Manager: m, Lifecycle: m}, nil
}

// Module 是 lifecycle 的 Fx 模块
var Module = fx.Module("lifecycle",
	fx.Provide(
		ProvideDirectory,
		ProvideManager,
	),
)

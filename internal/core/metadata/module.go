package metadata

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// Params 依赖参数
type Params struct {
	fx.In

	LC       fx.Lifecycle
	Config   *Config               `optional:"true"`
	Resolver pkgif.FetcherResolver `optional:"true"`
	Clock    clock.Clock           `optional:"true"`
	Metrics  *metrics.Metrics      `optional:"true"`
	Bus      pkgif.EventBus        `optional:"true"`
}

// Result 模块输出
type Result struct {
	fx.Out

	Store    pkgif.MetadataStore
	RawStore *Store
}

// Module 是 metadata 的 Fx 模块
var Module = fx.Module("metadata",
	fx.Provide(ProvideStore),
)

// ProvideStore 创建元数据存储
func ProvideStore(p Params) (Result, error) {
	opts := []Option{WithClock(p.Clock), WithMetrics(p.Metrics)}

	var em pkgif.Emitter
	if p.Bus != nil {
		var err error
		em, err = p.Bus.Emitter(new(types.EvtMetadataInvalidated))
		if err != nil {
			return Result{}, fmt.Errorf("create invalidation emitter: %w", err)
		}
		opts = append(opts, WithEmitter(em))
	}

	store, err := NewStore(p.Config, p.Resolver, opts...)
	if err != nil {
		if em != nil {
			em.Close()
		}
		return Result{}, err
	}

	if em != nil {
		p.LC.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return em.Close()
			},
		})
	}
	return Result{Store: store, RawStore: store}, nil
}

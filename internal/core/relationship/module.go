package relationship

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
)

// Params 解析器依赖参数
type Params struct {
	fx.In

	Directory   pkgif.ProtocolDirectory
	Store       pkgif.MetadataStore      `optional:"true"`
	Metrics     *metrics.Metrics         `optional:"true"`
	Clock       clock.Clock              `optional:"true"`
	Middlewares []pkgif.ActionMiddleware `group:"action_middlewares"`
}

// Result 解析器输出
type Result struct {
	fx.Out

	Resolver *Resolver
}

// ProvideResolver 创建解析器
//
// 全局中间件通过 fx 值组 action_middlewares 注入。
func ProvideResolver(p Params) Result {
	var mws []pkgif.ActionMiddleware
	for _, mw := range p.Middlewares {
		if mw != nil {
			mws = append(mws, mw)
		}
	}
	return Result{
		Resolver: NewResolver(p.Directory,
			WithMetadataStore(p.Store),
			WithMetrics(p.Metrics),
			WithClock(p.Clock),
			WithMiddlewares(mws...),
		),
	}
}

// Module 是 relationship 的 Fx 模块
var Module = fx.Module("relationship",
	fx.Provide(ProvideResolver),
)

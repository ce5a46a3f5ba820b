package relationship

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
	"github.com/dep2p/go-chatcore/pkg/types"
)

var logger = log.Logger("core/relationship")

// Resolver 为 (Self, Target) 解析关系上下文
type Resolver struct {
	dir     pkgif.ProtocolDirectory
	store   pkgif.MetadataStore
	metrics *metrics.Metrics
	clock   clock.Clock

	mu          sync.RWMutex
	middlewares []pkgif.ActionMiddleware
}

// Option 解析器选项
type Option func(*Resolver)

// WithMetadataStore 设置元数据存储
func WithMetadataStore(s pkgif.MetadataStore) Option {
	return func(r *Resolver) {
		r.store = s
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithClock 设置动作计时使用的时钟
func WithClock(clk clock.Clock) Option {
	return func(r *Resolver) {
		if clk != nil {
			r.clock = clk
		}
	}
}

// WithMiddlewares 设置全局动作中间件
func WithMiddlewares(mw ...pkgif.ActionMiddleware) Option {
	return func(r *Resolver) {
		r.middlewares = append(r.middlewares, mw...)
	}
}

// NewResolver 创建解析器
func NewResolver(dir pkgif.ProtocolDirectory, opts ...Option) *Resolver {
	r := &Resolver{dir: dir, clock: clock.New()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use 追加全局动作中间件
//
// 只影响之后解析出的 Context。
func (r *Resolver) Use(mw ...pkgif.ActionMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw...)
}

// ContextOption Context 选项
type ContextOption func(*Context)

// Via 设置中转实体
func Via(sel types.Selector) ContextOption {
	return func(c *Context) {
		c.via = sel
	}
}

// For 解析 self 与 target 之间的关系
//
// self 的 account 段选择平台上代表该账号的服务。
func (r *Resolver) For(self, target types.Selector, opts ...ContextOption) (*Context, error) {
	platform := target.Platform()
	if platform == "" {
		return nil, fmt.Errorf("%w: target %s has no platform", types.ErrUnresolvedCapability, target)
	}
	if p := self.Platform(); p != platform {
		return nil, fmt.Errorf("%w: self %s is not on platform %s", types.ErrUnresolvedCapability, self, platform)
	}
	if r.dir == nil {
		return nil, fmt.Errorf("%w: no protocol directory", types.ErrUnresolvedCapability)
	}

	// 动作经由代表 self 的服务连接发出
	proto, serviceID, ok := r.dir.ResolveAccount(self)
	if !ok {
		logger.Debug("没有代表该账号的活跃服务", "platform", platform, "self", self.String())
		return nil, fmt.Errorf("%w: no active service for %s on platform %s",
			types.ErrUnresolvedCapability, self, platform)
	}

	r.mu.RLock()
	global := append([]pkgif.ActionMiddleware(nil), r.middlewares...)
	r.mu.RUnlock()

	c := &Context{
		self:        self,
		target:      target,
		platform:    platform,
		serviceID:   serviceID,
		protocol:    proto,
		caps:        proto.Capabilities(),
		store:       r.store,
		metrics:     r.metrics,
		clock:       r.clock,
		middlewares: global,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

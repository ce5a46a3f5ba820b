package chatcore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-chatcore/config"
	"github.com/dep2p/go-chatcore/internal/core/lifecycle"
	"github.com/dep2p/go-chatcore/internal/core/metrics"
	"github.com/dep2p/go-chatcore/internal/core/relationship"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/cell"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
	"github.com/dep2p/go-chatcore/pkg/types"
)

var logger = log.Logger("chatcore")

// Version 当前版本
const Version = "v0.1.0"

// defaultCloseTimeout Close 使用的关闭超时
const defaultCloseTimeout = 30 * time.Second

// coreState Core 状态
type coreState int

const (
	stateCreated coreState = iota
	stateStarted
	stateClosed
)

// Core 聊天框架核心
//
// 由 New 创建，Start 启动所有服务，Stop/Close 按依赖逆序关闭。
// Core 的方法可以并发调用。
type Core struct {
	app *fx.App
	cfg *config.Config

	bus        pkgif.EventBus
	dispatcher pkgif.Dispatcher
	store      pkgif.MetadataStore
	manager    *lifecycle.Manager
	resolver   *relationship.Resolver
	metrics    *metrics.Metrics

	mu    sync.Mutex
	state coreState
}

// New 创建 Core，不启动服务
func New(opts ...Option) (*Core, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	c := &Core{cfg: o.config}
	app, err := buildFxApp(o, c)
	if err != nil {
		return nil, fmt.Errorf("build core: %w", err)
	}
	c.app = app
	return c, nil
}

// Start 创建并启动 Core
func Start(ctx context.Context, opts ...Option) (*Core, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Start 启动所有服务
//
// 不等待服务就绪，需要时使用 WaitSettled。
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateStarted:
		return ErrAlreadyStarted
	case stateClosed:
		return ErrCoreClosed
	}

	if err := c.app.Start(ctx); err != nil {
		c.state = stateClosed
		return fmt.Errorf("start core: %w", err)
	}
	c.state = stateStarted
	logger.Info("chatcore 已启动", "services", len(c.manager.Services()))
	return nil
}

// Stop 关闭所有服务，之后 Core 不可再启动
func (c *Core) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return nil
	}
	wasStarted := c.state == stateStarted
	c.state = stateClosed
	if !wasStarted {
		return nil
	}

	if err := c.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop core: %w", err)
	}
	logger.Info("chatcore 已关闭")
	return nil
}

// Close 以默认超时关闭
func (c *Core) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCloseTimeout)
	defer cancel()
	return c.Stop(ctx)
}

// Done 返回在收到 SIGINT/SIGTERM 时关闭的通道
func (c *Core) Done() <-chan os.Signal {
	return c.app.Done()
}

// Config 返回当前配置
func (c *Core) Config() *config.Config {
	return c.cfg
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件
// ════════════════════════════════════════════════════════════════════════════

// Subscribe 订阅 Origin 匹配 pattern 的事件
func (c *Core) Subscribe(pattern types.Pattern, handler pkgif.EventHandler, opts ...pkgif.SubscribeOpt) (pkgif.EventSubscription, error) {
	return c.dispatcher.Subscribe(pattern, handler, opts...)
}

// Claim 占用事件源，用于核心之外的事件生产者
func (c *Core) Claim(source string) (pkgif.Source, error) {
	return c.dispatcher.Claim(source)
}

// Observe 订阅观测事件，例如 new(types.HandlerFailure)
func (c *Core) Observe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	return c.bus.Subscribe(eventType, opts...)
}

// ════════════════════════════════════════════════════════════════════════════
//                              关系与元数据
// ════════════════════════════════════════════════════════════════════════════

// For 解析 self 与 target 之间的关系上下文
func (c *Core) For(self, target types.Selector, opts ...relationship.ContextOption) (*relationship.Context, error) {
	return c.resolver.For(self, target, opts...)
}

// Use 追加全局动作中间件
func (c *Core) Use(mw ...pkgif.ActionMiddleware) {
	c.resolver.Use(mw...)
}

// Meta 读取实体属性
func (c *Core) Meta(ctx context.Context, sel types.Selector, names ...string) (types.Attributes, error) {
	return c.store.Get(ctx, sel, names...)
}

// Metadata 返回元数据存储
func (c *Core) Metadata() pkgif.MetadataStore {
	return c.store
}

// ════════════════════════════════════════════════════════════════════════════
//                              服务
// ════════════════════════════════════════════════════════════════════════════

// Lifecycle 返回生命周期管理器
func (c *Core) Lifecycle() pkgif.LifecycleManager {
	return c.manager
}

// Protocols 返回活跃协议目录
func (c *Core) Protocols() pkgif.ProtocolDirectory {
	return c.manager.Directory()
}

// Services 返回按注册顺序排列的服务 ID
func (c *Core) Services() []string {
	return c.manager.Services()
}

// Status 返回服务状态
func (c *Core) Status(id string) (types.ServiceStatus, error) {
	return c.manager.Status(id)
}

// Watch 返回服务的状态单元
func (c *Core) Watch(id string) (*cell.Cell[types.ServiceStatus], error) {
	return c.manager.Watch(id)
}

// WaitState 等待服务进入任一指定状态
func (c *Core) WaitState(ctx context.Context, id string, states ...types.ServiceState) (types.ServiceStatus, error) {
	return c.manager.WaitState(ctx, id, states...)
}

// WaitSettled 等待所有服务进入 Active、Failed 或 Stopped
func (c *Core) WaitSettled(ctx context.Context) error {
	return c.manager.WaitSettled(ctx)
}

// Restart 手动重启服务
func (c *Core) Restart(ctx context.Context, id string) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != stateStarted {
		return ErrNotStarted
	}
	return c.manager.Restart(ctx, id)
}

// Metrics 返回指标集合，禁用时为 nil
func (c *Core) Metrics() *metrics.Metrics {
	return c.metrics
}

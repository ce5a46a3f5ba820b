package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/cell"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
	"github.com/dep2p/go-chatcore/pkg/types"
)

var logger = log.Logger("core/lifecycle")

// ============================================================================
//                              服务
// ============================================================================

// service 已注册的服务
type service struct {
	spec   pkgif.ServiceSpec
	status *cell.Cell[types.ServiceStatus]

	// transMu 串行化本服务的状态迁移
	transMu sync.Mutex

	deps    []*service
	unwatch []func()

	// wake 依赖状态变化时被唤醒
	wake      chan struct{}
	restartCh chan *restartRequest
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}

	// finalErr 最后一次关闭的错误，done 关闭前写入
	finalErr error
}

// restartRequest 手动重启请求，服务回到 Pending 后 done 被关闭
type restartRequest struct {
	done chan struct{}
}

func (r *restartRequest) ack() {
	close(r.done)
}

func newService(spec pkgif.ServiceSpec, now time.Time) *service {
	return &service{
		spec:      spec,
		status:    cell.New(types.ServiceStatus{State: types.StatePending, Since: now}),
		wake:      make(chan struct{}, 1),
		restartCh: make(chan *restartRequest),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// poke 非阻塞唤醒
func (s *service) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *service) requestStop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// dependenciesActive 所有依赖都处于 Active
func (s *service) dependenciesActive() bool {
	for _, d := range s.deps {
		if d.status.Get().State != types.StateActive {
			return false
		}
	}
	return true
}

// failedDependency 返回第一个处于 Failed 的依赖
func (s *service) failedDependency() string {
	for _, d := range s.deps {
		if d.status.Get().State == types.StateFailed {
			return d.spec.ID
		}
	}
	return ""
}

// ============================================================================
//                              Manager
// ============================================================================

// Manager 服务生命周期管理器
//
// 每个服务由一个 supervisor goroutine 驱动状态机；同一服务的迁移由
// transMu 串行化，不同服务并行迁移。
type Manager struct {
	cfg        *Config
	clock      clock.Clock
	directory  *Directory
	dispatcher pkgif.Dispatcher
	store      pkgif.MetadataStore
	metrics    *metrics.Metrics
	emitter    pkgif.Emitter

	mu       sync.Mutex
	services map[string]*service
	order    []string
	depth    map[string]int
	started  bool
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ pkgif.LifecycleManager = (*Manager)(nil)

// Option 管理器选项
type Option func(*Manager)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithDispatcher 设置事件分发器，服务通过它占用自己的事件源
func WithDispatcher(d pkgif.Dispatcher) Option {
	return func(m *Manager) {
		m.dispatcher = d
	}
}

// WithMetadataStore 设置元数据存储
func WithMetadataStore(s pkgif.MetadataStore) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithMetrics 设置指标
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithEmitter 设置 EvtServiceStateChanged 发射器
func WithEmitter(em pkgif.Emitter) Option {
	return func(m *Manager) {
		m.emitter = em
	}
}

// NewManager 创建管理器
func NewManager(cfg *Config, dir *Directory, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir == nil {
		dir = NewDirectory()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		clock:     clock.New(),
		directory: dir,
		services:  make(map[string]*service),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Directory 返回活跃协议目录
func (m *Manager) Directory() *Directory {
	return m.directory
}

// Register 注册服务
func (m *Manager) Register(spec pkgif.ServiceSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("%w: empty id", types.ErrInvalidServiceSpec)
	}
	if spec.Protocol == nil {
		return fmt.Errorf("%w: %s has no protocol", types.ErrInvalidServiceSpec, spec.ID)
	}
	if spec.Protocol.Name() == "" {
		return fmt.Errorf("%w: %s protocol has empty name", types.ErrInvalidServiceSpec, spec.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return types.ErrManagerStopped
	}
	if m.started {
		return types.ErrManagerStarted
	}
	if _, ok := m.services[spec.ID]; ok {
		return fmt.Errorf("%w: %s", types.ErrServiceExists, spec.ID)
	}

	spec.DependsOn = append([]string(nil), spec.DependsOn...)
	m.services[spec.ID] = newService(spec, m.clock.Now())
	m.order = append(m.order, spec.ID)

	logger.Debug("服务已注册",
		"service", spec.ID,
		"platform", spec.Protocol.Name(),
		"dependsOn", spec.DependsOn)
	return nil
}

// Start 校验依赖图并为每个服务启动 supervisor
//
// 不等待服务就绪，需要时使用 WaitState 或 WaitSettled。
func (m *Manager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return types.ErrManagerStopped
	}
	if m.started {
		return types.ErrManagerStarted
	}

	deps := make(map[string][]string, len(m.services))
	for id, s := range m.services {
		deps[id] = s.spec.DependsOn
	}
	depth, err := validateGraph(m.order, deps)
	if err != nil {
		return err
	}
	m.depth = depth

	for _, id := range m.order {
		s := m.services[id]
		for _, depID := range s.spec.DependsOn {
			dep := m.services[depID]
			s.deps = append(s.deps, dep)
			s.unwatch = append(s.unwatch, dep.status.Observe(func(_, _ types.ServiceStatus) {
				s.poke()
			}))
		}
	}

	m.started = true
	for _, id := range m.order {
		m.wg.Add(1)
		go m.supervise(m.services[id])
	}

	logger.Info("生命周期管理器已启动", "services", len(m.order))
	return nil
}

// Stop 按依赖逆序关闭所有服务
//
// 依赖者先于被依赖者关闭；同一层并行关闭，等这一层全部结束再进入下一层。
// 每个服务的关闭受其 ShutdownTimeout 约束，ctx 取消时不再等待剩余服务。
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	started := m.started
	order := append([]string(nil), m.order...)
	depth := m.depth
	m.mu.Unlock()

	if !started {
		for _, id := range order {
			m.transition(m.services[id], types.StateStopped, nil)
		}
		m.cancel()
		return nil
	}

	logger.Info("开始关闭服务")

	var (
		errMu sync.Mutex
		errs  error
	)
	for _, layer := range shutdownLayers(order, depth) {
		if ctx.Err() != nil {
			break
		}

		var g errgroup.Group
		for _, id := range layer {
			s := m.services[id]
			g.Go(func() error {
				s.requestStop()
				select {
				case <-s.done:
					if s.finalErr != nil {
						errMu.Lock()
						errs = multierr.Append(errs, s.finalErr)
						errMu.Unlock()
					}
				case <-ctx.Done():
					errMu.Lock()
					errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", s.spec.ID, ctx.Err()))
					errMu.Unlock()
				}
				return nil
			})
		}
		g.Wait()
	}

	// 剩余服务只发出关闭请求，不再等待
	for _, id := range order {
		m.services[id].requestStop()
	}
	m.cancel()

	if ctx.Err() == nil {
		m.wg.Wait()
	}

	logger.Info("服务已全部关闭")
	return errs
}

// Restart 循环单个服务
//
// Starting/Active 的服务先关闭再回到 Pending，Failed 的服务直接回到 Pending。
// 服务回到 Pending 后返回。
func (m *Manager) Restart(ctx context.Context, id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	started, stopped := m.started, m.stopped
	m.mu.Unlock()
	if stopped {
		return types.ErrManagerStopped
	}
	if !started {
		return fmt.Errorf("%w: %s (manager not started)", types.ErrServiceNotActive, id)
	}

	req := &restartRequest{done: make(chan struct{})}
	select {
	case s.restartCh <- req:
	case <-s.done:
		return types.ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		logger.Info("服务已手动重启", "service", id)
		return nil
	case <-s.done:
		return types.ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              查询
// ============================================================================

// Status 返回服务当前状态
func (m *Manager) Status(id string) (types.ServiceStatus, error) {
	s, err := m.lookup(id)
	if err != nil {
		return types.ServiceStatus{}, err
	}
	return s.status.Get(), nil
}

// Watch 返回服务的状态单元
func (m *Manager) Watch(id string) (*cell.Cell[types.ServiceStatus], error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.status, nil
}

// WaitState 等待服务进入任一指定状态
func (m *Manager) WaitState(ctx context.Context, id string, states ...types.ServiceState) (types.ServiceStatus, error) {
	s, err := m.lookup(id)
	if err != nil {
		return types.ServiceStatus{}, err
	}
	return s.status.Wait(ctx, func(st types.ServiceStatus) bool {
		for _, want := range states {
			if st.State == want {
				return true
			}
		}
		return false
	})
}

// WaitSettled 等待所有服务进入 Active、Failed 或 Stopped
func (m *Manager) WaitSettled(ctx context.Context) error {
	for _, id := range m.Services() {
		if _, err := m.WaitState(ctx, id, types.StateActive, types.StateFailed, types.StateStopped); err != nil {
			return err
		}
	}
	return nil
}

// Services 返回按注册顺序排列的服务 ID
func (m *Manager) Services() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) lookup(id string) (*service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrServiceNotFound, id)
	}
	return s, nil
}

// ============================================================================
//                              状态迁移
// ============================================================================

// transition 迁移服务状态
func (m *Manager) transition(s *service, to types.ServiceState, err error) {
	m.setState(s, to, err, false)
}

// setState 迁移服务状态，restarted 表示这是一次自动重启
func (m *Manager) setState(s *service, to types.ServiceState, err error, restarted bool) {
	s.transMu.Lock()
	defer s.transMu.Unlock()

	id := s.spec.ID
	cur := s.status.Get()
	if !cur.State.CanTransition(to) {
		logger.Error("非法状态迁移",
			"service", id,
			"from", cur.State.String(),
			"to", to.String())
		return
	}

	// 目录先于状态单元更新，等到 Active 的一方此时已能解析到协议
	if to == types.StateActive {
		m.directory.add(id, s.spec.Settings[pkgif.AccountSetting], s.spec.Protocol)
	} else if cur.State == types.StateActive {
		m.directory.remove(id, s.spec.Protocol)
	}

	next := types.ServiceStatus{
		State:    to,
		Err:      err,
		Since:    m.clock.Now(),
		Restarts: cur.Restarts,
	}
	if err == nil {
		next.Err = cur.Err
	}
	if restarted {
		next.Restarts++
	}
	s.status.Set(next)

	m.metrics.ServiceTransition(id, to)
	if restarted {
		m.metrics.ServiceRestarted(id)
	}

	if to == types.StateFailed {
		logger.Warn("服务失败",
			"service", id,
			"from", cur.State.String(),
			"error", err)
	} else {
		logger.Debug("服务状态变化",
			"service", id,
			"from", cur.State.String(),
			"to", to.String())
	}

	if m.emitter != nil {
		m.emitter.Emit(types.EvtServiceStateChanged{
			ServiceID: id,
			Platform:  s.spec.Protocol.Name(),
			Old:       cur.State,
			New:       to,
			Err:       err,
			At:        next.Since,
		})
	}
}

func (m *Manager) startTimeout(s *service) time.Duration {
	if s.spec.StartTimeout > 0 {
		return s.spec.StartTimeout
	}
	return m.cfg.StartTimeout
}

func (m *Manager) shutdownTimeout(s *service) time.Duration {
	if s.spec.ShutdownTimeout > 0 {
		return s.spec.ShutdownTimeout
	}
	return m.cfg.ShutdownTimeout
}

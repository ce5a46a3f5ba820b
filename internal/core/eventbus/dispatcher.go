package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// ErrNilHandler 处理器为空
var ErrNilHandler = errors.New("nil event handler")

// ============================================================================
// Dispatcher 事件分发器
// ============================================================================

// Dispatcher 按 Selector 模式分发协议事件
//
// 同一事件源的事件经源内队列依次分发，处理器看到的顺序即发布顺序；
// 处理器可以向产生事件的源再次发布（例如回复消息），新事件排在当前事件之后。
// 不同事件源并行分发。订阅表写时复制，发布路径不持有全局锁。
type Dispatcher struct {
	clock   clock.Clock
	metrics *metrics.Metrics

	// sources 事件源状态 map[string]*sourceState
	sources sync.Map

	// subs 订阅表快照
	subs  atomic.Pointer[[]*subscription]
	subMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once

	failureEmitter pkgif.Emitter
	anomalyEmitter pkgif.Emitter

	// warnLimiter 限制乱序与处理器失败警告的日志频率
	warnLimiter *rate.Limiter
}

// DispatcherOption 分发器选项
type DispatcherOption func(*Dispatcher)

// WithClock 设置时钟
func WithClock(clk clock.Clock) DispatcherOption {
	return func(d *Dispatcher) {
		if clk != nil {
			d.clock = clk
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithWarnRate 设置警告日志的速率上限
func WithWarnRate(every time.Duration, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		d.warnLimiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// NewDispatcher 创建分发器
//
// bus 用于发出 HandlerFailure 与 EvtSequenceAnomaly，可以为 nil。
func NewDispatcher(bus pkgif.EventBus, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		clock:       clock.New(),
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(d)
	}
	empty := make([]*subscription, 0)
	d.subs.Store(&empty)

	if bus != nil {
		var err error
		if d.failureEmitter, err = bus.Emitter(new(types.HandlerFailure)); err != nil {
			return nil, fmt.Errorf("create handler failure emitter: %w", err)
		}
		if d.anomalyEmitter, err = bus.Emitter(new(types.EvtSequenceAnomaly)); err != nil {
			d.failureEmitter.Close()
			return nil, fmt.Errorf("create sequence anomaly emitter: %w", err)
		}
	}
	return d, nil
}

var _ pkgif.Dispatcher = (*Dispatcher)(nil)

// Claim 占用事件源
func (d *Dispatcher) Claim(source string) (pkgif.Source, error) {
	if d.closed.Load() {
		return nil, types.ErrBusClosed
	}
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", types.ErrInvalidEvent)
	}

	v, _ := d.sources.LoadOrStore(source, &sourceState{id: source})
	st := v.(*sourceState)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.claimed {
		return nil, fmt.Errorf("%w: %s", types.ErrSourceClaimed, source)
	}
	st.claimed = true
	st.generation++

	logger.Debug("事件源已占用", "source", source)
	return &sourceHandle{d: d, st: st, generation: st.generation}, nil
}

// Subscribe 订阅事件
func (d *Dispatcher) Subscribe(pattern types.Pattern, handler pkgif.EventHandler, opts ...pkgif.SubscribeOpt) (pkgif.EventSubscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if d.closed.Load() {
		return nil, types.ErrBusClosed
	}

	var settings pkgif.SubscribeSettings
	for _, opt := range opts {
		opt(&settings)
	}

	id := uuid.NewString()
	name := settings.Name
	if name == "" {
		name = "sub-" + log.TruncateID(id, 8)
	}
	sub := &subscription{
		d:       d,
		id:      id,
		name:    name,
		pattern: pattern,
		handler: handler,
	}
	if len(settings.Kinds) > 0 {
		sub.kinds = make(map[types.EventKind]struct{}, len(settings.Kinds))
		for _, k := range settings.Kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	d.subMu.Lock()
	old := *d.subs.Load()
	next := make([]*subscription, len(old), len(old)+1)
	copy(next, old)
	next = append(next, sub)
	d.subs.Store(&next)
	d.subMu.Unlock()

	logger.Debug("新增订阅", "name", name, "pattern", pattern.String())
	return sub, nil
}

// Subscribers 当前订阅数量
func (d *Dispatcher) Subscribers() int {
	return len(*d.subs.Load())
}

// Close 关闭分发器
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		if d.failureEmitter != nil {
			d.failureEmitter.Close()
		}
		if d.anomalyEmitter != nil {
			d.anomalyEmitter.Close()
		}
		logger.Debug("事件分发器已关闭")
	})
	return nil
}

// removeSub 从订阅表移除
func (d *Dispatcher) removeSub(sub *subscription) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	old := *d.subs.Load()
	next := make([]*subscription, 0, len(old))
	for _, s := range old {
		if s != sub {
			next = append(next, s)
		}
	}
	d.subs.Store(&next)
}

// ============================================================================
// 分发
// ============================================================================

// checkSequence 检查并记录源内序号，调用方持有 st.mu
func (d *Dispatcher) checkSequence(st *sourceState, seq uint64) {
	if !st.seen {
		st.seen = true
		st.last = seq
		return
	}

	switch {
	case seq <= st.last:
		d.metrics.SequenceAnomaly(st.id, true)
		if d.warnLimiter.Allow() {
			logger.Warn("事件序号回退",
				"source", st.id,
				"last", st.last,
				"got", seq)
		}
		d.emitAnomaly(types.EvtSequenceAnomaly{Source: st.id, Last: st.last, Got: seq, Regressed: true})
	case seq > st.last+1:
		d.metrics.SequenceAnomaly(st.id, false)
		logger.Debug("事件序号缺口",
			"source", st.id,
			"last", st.last,
			"got", seq)
		d.emitAnomaly(types.EvtSequenceAnomaly{Source: st.id, Last: st.last, Got: seq})
		st.last = seq
	default:
		st.last = seq
	}
}

// deliver 把事件依次交给匹配的订阅者，同一源同一时刻只有一个调用
func (d *Dispatcher) deliver(evt types.Event) int {
	start := d.clock.Now()
	delivered := 0

	for _, sub := range *d.subs.Load() {
		if !sub.accepts(evt) {
			continue
		}
		delivered++
		if panicked, err := sub.invoke(evt); err != nil {
			d.handlerFailed(sub, evt, err, panicked)
		}
	}

	d.metrics.EventPublished(evt.Source, delivered, d.clock.Since(start))
	return delivered
}

// handlerFailed 记录处理器失败
func (d *Dispatcher) handlerFailed(sub *subscription, evt types.Event, err error, panicked bool) {
	d.metrics.HandlerFailed(sub.name, panicked)

	if panicked {
		logger.Error("事件处理器 panic",
			"handler", sub.name,
			"event", evt.String(),
			"error", err)
	} else if d.warnLimiter.Allow() {
		logger.Warn("事件处理器返回错误",
			"handler", sub.name,
			"event", evt.String(),
			"error", err)
	}

	if d.failureEmitter != nil {
		d.failureEmitter.Emit(types.HandlerFailure{
			SubscriptionID: sub.id,
			Handler:        sub.name,
			Event:          evt,
			Err:            err,
			Panicked:       panicked,
			At:             d.clock.Now(),
		})
	}
}

func (d *Dispatcher) emitAnomaly(evt types.EvtSequenceAnomaly) {
	if d.anomalyEmitter != nil {
		d.anomalyEmitter.Emit(evt)
	}
}

// ============================================================================
// subscription
// ============================================================================

// subscription 分发器订阅
type subscription struct {
	d       *Dispatcher
	id      string
	name    string
	pattern types.Pattern
	kinds   map[types.EventKind]struct{}
	handler pkgif.EventHandler

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ pkgif.EventSubscription = (*subscription)(nil)

func (s *subscription) ID() string             { return s.id }
func (s *subscription) Name() string           { return s.name }
func (s *subscription) Pattern() types.Pattern { return s.pattern }

// Close 取消订阅
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.d.removeSub(s)
		logger.Debug("订阅已取消", "name", s.name)
	})
	return nil
}

// accepts 是否接收该事件
func (s *subscription) accepts(evt types.Event) bool {
	if s.closed.Load() {
		return false
	}
	if s.kinds != nil {
		if _, ok := s.kinds[evt.Kind]; !ok {
			return false
		}
	}
	return s.pattern.Match(evt.Origin)
}

// invoke 调用处理器，panic 转换为错误
func (s *subscription) invoke(evt types.Event) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("%w: %v", types.ErrHandlerPanic, r)
		}
	}()
	return false, s.handler(evt)
}

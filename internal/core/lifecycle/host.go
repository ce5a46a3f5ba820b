package lifecycle

import (
	"context"
	"errors"
	"sync"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// errUnspecifiedFailure Fail(nil) 时记录的错误
var errUnspecifiedFailure = errors.New("service reported failure")

// host 一个服务实例的宿主
//
// 每次启动创建新的 host，旧实例残留的 Ready/Fail 调用不会影响新实例。
type host struct {
	m   *Manager
	svc *service
	src pkgif.Source

	ctx    context.Context
	cancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once

	failed   chan error
	failOnce sync.Once
}

var _ pkgif.ServiceHost = (*host)(nil)

func newHost(m *Manager, svc *service, src pkgif.Source) *host {
	ctx, cancel := context.WithCancel(m.ctx)
	return &host{
		m:      m,
		svc:    svc,
		src:    src,
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		failed: make(chan error, 1),
	}
}

// ServiceID 服务 ID
func (h *host) ServiceID() string {
	return h.svc.spec.ID
}

// Settings 协议私有设置的副本
func (h *host) Settings() map[string]string {
	out := make(map[string]string, len(h.svc.spec.Settings))
	for k, v := range h.svc.spec.Settings {
		out[k] = v
	}
	return out
}

// Context 实例上下文
func (h *host) Context() context.Context {
	return h.ctx
}

// Ready 报告就绪
func (h *host) Ready() {
	h.readyOnce.Do(func() {
		close(h.ready)
	})
}

// Fail 报告不可恢复错误，只有第一次生效
func (h *host) Fail(err error) {
	if err == nil {
		err = errUnspecifiedFailure
	}
	h.failOnce.Do(func() {
		h.failed <- err
	})
}

// Emit 以本服务为源发布事件
func (h *host) Emit(kind types.EventKind, origin types.Selector, payload any) (types.Event, error) {
	if h.src == nil {
		return types.Event{}, types.ErrBusClosed
	}
	return h.src.Emit(kind, origin, payload)
}

// Publish 发布自带序号的事件记录
func (h *host) Publish(evt types.Event) error {
	if h.src == nil {
		return types.ErrBusClosed
	}
	return h.src.Publish(evt)
}

// Invalidate 使元数据失效
func (h *host) Invalidate(sel types.Selector) {
	if h.m.store != nil {
		h.m.store.Invalidate(sel)
	}
}

// PutMetadata 写入元数据
func (h *host) PutMetadata(sel types.Selector, attrs types.Attributes) {
	if h.m.store != nil {
		h.m.store.Put(sel, attrs)
	}
}

// close 结束实例：取消上下文并释放事件源
func (h *host) close() {
	h.cancel()
	if h.src != nil {
		h.src.Release()
	}
}

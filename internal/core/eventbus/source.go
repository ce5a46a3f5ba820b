package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// sourceState 事件源状态
//
// mu 保护序号与待分发队列，分发时不持有 mu。
// 同一时刻只有一个 goroutine 排空队列，源内事件按发布顺序到达处理器；
// 处理器内再次向同一源发布的事件进入队列，由正在排空的 goroutine 投递。
type sourceState struct {
	mu sync.Mutex
	id string

	claimed    bool
	generation uint64

	// last 已见过的最大序号
	last uint64
	seen bool

	// pending 待分发事件，delivering 为 true 时有 goroutine 正在排空
	pending    []types.Event
	delivering bool
}

// sourceHandle 某次 Claim 得到的发布端
//
// 序号跨越 Release 后的重新占用继续递增，服务重启不会让序号回退。
type sourceHandle struct {
	d          *Dispatcher
	st         *sourceState
	generation uint64
	released   atomic.Bool
}

var _ pkgif.Source = (*sourceHandle)(nil)

// ID 返回事件源 ID
func (h *sourceHandle) ID() string {
	return h.st.id
}

// Emit 以下一个序号发布事件
func (h *sourceHandle) Emit(kind types.EventKind, origin types.Selector, payload any) (types.Event, error) {
	if err := h.usable(); err != nil {
		return types.Event{}, err
	}
	if err := validate(kind, origin); err != nil {
		return types.Event{}, err
	}

	h.st.mu.Lock()
	evt := types.Event{
		Source:    h.st.id,
		Origin:    origin,
		Kind:      kind,
		Payload:   payload,
		Timestamp: h.d.clock.Now(),
		Sequence:  h.st.last + 1,
	}
	h.d.checkSequence(h.st, evt.Sequence)
	h.enqueueLocked(evt)
	return evt, nil
}

// Publish 发布调用方构造的事件记录
func (h *sourceHandle) Publish(evt types.Event) error {
	if err := h.usable(); err != nil {
		return err
	}
	if evt.Source == "" {
		evt.Source = h.st.id
	} else if evt.Source != h.st.id {
		return fmt.Errorf("%w: %s publishing as %s", types.ErrSourceMismatch, h.st.id, evt.Source)
	}
	if err := validate(evt.Kind, evt.Origin); err != nil {
		return err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = h.d.clock.Now()
	}

	h.st.mu.Lock()
	if evt.Sequence == 0 {
		evt.Sequence = h.st.last + 1
	}
	h.d.checkSequence(h.st, evt.Sequence)
	h.enqueueLocked(evt)
	return nil
}

// enqueueLocked 事件入队并在没有其他投递者时排空队列
//
// 调用方持有 st.mu，返回前释放。
func (h *sourceHandle) enqueueLocked(evt types.Event) {
	st := h.st
	st.pending = append(st.pending, evt)
	if st.delivering {
		st.mu.Unlock()
		return
	}
	st.delivering = true

	for len(st.pending) > 0 {
		next := st.pending[0]
		st.pending[0] = types.Event{}
		st.pending = st.pending[1:]
		st.mu.Unlock()

		h.d.deliver(next)

		st.mu.Lock()
	}
	st.pending = nil
	st.delivering = false
	st.mu.Unlock()
}

// Release 释放事件源，之后该句柄不可再发布
func (h *sourceHandle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.st.mu.Lock()
	if h.st.generation == h.generation {
		h.st.claimed = false
	}
	h.st.mu.Unlock()
	logger.Debug("事件源已释放", "source", h.st.id)
}

func (h *sourceHandle) usable() error {
	if h.released.Load() {
		return fmt.Errorf("%w: %s", types.ErrSourceReleased, h.st.id)
	}
	if h.d.closed.Load() {
		return types.ErrBusClosed
	}
	return nil
}

// validate 校验事件字段
func validate(kind types.EventKind, origin types.Selector) error {
	if kind == "" {
		return fmt.Errorf("%w: empty kind", types.ErrInvalidEvent)
	}
	if origin.IsEmpty() {
		return fmt.Errorf("%w: empty origin", types.ErrInvalidEvent)
	}
	return nil
}

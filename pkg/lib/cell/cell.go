// Package cell 提供响应式状态单元
//
// Cell 保存一个可变值，值变化时同步、按序、非重入地通知观察者：
//   - 同步：Set 在当前通知轮次内于调用方 goroutine 上执行观察者
//   - 按序：所有观察者看到的变化顺序与 Set 的生效顺序一致
//   - 非重入：观察者内部再次 Set 不会嵌套调用观察者，新变化排队到当前轮次之后
//
// 并发的 Set 由正在执行通知轮次的 goroutine 代为投递。
package cell

import (
	"context"
	"sync"
	"sync/atomic"
)

// Observer 观察者回调，参数为旧值和新值
type Observer[T any] func(old, new T)

// Option Cell 选项
type Option[T any] func(*Cell[T])

// WithEqual 设置相等判断，相等的 Set 不产生通知
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(c *Cell[T]) {
		c.equal = eq
	}
}

type change[T any] struct {
	old, new T
}

type observer[T any] struct {
	fn      Observer[T]
	removed atomic.Bool
}

// Cell 响应式状态单元
type Cell[T any] struct {
	mu        sync.Mutex
	value     T
	equal     func(a, b T) bool
	observers []*observer[T]
	queue     []change[T]
	notifying bool

	// changed 每次值变化时关闭并替换，供 Wait 使用
	changed chan struct{}
}

// New 创建 Cell
func New[T any](initial T, opts ...Option[T]) *Cell[T] {
	c := &Cell[T]{
		value:   initial,
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewComparable 创建以 == 判断相等的 Cell
func NewComparable[T comparable](initial T) *Cell[T] {
	return New(initial, WithEqual(func(a, b T) bool { return a == b }))
}

// Get 返回当前值
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set 设置新值并通知观察者
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.setLocked(v)
}

// Update 基于当前值计算新值
//
// fn 在锁内执行，不得访问同一个 Cell。
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	c.setLocked(fn(c.value))
}

// setLocked 调用时必须持有 c.mu，返回前释放
func (c *Cell[T]) setLocked(v T) {
	old := c.value
	if c.equal != nil && c.equal(old, v) {
		c.mu.Unlock()
		return
	}
	c.value = v
	close(c.changed)
	c.changed = make(chan struct{})
	c.queue = append(c.queue, change[T]{old: old, new: v})

	if c.notifying {
		// 重入或并发：交给当前轮次投递
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.queue) > 0 {
		ch := c.queue[0]
		c.queue = c.queue[1:]
		obs := make([]*observer[T], len(c.observers))
		copy(obs, c.observers)
		c.mu.Unlock()

		c.notify(obs, ch)

		c.mu.Lock()
	}
	c.notifying = false
	c.queue = nil
	c.mu.Unlock()
}

// notify 执行一次变化的观察者，调用时不持有 c.mu
//
// 观察者 panic 时结束当前轮次后再向上传播，尚未投递的变化留给下一次 Set。
func (c *Cell[T]) notify(obs []*observer[T], ch change[T]) {
	done := false
	defer func() {
		if !done {
			c.mu.Lock()
			c.notifying = false
			c.mu.Unlock()
		}
	}()
	for _, o := range obs {
		if !o.removed.Load() {
			o.fn(ch.old, ch.new)
		}
	}
	done = true
}

// Observe 注册观察者，返回取消函数
//
// 取消后观察者不再收到后续通知，可重复调用。
func (c *Cell[T]) Observe(fn Observer[T]) (cancel func()) {
	o := &observer[T]{fn: fn}
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()

	return func() {
		if o.removed.Swap(true) {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, x := range c.observers {
			if x == o {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				break
			}
		}
	}
}

// Changed 返回在下一次值变化时关闭的通道
func (c *Cell[T]) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Wait 阻塞直到 pred 对当前值成立
//
// 返回满足条件的值；ctx 取消时返回最近一次看到的值与 ctx.Err()。
// Wait 只观察 Set 之后的最新值，中间值可能被跳过。
func (c *Cell[T]) Wait(ctx context.Context, pred func(T) bool) (T, error) {
	for {
		c.mu.Lock()
		v := c.value
		ch := c.changed
		c.mu.Unlock()

		if pred(v) {
			return v, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Package interfaces 定义 chatcore 公共接口
//
// 本文件定义观测总线与事件分发器接口。
package interfaces

import (
	"github.com/dep2p/go-chatcore/pkg/types"
)

// ============================================================================
//                              观测总线
// ============================================================================

// EventBus 类型化的进程内观测总线
//
// 核心组件通过它发布 HandlerFailure、服务状态变化等观测事件。
// 事件按 Go 类型路由，订阅时传入该类型的指针，例如 new(types.HandlerFailure)。
type EventBus interface {
	// Subscribe 订阅指定类型的事件
	Subscribe(eventType interface{}, opts ...SubscriptionOpt) (Subscription, error)

	// Emitter 获取指定事件类型的发射器
	Emitter(eventType interface{}, opts ...EmitterOpt) (Emitter, error)

	// GetAllEventTypes 返回所有已注册的事件类型
	GetAllEventTypes() []interface{}
}

// Subscription 观测订阅
type Subscription interface {
	// Out 返回接收事件的通道
	Out() <-chan interface{}

	// Close 取消订阅
	Close() error
}

// Emitter 观测事件发射器
type Emitter interface {
	// Emit 发射事件，订阅者缓冲区满时丢弃，不阻塞调用方
	Emit(event interface{}) error

	// Close 关闭发射器
	Close() error
}

// SubscriptionOpt 订阅选项函数类型
type SubscriptionOpt func(*SubscriptionSettings)

// EmitterOpt 发射器选项函数类型
type EmitterOpt func(*EmitterSettings)

// SubscriptionSettings 订阅设置
type SubscriptionSettings struct {
	Buffer int
}

// EmitterSettings 发射器设置
type EmitterSettings struct {
	Stateful bool
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = size
	}
}

// Stateful 设置发射器为有状态模式，新订阅者立即收到最后一个事件
func Stateful() EmitterOpt {
	return func(s *EmitterSettings) {
		s.Stateful = true
	}
}

// ============================================================================
//                              事件分发器
// ============================================================================

// EventHandler 事件处理器
//
// 在发布方 goroutine 上同步执行，应尽快返回或转交给自己的 goroutine。
// 处理器内向同一事件源发布（例如通过 Context.Act 回复）不会阻塞，
// 新事件在当前事件的所有处理器返回后投递。
// 返回的错误与 panic 都会被记录为 HandlerFailure，不影响其他处理器。
type EventHandler func(evt types.Event) error

// Dispatcher 按 Selector 模式把事件分发给处理器
type Dispatcher interface {
	// Claim 占用事件源，返回只能以该源发布事件的 Source
	Claim(source string) (Source, error)

	// Subscribe 订阅 Origin 匹配 pattern 的事件
	Subscribe(pattern types.Pattern, handler EventHandler, opts ...SubscribeOpt) (EventSubscription, error)

	// Close 关闭分发器，之后的发布返回 ErrBusClosed
	Close() error
}

// Source 某个服务独占的事件发布端
type Source interface {
	// ID 事件源 ID，即服务 ID
	ID() string

	// Emit 以自增序号与当前时间发布事件
	Emit(kind types.EventKind, origin types.Selector, payload any) (types.Event, error)

	// Publish 发布调用方构造的事件记录
	//
	// Source 为空时填充为本源，不一致时返回 ErrSourceMismatch。
	// Sequence 为 0 时自动分配。
	Publish(evt types.Event) error

	// Release 释放事件源
	Release()
}

// EventSubscription 分发器订阅
type EventSubscription interface {
	// ID 订阅 ID
	ID() string

	// Name 处理器名称
	Name() string

	// Pattern 订阅模式
	Pattern() types.Pattern

	// Close 取消订阅，可重复调用
	Close() error
}

// SubscribeSettings 分发器订阅设置
type SubscribeSettings struct {
	Name  string
	Kinds []types.EventKind
}

// SubscribeOpt 分发器订阅选项
type SubscribeOpt func(*SubscribeSettings)

// WithName 设置处理器名称，用于日志与 HandlerFailure
func WithName(name string) SubscribeOpt {
	return func(s *SubscribeSettings) {
		s.Name = name
	}
}

// WithKinds 只接收指定种类的事件
func WithKinds(kinds ...types.EventKind) SubscribeOpt {
	return func(s *SubscribeSettings) {
		s.Kinds = append(s.Kinds, kinds...)
	}
}

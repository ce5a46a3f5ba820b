// Package types 定义 chatcore 的基础类型
//
// 本文件定义事件记录以及核心组件发出的观测事件。
package types

import (
	"fmt"
	"time"
)

// ============================================================================
//                              Event - 事件记录
// ============================================================================

// EventKind 事件种类，由协议实现定义，例如 "message.received"
type EventKind string

// Event 协议服务发往事件总线的事件记录
//
// 发出后不可修改。Sequence 在同一 Source 内单调递增，只用于检测缺口与乱序，
// 不代表全局顺序。Payload 由协议定义，接收方不得修改。
type Event struct {
	// Source 发出事件的服务 ID
	Source string

	// Origin 事件来源实体
	Origin Selector

	// Kind 事件种类
	Kind EventKind

	// Payload 事件负载
	Payload any

	// Timestamp 事件时间
	Timestamp time.Time

	// Sequence 源内序号
	Sequence uint64
}

// String 返回简短描述，用于日志
func (e Event) String() string {
	return fmt.Sprintf("%s#%d %s @%s", e.Source, e.Sequence, e.Kind, e.Origin)
}

// ============================================================================
//                              观测事件
// ============================================================================

// HandlerFailure 事件处理器失败
//
// 失败仅被记录与观测，不会中断对其他处理器的投递，也不会返回给发布者。
type HandlerFailure struct {
	// SubscriptionID 订阅 ID
	SubscriptionID string

	// Handler 处理器名称
	Handler string

	// Event 触发失败的事件
	Event Event

	// Err 处理器返回的错误或由 panic 转换的错误
	Err error

	// Panicked 是否由 panic 引起
	Panicked bool

	// At 失败时间
	At time.Time
}

// Error 实现 error
func (f HandlerFailure) Error() string {
	return fmt.Sprintf("handler %s failed on %s: %v", f.Handler, f.Event, f.Err)
}

// Unwrap 返回底层错误
func (f HandlerFailure) Unwrap() error {
	return f.Err
}

// EvtServiceStateChanged 服务状态变化
type EvtServiceStateChanged struct {
	ServiceID string
	Platform  string
	Old       ServiceState
	New       ServiceState
	Err       error
	At        time.Time
}

// EvtSequenceAnomaly 源内序号异常
type EvtSequenceAnomaly struct {
	// Source 事件源
	Source string

	// Last 此前见过的最大序号
	Last uint64

	// Got 本次序号
	Got uint64

	// Regressed true 表示序号回退（乱序），false 表示出现缺口
	Regressed bool
}

// EvtMetadataInvalidated 元数据失效
type EvtMetadataInvalidated struct {
	// Selector 失效的条目，Prefix 为 true 时是前缀
	Selector Selector
	Prefix   bool
}

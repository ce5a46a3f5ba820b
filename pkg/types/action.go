package types

import (
	"fmt"
	"sort"
)

// ============================================================================
//                              Capabilities
// ============================================================================

// ActionKind 动作种类，例如 "message.send"
type ActionKind string

// Capabilities 协议声明的能力集合
//
// Actions 为可执行的动作种类，Segments 为协议定义的 Selector 段名。
type Capabilities struct {
	actions  map[ActionKind]struct{}
	segments map[string]struct{}
}

// NewCapabilities 构造能力集合
func NewCapabilities(actions []ActionKind, segments []string) Capabilities {
	c := Capabilities{
		actions:  make(map[ActionKind]struct{}, len(actions)),
		segments: make(map[string]struct{}, len(segments)),
	}
	for _, a := range actions {
		c.actions[a] = struct{}{}
	}
	for _, s := range segments {
		c.segments[s] = struct{}{}
	}
	return c
}

// CanAct 是否支持动作
func (c Capabilities) CanAct(kind ActionKind) bool {
	_, ok := c.actions[kind]
	return ok
}

// HasSegment 是否定义了段名
func (c Capabilities) HasSegment(key string) bool {
	_, ok := c.segments[key]
	return ok
}

// Actions 返回排序后的动作列表
func (c Capabilities) Actions() []ActionKind {
	out := make([]ActionKind, 0, len(c.actions))
	for a := range c.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Segments 返回排序后的段名列表
func (c Capabilities) Segments() []string {
	out := make([]string, 0, len(c.segments))
	for s := range c.segments {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
//                              Action
// ============================================================================

// Action 动作描述
type Action struct {
	// Kind 动作种类
	Kind ActionKind

	// Target 动作目标，为空时使用 Context 的目标
	Target Selector

	// Params 动作参数，由协议定义
	Params map[string]any
}

// ActionRequest 交给协议实现执行的完整请求
type ActionRequest struct {
	// ServiceID 代表 Self 的服务，协议据此选择连接
	ServiceID string

	// Self 执行动作的账号
	Self Selector

	// Target 已补全的目标
	Target Selector

	// Via 可选的中转实体，例如私聊所在的群
	Via Selector

	// Action 动作
	Action Action
}

// ActionResult 动作执行结果
type ActionResult struct {
	// Ref 动作产生的实体，例如新消息的 Selector
	Ref Selector

	// Data 协议返回的附加数据
	Data map[string]any
}

// ActionError 平台报告的动作失败
//
// 核心原样返回给调用方，不做重试。
type ActionError struct {
	Platform string
	Kind     ActionKind
	Code     string
	Message  string
	Err      error
}

// Error 实现 error
func (e *ActionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s action %s failed [%s]: %s", e.Platform, e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s action %s failed: %s", e.Platform, e.Kind, msg)
}

// Unwrap 返回底层错误
func (e *ActionError) Unwrap() error {
	return e.Err
}

// ============================================================================
//                              Attributes
// ============================================================================

// Attributes 实体属性，属性名到值
type Attributes map[string]any

// Clone 浅拷贝
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Pick 取出指定属性，names 为空时返回全部
func (a Attributes) Pick(names ...string) Attributes {
	if len(names) == 0 {
		return a.Clone()
	}
	out := make(Attributes, len(names))
	for _, n := range names {
		if v, ok := a[n]; ok {
			out[n] = v
		}
	}
	return out
}

// String 读取字符串属性
func (a Attributes) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok
}

// Freshness 元数据条目的新鲜度
type Freshness int

const (
	// FreshnessAbsent 无数据，或最近一次拉取失败
	FreshnessAbsent Freshness = iota
	// FreshnessValid 有效
	FreshnessValid
	// FreshnessStale 已过期，下次读取时重新拉取
	FreshnessStale
)

// String 返回字符串
func (f Freshness) String() string {
	switch f {
	case FreshnessAbsent:
		return "absent"
	case FreshnessValid:
		return "valid"
	case FreshnessStale:
		return "stale"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

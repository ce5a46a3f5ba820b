// Package types 定义 chatcore 的基础类型
//
// 本文件定义所有公共错误。
package types

import "errors"

// ============================================================================
//                              寻址错误
// ============================================================================

var (
	// ErrMalformedSelector Selector 构造失败（键为空或重复）
	ErrMalformedSelector = errors.New("malformed selector")

	// ErrInvalidPattern 无效的匹配模式
	ErrInvalidPattern = errors.New("invalid selector pattern")
)

// ============================================================================
//                              元数据错误
// ============================================================================

var (
	// ErrMetadataUnavailable 元数据暂不可用，调用方可稍后重试
	ErrMetadataUnavailable = errors.New("metadata unavailable")
)

// ============================================================================
//                              关系与动作错误
// ============================================================================

var (
	// ErrUnresolvedCapability 没有活跃服务支持目标平台
	ErrUnresolvedCapability = errors.New("unresolved capability")

	// ErrUnsupportedAction 协议未声明该动作
	ErrUnsupportedAction = errors.New("unsupported action")
)

// ============================================================================
//                              事件总线错误
// ============================================================================

var (
	// ErrBusClosed 事件总线已关闭
	ErrBusClosed = errors.New("event bus closed")

	// ErrInvalidEvent 无效的事件记录
	ErrInvalidEvent = errors.New("invalid event record")

	// ErrSourceClaimed 事件源已被其他服务占用
	ErrSourceClaimed = errors.New("event source already claimed")

	// ErrSourceMismatch 事件的来源与发布者不一致
	ErrSourceMismatch = errors.New("event source mismatch")

	// ErrSourceReleased 事件源已释放
	ErrSourceReleased = errors.New("event source released")

	// ErrHandlerPanic 处理器发生 panic
	ErrHandlerPanic = errors.New("event handler panicked")
)

// ============================================================================
//                              服务生命周期错误
// ============================================================================

var (
	// ErrServiceExists 服务 ID 重复
	ErrServiceExists = errors.New("service already registered")

	// ErrServiceNotFound 服务不存在
	ErrServiceNotFound = errors.New("service not found")

	// ErrUnknownDependency 依赖的服务未注册
	ErrUnknownDependency = errors.New("unknown service dependency")

	// ErrDependencyCycle 服务依赖成环
	ErrDependencyCycle = errors.New("service dependency cycle")

	// ErrDependencyFailed 依赖的服务处于 Failed 状态
	ErrDependencyFailed = errors.New("service dependency failed")

	// ErrStartTimeout 启动超时未收到就绪信号
	ErrStartTimeout = errors.New("service start timeout")

	// ErrShutdownTimeout 关闭超时
	ErrShutdownTimeout = errors.New("service shutdown timeout")

	// ErrServiceNotActive 服务不在运行中
	ErrServiceNotActive = errors.New("service not active")

	// ErrManagerStarted 管理器已启动
	ErrManagerStarted = errors.New("lifecycle manager already started")

	// ErrManagerStopped 管理器已停止
	ErrManagerStopped = errors.New("lifecycle manager stopped")

	// ErrInvalidServiceSpec 服务描述无效
	ErrInvalidServiceSpec = errors.New("invalid service spec")
)

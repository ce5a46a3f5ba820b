package chatcore

import (
	"errors"

	"github.com/dep2p/go-chatcore/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// Core 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted Core 未启动
	ErrNotStarted = errors.New("core not started")

	// ErrAlreadyStarted Core 已启动
	ErrAlreadyStarted = errors.New("core already started")

	// ErrCoreClosed Core 已关闭
	ErrCoreClosed = errors.New("core closed")

	// ErrProtocolExists 同名协议重复注册
	ErrProtocolExists = errors.New("protocol already registered")

	// ────────────────────────────────────────────────────────────────────────
	// 组件错误（与 pkg/types 相同）
	// ────────────────────────────────────────────────────────────────────────

	ErrMalformedSelector    = types.ErrMalformedSelector
	ErrMetadataUnavailable  = types.ErrMetadataUnavailable
	ErrUnresolvedCapability = types.ErrUnresolvedCapability
	ErrUnsupportedAction    = types.ErrUnsupportedAction
	ErrBusClosed            = types.ErrBusClosed
	ErrSourceClaimed        = types.ErrSourceClaimed
	ErrServiceNotFound      = types.ErrServiceNotFound
	ErrDependencyCycle      = types.ErrDependencyCycle
	ErrUnknownDependency    = types.ErrUnknownDependency
	ErrDependencyFailed     = types.ErrDependencyFailed
	ErrStartTimeout         = types.ErrStartTimeout
	ErrShutdownTimeout      = types.ErrShutdownTimeout
)

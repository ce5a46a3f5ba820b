// Package interfaces 定义 chatcore 公共接口
//
// 本文件定义关系（Context）相关的动作执行契约。
package interfaces

import (
	"context"

	"github.com/dep2p/go-chatcore/pkg/types"
)

// ActFunc 执行动作请求
type ActFunc func(ctx context.Context, req types.ActionRequest) (types.ActionResult, error)

// ActionMiddleware 动作中间件
//
// 先注册的中间件位于外层。中间件可以改写请求、记录结果或直接返回，
// 但核心本身不提供重试。
type ActionMiddleware func(next ActFunc) ActFunc

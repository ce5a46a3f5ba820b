// Package interfaces 定义 chatcore 公共接口
//
// 本文件定义协议实现契约：平台适配器接入核心的唯一边界。
package interfaces

import (
	"context"

	"github.com/dep2p/go-chatcore/pkg/types"
)

// Protocol 协议实现
//
// 一个 Protocol 负责一个平台（Name 即 Selector 的 platform 段的值），
// 可以同时运行多个服务实例（例如同一平台的多个账号连接）。
type Protocol interface {
	// Name 平台名
	Name() string

	// Capabilities 支持的动作与段名
	Capabilities() types.Capabilities

	// Start 打开一个服务实例
	//
	// 必须尽快返回，连接过程在协议自己的 goroutine 中进行；连接就绪后调用
	// host.Ready()，运行中出现不可恢复错误时调用 host.Fail(err)。
	Start(ctx context.Context, host ServiceHost) (Session, error)

	// Stop 关闭服务实例
	//
	// ctx 带有关闭超时，超时后管理器不再等待。
	Stop(ctx context.Context, session Session) error

	// Fetch 拉取实体属性，names 为空表示全部
	//
	// 实体不存在或无法获取时返回 types.ErrMetadataUnavailable。
	Fetch(ctx context.Context, sel types.Selector, names []string) (types.Attributes, error)

	// Act 执行动作
	//
	// 平台报告的失败应返回 *types.ActionError，核心原样透传。
	Act(ctx context.Context, req types.ActionRequest) (types.ActionResult, error)
}

// Querier 可选：枚举匹配模式的实体
//
// 协议实现该接口后 Context.Query 才可用。serviceID 为代表 Self 的服务。
type Querier interface {
	Query(ctx context.Context, serviceID string, pattern types.Pattern) ([]types.Selector, error)
}

// MetadataModifier 可选：修改平台上的实体属性
//
// 返回修改后平台确认的属性，核心据此更新元数据缓存。
type MetadataModifier interface {
	ModifyMeta(ctx context.Context, serviceID string, sel types.Selector, attrs types.Attributes) (types.Attributes, error)
}

// Session 协议返回的服务实例句柄，对核心不透明
type Session interface{}

// ServiceHost 管理器交给协议服务实例的宿主
type ServiceHost interface {
	// ServiceID 服务 ID
	ServiceID() string

	// Settings 服务配置中的协议私有设置
	Settings() map[string]string

	// Context 服务实例上下文，实例停止时取消
	Context() context.Context

	// Ready 报告就绪，Starting -> Active
	Ready()

	// Fail 报告不可恢复错误，Starting/Active -> Failed
	Fail(err error)

	// Emit 以本服务为源发布事件
	Emit(kind types.EventKind, origin types.Selector, payload any) (types.Event, error)

	// Publish 发布自带序号的事件记录（传输层可能乱序时使用）
	Publish(evt types.Event) error

	// Invalidate 平台侧实体变化时使元数据失效
	Invalidate(sel types.Selector)

	// PutMetadata 主动写入从事件中得到的属性
	PutMetadata(sel types.Selector, attrs types.Attributes)
}

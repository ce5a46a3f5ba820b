// Package interfaces 定义 chatcore 公共接口
//
// 本文件定义服务生命周期管理接口。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-chatcore/pkg/lib/cell"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// ServiceSpec 服务描述
type ServiceSpec struct {
	// ID 服务 ID，同时是事件源 ID
	ID string

	// Protocol 协议实现
	Protocol Protocol

	// DependsOn 依赖的服务 ID
	DependsOn []string

	// Restart 失败后的重启策略
	Restart types.RestartPolicy

	// StartTimeout 等待就绪信号的超时，0 使用管理器默认值
	StartTimeout time.Duration

	// ShutdownTimeout 关闭超时，0 使用管理器默认值
	ShutdownTimeout time.Duration

	// Settings 协议私有设置
	//
	// 键 AccountSetting 声明服务登录的账号，用于按 Self 选择服务。
	Settings map[string]string
}

// AccountSetting 服务设置中账号的键，同时是 Selector 中账号段的名字
const AccountSetting = "account"

// LifecycleManager 服务生命周期管理器
type LifecycleManager interface {
	// Register 注册服务，必须在 Start 之前调用
	Register(spec ServiceSpec) error

	// Start 校验依赖图并启动所有服务
	Start(ctx context.Context) error

	// Stop 按依赖逆序关闭所有服务
	Stop(ctx context.Context) error

	// Restart 循环单个服务：Active 服务先关闭，Failed 服务直接回到 Pending
	Restart(ctx context.Context, id string) error

	// Status 返回服务当前状态
	Status(id string) (types.ServiceStatus, error)

	// Watch 返回服务的状态单元
	Watch(id string) (*cell.Cell[types.ServiceStatus], error)

	// WaitState 等待服务进入任一指定状态
	WaitState(ctx context.Context, id string, states ...types.ServiceState) (types.ServiceStatus, error)

	// Services 返回按注册顺序排列的服务 ID
	Services() []string
}

// ProtocolDirectory 活跃协议目录
//
// 只包含至少有一个 Active 服务的协议。
type ProtocolDirectory interface {
	FetcherResolver

	// Resolve 返回平台的活跃协议与提供它的服务 ID
	Resolve(platform string) (Protocol, string, bool)

	// ResolveAccount 返回代表 self 账号的活跃服务
	//
	// self 的 account 段与服务的账号设置或服务 ID 相同即匹配；没有匹配时，
	// 只有平台上恰好一个活跃服务才回退到它。
	ResolveAccount(self types.Selector) (Protocol, string, bool)

	// Platforms 返回所有活跃平台
	Platforms() []string
}

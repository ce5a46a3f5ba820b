// Package interfaces 定义 chatcore 的公共接口
//
// 本包只包含接口与少量选项函数，数据结构定义在 pkg/types 中。
// 核心组件（internal/core/*）实现这些接口，协议实现与应用代码只依赖本包。
//
// # 文件组织
//
// 协议契约（由各平台适配器实现）：
//   - protocol.go       - Protocol, ServiceHost, Session
//
// 核心组件（一个接口文件 = 一个实现目录）：
//   - eventbus.go       - 观测总线 EventBus 与事件分发 Dispatcher, Source
//   - metadata.go       - 元数据存储 MetadataStore, Fetcher, FetcherResolver
//   - lifecycle.go      - 服务生命周期 LifecycleManager, ProtocolDirectory
//   - relationship.go   - 动作中间件 ActionMiddleware
//
// # 依赖方向
//
//	应用 → interfaces → types
//	internal/core → interfaces → types
//
// 协议实现不得导入 internal/ 下的包。
package interfaces

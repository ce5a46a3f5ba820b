// Package types 定义 chatcore 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 chatcore 内部包。
// 所有类型都是值类型，用于在协议实现、核心组件与应用逻辑之间传递数据。
//
// # 文件组织
//
// 寻址:
//   - selector.go   - Selector, Pair（有序键值路径，结构相等与哈希）
//   - pattern.go    - Pattern（精确/通配/前缀匹配）
//
// 事件:
//   - events.go     - Event 记录, HandlerFailure 以及核心观测事件
//
// 服务:
//   - service.go    - ServiceState, ServiceStatus, RestartPolicy
//
// 动作与元数据:
//   - action.go     - Capabilities, Action, ActionRequest, ActionResult, ActionError, Attributes
//
// 错误:
//   - errors.go     - 公共错误定义
//
// # 寻址模型
//
// 各平台不定义自己的实体类型层级，统一用扁平的 Selector 加能力集合描述：
//
//	sel := types.MustSelector(
//	    types.P("platform", "irc"),
//	    types.P("land", "#chat"),
//	    types.P("member", "alice"),
//	)
//	sel.String() // platform=irc/land=#chat/member=alice
//
// Selector 的段只能是字符串键值，不能嵌套其他 Selector，因此寻址无环且可直接比较。
package types

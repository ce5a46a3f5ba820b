// Package lifecycle 实现服务生命周期管理
//
// 每个已注册的服务是一个协议实现的运行实例，状态机为：
//
//	Pending -> Starting -> Active -> Stopping -> Stopped
//	    \          \          \
//	     +----------+----------+--> Failed
//
// 规则：
//   - 服务在所有依赖进入 Active 之前停留在 Pending；任一依赖 Failed 时直接进入
//     Failed（ErrDependencyFailed），依赖恢复后回到 Pending，不消耗重启次数
//   - Starting 中协议调用 host.Ready() 进入 Active；返回错误、host.Fail 或
//     StartTimeout 到期进入 Failed
//   - 依赖离开 Active 时，依赖者被关闭并回到 Pending，依赖者不会比依赖活得更久
//   - Failed 后按 RestartPolicy 延迟回到 Pending，策略用尽后等待手动 Restart
//   - 全局关闭按依赖逆序分层进行，每个服务受 ShutdownTimeout 约束
//
// 只有在 Active 状态的服务会出现在 Directory 中，元数据存储与关系解析
// 通过 Directory 按平台找到协议。
package lifecycle

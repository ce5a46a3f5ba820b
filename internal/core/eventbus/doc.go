// Package eventbus 实现事件分发与观测总线
//
// 包含两部分：
//   - Dispatcher：把协议服务发出的 types.Event 按 Origin 模式分发给处理器
//   - Bus：按 Go 类型路由的观测总线，承载 HandlerFailure、服务状态变化等
//
// # 发布
//
// 只有占用了事件源的一方可以以该源发布：
//
//	src, _ := d.Claim("irc-main")
//	defer src.Release()
//	src.Emit("message.received", origin, payload)
//
// Emit 分配源内自增序号与时间戳。Publish 接受协议自带序号的记录，
// 序号回退只记录与计数，不拒绝。
//
// # 订阅
//
//	sub, _ := d.Subscribe(types.PrefixOf(land), handle,
//	    pkgif.WithName("printer"),
//	    pkgif.WithKinds("message.received"))
//	defer sub.Close()
//
// 处理器在发布方 goroutine 上按订阅顺序同步调用。返回的错误与 panic
// 被转换为 types.HandlerFailure 发到观测总线，其余处理器照常收到事件。
//
// # 顺序
//
// 同一事件源内严格按发布顺序投递；不同事件源之间没有顺序保证。
package eventbus

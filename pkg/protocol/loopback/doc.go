// Package loopback 提供进程内的协议实现
//
// loopback 不连接任何平台：实体属性保存在内存中，动作被记录并以事件回显。
// 用于测试、示例与命令行演示，也是编写真实协议适配器的参考。
//
// 使用示例：
//
//	p := loopback.New("irc")
//	p.SetEntity(alice, types.Attributes{"nickname": "Alice"})
//	core.Register(pkgif.ServiceSpec{ID: "irc-main", Protocol: p})
//	...
//	p.Inject("irc-main", "message.received", alice, "hello")
package loopback

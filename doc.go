// Package chatcore 提供多平台聊天机器人框架的协议无关核心
//
// chatcore 不连接任何聊天平台，平台由协议实现（pkg/interfaces.Protocol）接入。
// 核心负责：
//
//   - Selector: 以有序键值对寻址任何平台上的实体
//   - 服务生命周期: 按依赖顺序启动、监督、重启与关闭协议服务
//   - 事件分发: 按 Selector 模式把平台事件分发给处理器
//   - 元数据: 缓存实体属性，未命中时向协议拉取
//   - 关系上下文: 以“谁对谁”的关系执行动作
//
// # 快速开始
//
//	irc := loopback.New("irc")
//
//	core, err := chatcore.Start(ctx,
//	    chatcore.WithProtocol(irc),
//	    chatcore.WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
//	)
//	if err != nil {
//	    return err
//	}
//	defer core.Close()
//
//	land := types.MustSelector(types.P("platform", "irc"), types.P("land", "#chat"))
//	core.Subscribe(types.PrefixOf(land), func(evt types.Event) error {
//	    rc, err := core.For(me, evt.Origin.Parent())
//	    if err != nil {
//	        return err
//	    }
//	    _, err = rc.Act(ctx, types.Action{Kind: "message.send", Params: map[string]any{"text": "pong"}})
//	    return err
//	})
//
// # 组件
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Core（本包）                                             │
//	├──────────────┬──────────────┬──────────────┬─────────────┤
//	│  lifecycle   │  eventbus    │  metadata    │ relationship│
//	│  服务状态机   │  分发 + 观测  │  LRU + 合并   │  Context    │
//	├──────────────┴──────────────┴──────────────┴─────────────┤
//	│  metrics（prometheus）  config（JSON/YAML）  fx 组装       │
//	└──────────────────────────────────────────────────────────┘
package chatcore

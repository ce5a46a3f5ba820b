// Package relationship 实现关系上下文
//
// Context 描述“谁（Self）对谁（Target）说话，可能经由谁（Via）”，
// 并绑定当前为目标平台提供服务的协议。动作、元数据读取与 Selector 补全
// 都通过 Context 完成。
//
// 解析规则：
//   - Target 的 platform 段决定协议，平台没有 Active 服务时返回 types.ErrUnresolvedCapability
//   - Self 必须属于同一平台
//   - Context 不缓存，协议失效后旧 Context 的动作由协议自己报告错误
//
// 动作执行：
//
//	全局中间件（先注册者在外） -> Context.Use 中间件 -> Protocol.Act
//
// 动作错误原样返回，核心不做重试。
package relationship

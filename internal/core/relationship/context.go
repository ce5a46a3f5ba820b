package relationship

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// Context 一次解析得到的关系上下文
//
// 创建后不可变，Use 返回新的 Context。
type Context struct {
	self   types.Selector
	target types.Selector
	via    types.Selector

	platform  string
	serviceID string
	protocol  pkgif.Protocol
	caps      types.Capabilities

	store   pkgif.MetadataStore
	metrics *metrics.Metrics
	clock   clock.Clock

	middlewares []pkgif.ActionMiddleware
}

// Self 执行动作的账号
func (c *Context) Self() types.Selector { return c.self }

// Target 对话目标
func (c *Context) Target() types.Selector { return c.target }

// Via 中转实体，可能为空
func (c *Context) Via() types.Selector { return c.via }

// Platform 平台名
func (c *Context) Platform() string { return c.platform }

// ServiceID 提供协议的服务
func (c *Context) ServiceID() string { return c.serviceID }

// Capabilities 协议能力
func (c *Context) Capabilities() types.Capabilities { return c.caps }

// Can 协议是否支持动作
func (c *Context) Can(kind types.ActionKind) bool {
	return c.caps.CanAct(kind)
}

// Use 返回追加了中间件的新 Context
func (c *Context) Use(mw ...pkgif.ActionMiddleware) *Context {
	next := *c
	next.middlewares = make([]pkgif.ActionMiddleware, 0, len(c.middlewares)+len(mw))
	next.middlewares = append(next.middlewares, c.middlewares...)
	next.middlewares = append(next.middlewares, mw...)
	return &next
}

// Complete 用 Target、Via、Self 的前导段补全部分 Selector
//
// 例如 Target 为 platform=irc/land=#chat 时，member=bob 补全为
// platform=irc/land=#chat/member=bob。
func (c *Context) Complete(sel types.Selector) types.Selector {
	if sel.IsEmpty() {
		return sel
	}
	for _, base := range []types.Selector{c.target, c.via, c.self} {
		if sel.Has("platform") {
			break
		}
		if base.IsEmpty() {
			continue
		}
		sel = sel.Mixin(base)
	}
	return sel
}

// Act 执行动作
//
// 目标为空时使用 Context 的 Target，部分目标按 Complete 补全。
func (c *Context) Act(ctx context.Context, action types.Action) (types.ActionResult, error) {
	target := c.target
	if !action.Target.IsEmpty() {
		target = c.Complete(action.Target)
	}
	if p := target.Platform(); p != c.platform {
		return types.ActionResult{}, fmt.Errorf("%w: target %s is not on platform %s",
			types.ErrUnresolvedCapability, target, c.platform)
	}
	if !c.caps.CanAct(action.Kind) {
		return types.ActionResult{}, fmt.Errorf("%w: %s does not support %s",
			types.ErrUnsupportedAction, c.platform, action.Kind)
	}
	action.Target = target

	req := types.ActionRequest{
		ServiceID: c.serviceID,
		Self:      c.self,
		Target:    target,
		Via:       c.via,
		Action:    action,
	}

	// 先注册者在外层
	var call pkgif.ActFunc = c.protocol.Act
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		call = c.middlewares[i](call)
	}

	start := c.clock.Now()
	res, err := call(ctx, req)
	c.metrics.ActionExecuted(c.platform, action.Kind, err, c.clock.Since(start))
	if err != nil {
		logger.Debug("动作执行失败",
			"platform", c.platform,
			"kind", action.Kind,
			"target", target.String(),
			"error", err)
	}
	return res, err
}

// Meta 读取 Target 的属性
func (c *Context) Meta(ctx context.Context, names ...string) (types.Attributes, error) {
	return c.MetaOf(ctx, c.target, names...)
}

// MetaOf 读取任意实体的属性，部分 Selector 先补全
func (c *Context) MetaOf(ctx context.Context, sel types.Selector, names ...string) (types.Attributes, error) {
	if c.store == nil {
		return nil, fmt.Errorf("%w: no metadata store", types.ErrMetadataUnavailable)
	}
	return c.store.Get(ctx, c.Complete(sel), names...)
}

// ============================================================================
// 查询与修改
// ============================================================================

// Query 枚举匹配模式的实体
//
// 模式的首段必须是本 Context 的平台；协议未实现 Querier 时返回
// ErrUnsupportedAction。协议返回的结果再按模式过滤一次。
func (c *Context) Query(ctx context.Context, pattern types.Pattern) ([]types.Selector, error) {
	pairs := pattern.Pairs()
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: empty query pattern", types.ErrInvalidPattern)
	}
	if pairs[0].Key != "platform" || pairs[0].Value != c.platform {
		return nil, fmt.Errorf("%w: pattern %s is not on platform %s",
			types.ErrUnresolvedCapability, pattern, c.platform)
	}
	q, ok := c.protocol.(pkgif.Querier)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support query", types.ErrUnsupportedAction, c.platform)
	}

	found, err := q.Query(ctx, c.serviceID, pattern)
	if err != nil {
		logger.Debug("实体查询失败",
			"platform", c.platform,
			"pattern", pattern.String(),
			"error", err)
		return nil, err
	}
	out := found[:0:0]
	for _, sel := range found {
		if pattern.Match(sel) {
			out = append(out, sel)
		}
	}
	return out, nil
}

// ModifyMeta 修改实体属性并写回元数据缓存
//
// 部分 Selector 先补全。成功后缓存写入平台确认的属性；平台未返回属性时
// 条目失效，下次读取重新拉取。
func (c *Context) ModifyMeta(ctx context.Context, sel types.Selector, attrs types.Attributes) (types.Attributes, error) {
	if sel.IsEmpty() {
		sel = c.target
	}
	sel = c.Complete(sel)
	if p := sel.Platform(); p != c.platform {
		return nil, fmt.Errorf("%w: %s is not on platform %s", types.ErrUnresolvedCapability, sel, c.platform)
	}
	mod, ok := c.protocol.(pkgif.MetadataModifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support metadata modification", types.ErrUnsupportedAction, c.platform)
	}

	got, err := mod.ModifyMeta(ctx, c.serviceID, sel, attrs.Clone())
	if err != nil {
		logger.Debug("元数据修改失败",
			"platform", c.platform,
			"selector", sel.String(),
			"error", err)
		return nil, err
	}
	if c.store != nil {
		if len(got) == 0 {
			c.store.Invalidate(sel)
		} else {
			c.store.Put(sel, got)
		}
	}
	return got.Clone(), nil
}

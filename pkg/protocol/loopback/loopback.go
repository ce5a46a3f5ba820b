package loopback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
	"github.com/dep2p/go-chatcore/pkg/types"
)

var logger = log.Logger("protocol/loopback")

// 内置动作与事件种类
const (
	ActionSend types.ActionKind = "message.send"
	ActionKick types.ActionKind = "member.kick"

	EventMessageReceived types.EventKind = "message.received"
	EventMessageSent     types.EventKind = "message.sent"
	EventMemberLeft      types.EventKind = "member.left"
)

// ErrNoSession 服务没有运行中的实例
var ErrNoSession = errors.New("loopback: no running session")

// Protocol 进程内协议
type Protocol struct {
	name string
	caps types.Capabilities

	// manualReady 为 true 时 Start 不报告就绪，由测试调用 MarkReady
	manualReady bool
	startErr    error

	mu       sync.Mutex
	sessions map[string]*session
	order    []string
	entities map[string]entity
	actions  []types.ActionRequest

	fetches atomic.Int64
}

var (
	_ pkgif.Protocol         = (*Protocol)(nil)
	_ pkgif.Querier          = (*Protocol)(nil)
	_ pkgif.MetadataModifier = (*Protocol)(nil)
)

// entity 内存实体
type entity struct {
	sel   types.Selector
	attrs types.Attributes
}

// session 一个服务实例
type session struct {
	id   string
	host pkgif.ServiceHost
}

// Option 协议选项
type Option func(*Protocol)

// WithActions 覆盖支持的动作
func WithActions(kinds ...types.ActionKind) Option {
	return func(p *Protocol) {
		p.caps = types.NewCapabilities(kinds, p.caps.Segments())
	}
}

// WithManualReady Start 后不立即就绪
func WithManualReady() Option {
	return func(p *Protocol) {
		p.manualReady = true
	}
}

// WithStartError Start 总是返回 err
func WithStartError(err error) Option {
	return func(p *Protocol) {
		p.startErr = err
	}
}

// New 创建协议，name 为平台名
func New(name string, opts ...Option) *Protocol {
	p := &Protocol{
		name: name,
		caps: types.NewCapabilities(
			[]types.ActionKind{ActionSend, ActionKick},
			[]string{"land", "member", "message"},
		),
		sessions: make(map[string]*session),
		entities: make(map[string]entity),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 平台名
func (p *Protocol) Name() string {
	return p.name
}

// Capabilities 支持的动作与段名
func (p *Protocol) Capabilities() types.Capabilities {
	return p.caps
}

// Start 打开服务实例
func (p *Protocol) Start(_ context.Context, host pkgif.ServiceHost) (pkgif.Session, error) {
	if p.startErr != nil {
		return nil, p.startErr
	}

	s := &session{id: host.ServiceID(), host: host}
	p.mu.Lock()
	if _, ok := p.sessions[s.id]; !ok {
		p.order = append(p.order, s.id)
	}
	p.sessions[s.id] = s
	p.mu.Unlock()

	logger.Debug("loopback 实例已启动", "platform", p.name, "service", s.id)
	if !p.manualReady {
		host.Ready()
	}
	return s, nil
}

// Stop 关闭服务实例
func (p *Protocol) Stop(_ context.Context, sess pkgif.Session) error {
	s, ok := sess.(*session)
	if !ok {
		return fmt.Errorf("loopback: unexpected session %T", sess)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// 实例可能已被同一服务的新实例替换
	if cur, ok := p.sessions[s.id]; ok && cur == s {
		delete(p.sessions, s.id)
		for i, id := range p.order {
			if id == s.id {
				p.order = append(p.order[:i:i], p.order[i+1:]...)
				break
			}
		}
	}
	logger.Debug("loopback 实例已关闭", "platform", p.name, "service", s.id)
	return nil
}

// Fetch 从内存实体表读取属性
func (p *Protocol) Fetch(_ context.Context, sel types.Selector, names []string) (types.Attributes, error) {
	p.fetches.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	ent, ok := p.entities[sel.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrMetadataUnavailable, sel)
	}
	return ent.attrs.Pick(names...), nil
}

// Query 枚举内存实体表中匹配模式的实体，按文本形式排序
func (p *Protocol) Query(_ context.Context, serviceID string, pattern types.Pattern) ([]types.Selector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.actingSession(serviceID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, serviceID)
	}

	var out []types.Selector
	for _, ent := range p.entities {
		if pattern.Match(ent.sel) {
			out = append(out, ent.sel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out, nil
}

// ModifyMeta 合并属性到内存实体，返回修改后的全部属性
func (p *Protocol) ModifyMeta(_ context.Context, serviceID string, sel types.Selector, attrs types.Attributes) (types.Attributes, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.actingSession(serviceID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, serviceID)
	}

	ent, ok := p.entities[sel.Key()]
	if !ok {
		ent = entity{sel: sel, attrs: types.Attributes{}}
	}
	next := ent.attrs.Clone()
	for k, v := range attrs {
		next[k] = v
	}
	p.entities[sel.Key()] = entity{sel: sel, attrs: next}
	return next.Clone(), nil
}

// Act 记录动作并回显
//
// 动作经由 req.ServiceID 对应的实例发出；未指定时只有一个实例才使用它。
// message.send 产生一条新消息并以 message.sent 事件回显；
// member.kick 以 member.left 事件回显。
func (p *Protocol) Act(_ context.Context, req types.ActionRequest) (types.ActionResult, error) {
	p.mu.Lock()
	p.actions = append(p.actions, req)
	s := p.actingSession(req.ServiceID)
	p.mu.Unlock()

	if s == nil {
		return types.ActionResult{}, &types.ActionError{
			Platform: p.name,
			Kind:     req.Action.Kind,
			Code:     "offline",
			Err:      ErrNoSession,
		}
	}

	switch req.Action.Kind {
	case ActionSend:
		ref, err := req.Target.Extend("message", uuid.NewString())
		if err != nil {
			return types.ActionResult{}, &types.ActionError{Platform: p.name, Kind: req.Action.Kind, Err: err}
		}
		if _, err := s.host.Emit(EventMessageSent, ref, req.Action.Params); err != nil {
			return types.ActionResult{}, err
		}
		return types.ActionResult{Ref: ref}, nil

	case ActionKick:
		if _, ok := req.Target.Get("member"); !ok {
			return types.ActionResult{}, &types.ActionError{
				Platform: p.name,
				Kind:     req.Action.Kind,
				Code:     "bad_target",
				Message:  "target is not a member",
			}
		}
		s.host.Invalidate(req.Target)
		if _, err := s.host.Emit(EventMemberLeft, req.Target, req.Action.Params); err != nil {
			return types.ActionResult{}, err
		}
		return types.ActionResult{Ref: req.Target}, nil

	default:
		return types.ActionResult{}, &types.ActionError{
			Platform: p.name,
			Kind:     req.Action.Kind,
			Code:     "unsupported",
			Message:  "loopback has no executor for this action",
		}
	}
}

// actingSession 选择执行动作的实例，调用方持有 p.mu
func (p *Protocol) actingSession(serviceID string) *session {
	if serviceID != "" {
		return p.sessions[serviceID]
	}
	if len(p.order) != 1 {
		return nil
	}
	return p.sessions[p.order[0]]
}

// ============================================================================
//                              测试辅助
// ============================================================================

// Inject 模拟平台推送的事件
func (p *Protocol) Inject(serviceID string, kind types.EventKind, origin types.Selector, payload any) (types.Event, error) {
	s, err := p.session(serviceID)
	if err != nil {
		return types.Event{}, err
	}
	return s.host.Emit(kind, origin, payload)
}

// InjectRecord 模拟自带序号的事件，用于乱序输入
func (p *Protocol) InjectRecord(serviceID string, evt types.Event) error {
	s, err := p.session(serviceID)
	if err != nil {
		return err
	}
	return s.host.Publish(evt)
}

// MarkReady 报告实例就绪
func (p *Protocol) MarkReady(serviceID string) error {
	s, err := p.session(serviceID)
	if err != nil {
		return err
	}
	s.host.Ready()
	return nil
}

// Crash 模拟连接丢失
func (p *Protocol) Crash(serviceID string, cause error) error {
	s, err := p.session(serviceID)
	if err != nil {
		return err
	}
	s.host.Fail(cause)
	return nil
}

// SetEntity 设置实体属性，并使各实例的元数据缓存失效
func (p *Protocol) SetEntity(sel types.Selector, attrs types.Attributes) {
	p.mu.Lock()
	p.entities[sel.Key()] = entity{sel: sel, attrs: attrs.Clone()}
	hosts := make([]pkgif.ServiceHost, 0, len(p.sessions))
	for _, s := range p.sessions {
		hosts = append(hosts, s.host)
	}
	p.mu.Unlock()

	for _, h := range hosts {
		h.Invalidate(sel)
	}
}

// Fetches 返回 Fetch 调用次数
func (p *Protocol) Fetches() int64 {
	return p.fetches.Load()
}

// Actions 返回已执行的动作
func (p *Protocol) Actions() []types.ActionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ActionRequest(nil), p.actions...)
}

// Sessions 返回运行中的服务 ID
func (p *Protocol) Sessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func (p *Protocol) session(serviceID string) (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[serviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, serviceID)
	}
	return s, nil
}

package loopback

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

var (
	land  = types.MustSelector(types.P("platform", "irc"), types.P("land", "#chat"))
	alice = land.MustExtend("member", "alice")
)

// recordingHost 记录协议调用的宿主
type recordingHost struct {
	id string

	mu          sync.Mutex
	ready       bool
	failed      error
	events      []types.Event
	records     []types.Event
	invalidated []types.Selector
}

var _ pkgif.ServiceHost = (*recordingHost)(nil)

func (h *recordingHost) ServiceID() string           { return h.id }
func (h *recordingHost) Settings() map[string]string { return nil }
func (h *recordingHost) Context() context.Context    { return context.Background() }

func (h *recordingHost) Ready() {
	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()
}

func (h *recordingHost) Fail(err error) {
	h.mu.Lock()
	h.failed = err
	h.mu.Unlock()
}

func (h *recordingHost) Emit(kind types.EventKind, origin types.Selector, payload any) (types.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	evt := types.Event{
		Source:   h.id,
		Origin:   origin,
		Kind:     kind,
		Payload:  payload,
		Sequence: uint64(len(h.events) + 1),
	}
	h.events = append(h.events, evt)
	return evt, nil
}

func (h *recordingHost) Publish(evt types.Event) error {
	h.mu.Lock()
	h.records = append(h.records, evt)
	h.mu.Unlock()
	return nil
}

func (h *recordingHost) Invalidate(sel types.Selector) {
	h.mu.Lock()
	h.invalidated = append(h.invalidated, sel)
	h.mu.Unlock()
}

func (h *recordingHost) PutMetadata(types.Selector, types.Attributes) {}

func start(t *testing.T, p *Protocol, id string) (*recordingHost, pkgif.Session) {
	t.Helper()
	h := &recordingHost{id: id}
	sess, err := p.Start(context.Background(), h)
	require.NoError(t, err)
	return h, sess
}

// TestProtocol_StartStop 测试实例启停
func TestProtocol_StartStop(t *testing.T) {
	p := New("irc")
	assert.Equal(t, "irc", p.Name())
	assert.True(t, p.Capabilities().CanAct(ActionSend))

	h, sess := start(t, p, "irc-main")
	assert.True(t, h.ready)
	assert.Equal(t, []string{"irc-main"}, p.Sessions())

	require.NoError(t, p.Stop(context.Background(), sess))
	assert.Empty(t, p.Sessions())

	_, err := p.Inject("irc-main", EventMessageReceived, alice, "hi")
	assert.ErrorIs(t, err, ErrNoSession)
}

// TestProtocol_ManualReadyAndStartError 测试就绪与启动失败选项
func TestProtocol_ManualReadyAndStartError(t *testing.T) {
	p := New("irc", WithManualReady())
	h, _ := start(t, p, "irc-main")
	assert.False(t, h.ready)
	require.NoError(t, p.MarkReady("irc-main"))
	assert.True(t, h.ready)

	boom := errors.New("refused")
	_, err := New("irc", WithStartError(boom)).Start(context.Background(), &recordingHost{id: "x"})
	assert.ErrorIs(t, err, boom)
}

// TestProtocol_StaleStopKeepsNewSession 测试旧实例的 Stop 不影响新实例
func TestProtocol_StaleStopKeepsNewSession(t *testing.T) {
	p := New("irc")
	_, old := start(t, p, "irc-main")
	start(t, p, "irc-main")

	require.NoError(t, p.Stop(context.Background(), old))
	assert.Equal(t, []string{"irc-main"}, p.Sessions())
}

// TestProtocol_Fetch 测试内存实体读取
func TestProtocol_Fetch(t *testing.T) {
	p := New("irc")
	h, _ := start(t, p, "irc-main")

	_, err := p.Fetch(context.Background(), alice, nil)
	assert.ErrorIs(t, err, types.ErrMetadataUnavailable)

	p.SetEntity(alice, types.Attributes{"nickname": "Alice", "avatar": "a.png"})
	require.Len(t, h.invalidated, 1)
	assert.True(t, h.invalidated[0].Equal(alice))

	attrs, err := p.Fetch(context.Background(), alice, []string{"nickname"})
	require.NoError(t, err)
	assert.Equal(t, types.Attributes{"nickname": "Alice"}, attrs)
	assert.Equal(t, int64(2), p.Fetches())
}

// TestProtocol_Act 测试动作回显
func TestProtocol_Act(t *testing.T) {
	p := New("irc")
	h, _ := start(t, p, "irc-main")
	ctx := context.Background()

	res, err := p.Act(ctx, types.ActionRequest{
		Target: land,
		Action: types.Action{Kind: ActionSend, Params: map[string]any{"text": "hi"}},
	})
	require.NoError(t, err)
	assert.True(t, res.Ref.HasPrefix(land))
	_, ok := res.Ref.Get("message")
	assert.True(t, ok)

	require.Len(t, h.events, 1)
	assert.Equal(t, EventMessageSent, h.events[0].Kind)
	assert.True(t, h.events[0].Origin.Equal(res.Ref))

	_, err = p.Act(ctx, types.ActionRequest{Target: alice, Action: types.Action{Kind: ActionKick}})
	require.NoError(t, err)
	assert.Equal(t, EventMemberLeft, h.events[1].Kind)
	assert.True(t, h.invalidated[0].Equal(alice))

	var actErr *types.ActionError
	_, err = p.Act(ctx, types.ActionRequest{Target: land, Action: types.Action{Kind: ActionKick}})
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, "bad_target", actErr.Code)

	_, err = p.Act(ctx, types.ActionRequest{Target: land, Action: types.Action{Kind: "message.edit"}})
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, "unsupported", actErr.Code)

	assert.Len(t, p.Actions(), 4)
}

// TestProtocol_ActOffline 测试没有实例时动作失败
func TestProtocol_ActOffline(t *testing.T) {
	p := New("irc")
	_, err := p.Act(context.Background(), types.ActionRequest{Target: land, Action: types.Action{Kind: ActionSend}})
	var actErr *types.ActionError
	require.ErrorAs(t, err, &actErr)
	assert.ErrorIs(t, err, ErrNoSession)
}

// TestProtocol_ActRoutesByService 测试动作经由指定服务的实例发出
func TestProtocol_ActRoutesByService(t *testing.T) {
	p := New("irc")
	ha, _ := start(t, p, "irc-alice")
	hb, _ := start(t, p, "irc-bob")
	ctx := context.Background()

	_, err := p.Act(ctx, types.ActionRequest{
		ServiceID: "irc-bob",
		Target:    land,
		Action:    types.Action{Kind: ActionSend},
	})
	require.NoError(t, err)
	assert.Empty(t, ha.events)
	require.Len(t, hb.events, 1)
	assert.Equal(t, EventMessageSent, hb.events[0].Kind)

	// 多个实例时不指定服务无法确定连接
	_, err = p.Act(ctx, types.ActionRequest{Target: land, Action: types.Action{Kind: ActionSend}})
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = p.Act(ctx, types.ActionRequest{ServiceID: "irc-carol", Target: land, Action: types.Action{Kind: ActionSend}})
	assert.ErrorIs(t, err, ErrNoSession)
}

// TestProtocol_QueryAndModify 测试实体枚举与属性修改
func TestProtocol_QueryAndModify(t *testing.T) {
	p := New("irc")
	ctx := context.Background()
	bob := land.MustExtend("member", "bob")
	other := types.MustSelector(types.P("platform", "irc"), types.P("land", "#dev"), types.P("member", "carol"))

	_, err := p.Query(ctx, "", types.PrefixOf(land))
	assert.ErrorIs(t, err, ErrNoSession)

	start(t, p, "irc-main")
	p.SetEntity(alice, types.Attributes{"nickname": "Alice"})
	p.SetEntity(bob, types.Attributes{"nickname": "Bob"})
	p.SetEntity(other, types.Attributes{"nickname": "Carol"})

	members := types.MustPattern(types.P("platform", "irc"), types.P("land", "#chat"), types.P("member", types.Wildcard))
	got, err := p.Query(ctx, "irc-main", members)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(alice))
	assert.True(t, got[1].Equal(bob))

	attrs, err := p.ModifyMeta(ctx, "irc-main", alice, types.Attributes{"nickname": "Alicia", "away": true})
	require.NoError(t, err)
	assert.Equal(t, types.Attributes{"nickname": "Alicia", "away": true}, attrs)

	fetched, err := p.Fetch(ctx, alice, []string{"nickname"})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", fetched["nickname"])

	_, err = p.ModifyMeta(ctx, "irc-other", alice, types.Attributes{"nickname": "x"})
	assert.ErrorIs(t, err, ErrNoSession)
}

// TestProtocol_InjectAndCrash 测试事件注入与故障模拟
func TestProtocol_InjectAndCrash(t *testing.T) {
	p := New("irc")
	h, _ := start(t, p, "irc-main")

	evt, err := p.Inject("irc-main", EventMessageReceived, alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, "irc-main", evt.Source)

	require.NoError(t, p.InjectRecord("irc-main", types.Event{Origin: alice, Kind: EventMessageReceived, Sequence: 7}))
	require.Len(t, h.records, 1)
	assert.Equal(t, uint64(7), h.records[0].Sequence)

	lost := errors.New("ping timeout")
	require.NoError(t, p.Crash("irc-main", lost))
	assert.ErrorIs(t, h.failed, lost)
}

package chatcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-chatcore/config"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/protocol/loopback"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// testConfig 两个平台，bridge 依赖 irc-main
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Services = []config.ServiceConfig{
		{ID: "irc-main", Platform: "irc"},
		{ID: "bridge", Platform: "matrix", DependsOn: []string{"irc-main"}},
	}
	return cfg
}

func startCore(t *testing.T, opts ...Option) *Core {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Start(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.WaitSettled(ctx))
	return c
}

// collector 线程安全地收集事件
type collector struct {
	mu     sync.Mutex
	events []types.Event
}

func (c *collector) handle(evt types.Event) error {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
	return nil
}

func (c *collector) list() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event(nil), c.events...)
}

func TestCore_StartsConfiguredServices(t *testing.T) {
	irc := loopback.New("irc")
	matrix := loopback.New("matrix")
	c := startCore(t, WithConfig(testConfig()), WithProtocol(irc, matrix))

	assert.Equal(t, []string{"irc-main", "bridge"}, c.Services())
	for _, id := range c.Services() {
		st, err := c.Status(id)
		require.NoError(t, err)
		assert.Equal(t, types.StateActive, st.State, id)
	}
	assert.ElementsMatch(t, []string{"irc", "matrix"}, c.Protocols().Platforms())
	assert.Equal(t, []string{"irc-main"}, irc.Sessions())
}

func TestCore_UnregisteredPlatform(t *testing.T) {
	_, err := New(WithConfig(testConfig()), WithProtocol(loopback.New("irc")))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCore_DuplicateProtocol(t *testing.T) {
	_, err := New(WithProtocol(loopback.New("irc"), loopback.New("irc")))
	assert.ErrorIs(t, err, ErrProtocolExists)
}

func TestCore_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Services[1].DependsOn = []string{"nowhere"}
	_, err := New(WithConfig(cfg), WithProtocol(loopback.New("irc"), loopback.New("matrix")))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCore_SubscribeDeliversMatchingEvents(t *testing.T) {
	irc := loopback.New("irc")
	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
	)

	chat := types.MustSelector(types.P("platform", "irc"), types.P("land", "#chat"))
	other := types.MustSelector(types.P("platform", "irc"), types.P("land", "#other"))

	var inChat, all collector
	sub, err := c.Subscribe(types.PrefixOf(chat), inChat.handle, pkgif.WithName("chat"))
	require.NoError(t, err)
	defer sub.Close()
	_, err = c.Subscribe(types.AnyPattern(), all.handle)
	require.NoError(t, err)

	_, err = irc.Inject("irc-main", loopback.EventMessageReceived, chat.MustExtend("member", "bob"), "hi")
	require.NoError(t, err)
	_, err = irc.Inject("irc-main", loopback.EventMessageReceived, other, "elsewhere")
	require.NoError(t, err)

	got := inChat.list()
	require.Len(t, got, 1)
	assert.Equal(t, "irc-main", got[0].Source)
	assert.Equal(t, uint64(1), got[0].Sequence)
	assert.Equal(t, "hi", got[0].Payload)

	assert.Len(t, all.list(), 2)
}

func TestCore_ObserveHandlerFailure(t *testing.T) {
	irc := loopback.New("irc")
	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
	)

	obs, err := c.Observe(new(types.HandlerFailure))
	require.NoError(t, err)
	defer obs.Close()

	boom := errors.New("boom")
	_, err = c.Subscribe(types.AnyPattern(), func(types.Event) error { return boom }, pkgif.WithName("broken"))
	require.NoError(t, err)

	var ok collector
	_, err = c.Subscribe(types.AnyPattern(), ok.handle)
	require.NoError(t, err)

	origin := types.MustSelector(types.P("platform", "irc"))
	_, err = irc.Inject("irc-main", loopback.EventMessageReceived, origin, nil)
	require.NoError(t, err)

	// 失败的处理器不影响其他处理器
	assert.Len(t, ok.list(), 1)

	select {
	case e := <-obs.Out():
		f := e.(types.HandlerFailure)
		assert.Equal(t, "broken", f.Handler)
		assert.ErrorIs(t, f, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("no handler failure observed")
	}
}

func TestCore_ActEchoesThroughDispatcher(t *testing.T) {
	irc := loopback.New("irc", loopback.WithActions(loopback.ActionSend))
	reg := prometheus.NewRegistry()

	var (
		mu    sync.Mutex
		trace []string
	)
	mw := func(name string) pkgif.ActionMiddleware {
		return func(next pkgif.ActFunc) pkgif.ActFunc {
			return func(ctx context.Context, req types.ActionRequest) (types.ActionResult, error) {
				mu.Lock()
				trace = append(trace, name)
				mu.Unlock()
				return next(ctx, req)
			}
		}
	}

	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
		WithRegisterer(reg),
		WithMiddleware(mw("audit")),
	)
	c.Use(mw("late"))

	var sent collector
	_, err := c.Subscribe(types.AnyPattern(), sent.handle, pkgif.WithKinds(loopback.EventMessageSent))
	require.NoError(t, err)

	self := types.MustSelector(types.P("platform", "irc"), types.P("account", "me"))
	land := types.MustSelector(types.P("platform", "irc"), types.P("land", "#chat"))

	rc, err := c.For(self, land)
	require.NoError(t, err)
	assert.Equal(t, "irc-main", rc.ServiceID())
	assert.True(t, rc.Can(loopback.ActionSend))
	assert.False(t, rc.Can(loopback.ActionKick))

	res, err := rc.Act(context.Background(), types.Action{
		Kind:   loopback.ActionSend,
		Params: map[string]any{"text": "hello"},
	})
	require.NoError(t, err)
	assert.True(t, res.Ref.HasPrefix(land))

	got := sent.list()
	require.Len(t, got, 1)
	assert.True(t, got[0].Origin.Equal(res.Ref))

	mu.Lock()
	assert.Equal(t, []string{"audit", "late"}, trace)
	mu.Unlock()

	_, err = rc.Act(context.Background(), types.Action{Kind: loopback.ActionKick})
	assert.ErrorIs(t, err, ErrUnsupportedAction)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.Metrics().Actions.WithLabelValues("irc", string(loopback.ActionSend), "ok")))
}

func TestCore_HandlerRepliesThroughContext(t *testing.T) {
	irc := loopback.New("irc")
	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
	)

	self := types.MustSelector(types.P("platform", "irc"), types.P("account", "me"))
	land := types.MustSelector(types.P("platform", "irc"), types.P("land", "#chat"))

	replyErr := make(chan error, 1)
	_, err := c.Subscribe(types.PrefixOf(land), func(evt types.Event) error {
		rc, err := c.For(self, evt.Origin.Parent())
		if err == nil {
			_, err = rc.Act(context.Background(), types.Action{
				Kind:   loopback.ActionSend,
				Params: map[string]any{"text": "pong"},
			})
		}
		replyErr <- err
		return err
	}, pkgif.WithKinds(loopback.EventMessageReceived))
	require.NoError(t, err)

	var sent collector
	_, err = c.Subscribe(types.AnyPattern(), sent.handle, pkgif.WithKinds(loopback.EventMessageSent))
	require.NoError(t, err)

	injected := make(chan error, 1)
	go func() {
		_, err := irc.Inject("irc-main", loopback.EventMessageReceived, land.MustExtend("member", "bob"), "ping")
		injected <- err
	}()

	select {
	case err := <-injected:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("inject blocked while a handler replied on the same service")
	}
	require.NoError(t, <-replyErr)

	// 回复在同一次投递中排在收到的消息之后
	got := sent.list()
	require.Len(t, got, 1)
	assert.Equal(t, "irc-main", got[0].Source)
	assert.Equal(t, uint64(2), got[0].Sequence)
	assert.True(t, got[0].Origin.HasPrefix(land))
}

func TestCore_ActRoutesByAccount(t *testing.T) {
	irc := loopback.New("irc")
	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-alice", Protocol: irc, Settings: map[string]string{"account": "alice"}}),
		WithService(pkgif.ServiceSpec{ID: "irc-bob", Protocol: irc, Settings: map[string]string{"account": "bob"}}),
	)

	var sent collector
	_, err := c.Subscribe(types.AnyPattern(), sent.handle, pkgif.WithKinds(loopback.EventMessageSent))
	require.NoError(t, err)

	land := types.MustSelector(types.P("platform", "irc"), types.P("land", "#chat"))
	account := func(name string) types.Selector {
		return types.MustSelector(types.P("platform", "irc"), types.P("account", name))
	}

	rc, err := c.For(account("bob"), land)
	require.NoError(t, err)
	assert.Equal(t, "irc-bob", rc.ServiceID())

	_, err = rc.Act(context.Background(), types.Action{Kind: loopback.ActionSend})
	require.NoError(t, err)

	got := sent.list()
	require.Len(t, got, 1)
	assert.Equal(t, "irc-bob", got[0].Source, "action must use bob's connection")

	rc, err = c.For(account("alice"), land)
	require.NoError(t, err)
	assert.Equal(t, "irc-alice", rc.ServiceID())

	// 两个账号都在线时不替未知账号选择连接
	_, err = c.For(account("carol"), land)
	assert.ErrorIs(t, err, ErrUnresolvedCapability)
}

func TestCore_QueryAndModifyMeta(t *testing.T) {
	irc := loopback.New("irc")
	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
	)

	land := types.MustSelector(types.P("platform", "irc"), types.P("land", "#chat"))
	bob := land.MustExtend("member", "bob")
	irc.SetEntity(land.MustExtend("member", "alice"), types.Attributes{"nick": "alice"})
	irc.SetEntity(bob, types.Attributes{"nick": "bob"})

	rc, err := c.For(types.MustSelector(types.P("platform", "irc"), types.P("account", "me")), land)
	require.NoError(t, err)
	ctx := context.Background()

	members, err := rc.Query(ctx, types.MustPattern(
		types.P("platform", "irc"), types.P("land", "#chat"), types.P("member", types.Wildcard)))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = c.Meta(ctx, bob, "nick")
	require.NoError(t, err)

	attrs, err := rc.ModifyMeta(ctx, types.MustSelector(types.P("member", "bob")), types.Attributes{"nick": "robert"})
	require.NoError(t, err)
	assert.Equal(t, "robert", attrs["nick"])

	got, err := c.Meta(ctx, bob, "nick")
	require.NoError(t, err)
	assert.Equal(t, "robert", got["nick"])
	assert.Equal(t, int64(1), irc.Fetches(), "modified value is served from cache")
}

func TestCore_ForUnknownPlatform(t *testing.T) {
	irc := loopback.New("irc")
	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
	)

	self := types.MustSelector(types.P("platform", "slack"), types.P("account", "me"))
	_, err := c.For(self, self)
	assert.ErrorIs(t, err, ErrUnresolvedCapability)
}

func TestCore_MetaCachesAndInvalidates(t *testing.T) {
	irc := loopback.New("irc")
	c := startCore(t,
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
	)

	bob := types.MustSelector(types.P("platform", "irc"), types.P("member", "bob"))
	irc.SetEntity(bob, types.Attributes{"nick": "bob", "away": false})

	ctx := context.Background()
	attrs, err := c.Meta(ctx, bob, "nick")
	require.NoError(t, err)
	assert.Equal(t, "bob", attrs["nick"])

	_, err = c.Meta(ctx, bob, "nick")
	require.NoError(t, err)
	assert.Equal(t, int64(1), irc.Fetches(), "second read must be served from cache")

	irc.SetEntity(bob, types.Attributes{"nick": "robert"})
	attrs, err = c.Meta(ctx, bob, "nick")
	require.NoError(t, err)
	assert.Equal(t, "robert", attrs["nick"])
	assert.Equal(t, int64(2), irc.Fetches())

	ghost := types.MustSelector(types.P("platform", "irc"), types.P("member", "ghost"))
	_, err = c.Meta(ctx, ghost)
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
}

func TestCore_RestartAndStop(t *testing.T) {
	irc := loopback.New("irc")
	c, err := New(
		WithProtocol(irc),
		WithService(pkgif.ServiceSpec{ID: "irc-main", Protocol: irc}),
	)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Restart(context.Background(), "irc-main"), ErrNotStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	assert.ErrorIs(t, c.Start(ctx), ErrAlreadyStarted)

	_, err = c.WaitState(ctx, "irc-main", types.StateActive)
	require.NoError(t, err)

	require.NoError(t, c.Restart(ctx, "irc-main"))
	_, err = c.WaitState(ctx, "irc-main", types.StateActive)
	require.NoError(t, err)

	require.NoError(t, c.Stop(ctx))
	st, err := c.Status("irc-main")
	require.NoError(t, err)
	assert.Equal(t, types.StateStopped, st.State)
	assert.Empty(t, irc.Sessions())

	// 重复关闭无副作用，关闭后不能再启动
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Start(ctx), ErrCoreClosed)
}

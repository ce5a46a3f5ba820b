package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// fakeProtocol 可控的协议实现
type fakeProtocol struct {
	name string

	// manualReady 为 true 时 Start 不调用 Ready
	manualReady bool

	// startErr Start 返回的错误
	startErr error

	// stopBlock 非 nil 时 Stop 阻塞到它关闭或 ctx 取消
	stopBlock chan struct{}

	// stopLog 记录 Stop 顺序，多个协议可共享
	stopLog *stopLog

	mu     sync.Mutex
	hosts  []pkgif.ServiceHost
	starts atomic.Int32
	stops  atomic.Int32
}

type stopLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *stopLog) add(id string) {
	l.mu.Lock()
	l.ids = append(l.ids, id)
	l.mu.Unlock()
}

func (l *stopLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func (p *fakeProtocol) Name() string { return p.name }

func (p *fakeProtocol) Capabilities() types.Capabilities {
	return types.NewCapabilities([]types.ActionKind{"send"}, []string{"platform"})
}

func (p *fakeProtocol) Start(_ context.Context, h pkgif.ServiceHost) (pkgif.Session, error) {
	p.starts.Add(1)
	if p.startErr != nil {
		return nil, p.startErr
	}
	p.mu.Lock()
	p.hosts = append(p.hosts, h)
	p.mu.Unlock()
	if !p.manualReady {
		h.Ready()
	}
	return h.ServiceID(), nil
}

func (p *fakeProtocol) Stop(ctx context.Context, session pkgif.Session) error {
	p.stops.Add(1)
	if p.stopLog != nil {
		p.stopLog.add(session.(string))
	}
	if p.stopBlock != nil {
		select {
		case <-p.stopBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *fakeProtocol) Fetch(context.Context, types.Selector, []string) (types.Attributes, error) {
	return nil, types.ErrMetadataUnavailable
}

func (p *fakeProtocol) Act(context.Context, types.ActionRequest) (types.ActionResult, error) {
	return types.ActionResult{}, nil
}

// lastHost 返回最近一次启动的宿主
func (p *fakeProtocol) lastHost() pkgif.ServiceHost {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.hosts) == 0 {
		return nil
	}
	return p.hosts[len(p.hosts)-1]
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(nil, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Stop(ctx)
	})
	return m
}

func waitState(t *testing.T, m *Manager, id string, states ...types.ServiceState) types.ServiceStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := m.WaitState(ctx, id, states...)
	require.NoError(t, err, "service %s stuck in %s", id, st.State)
	return st
}

// blockingProtocol Start 一直阻塞
//
// honorCtx 为 true 时 ctx 取消后返回 ctx.Err()，否则阻塞到 release 关闭。
type blockingProtocol struct {
	fakeProtocol
	honorCtx bool
	release  chan struct{}
	entered  chan struct{}
	once     sync.Once
}

func newBlockingProtocol(name string, honorCtx bool) *blockingProtocol {
	return &blockingProtocol{
		fakeProtocol: fakeProtocol{name: name},
		honorCtx:     honorCtx,
		release:      make(chan struct{}),
		entered:      make(chan struct{}),
	}
}

func (p *blockingProtocol) Start(ctx context.Context, _ pkgif.ServiceHost) (pkgif.Session, error) {
	p.starts.Add(1)
	p.once.Do(func() { close(p.entered) })
	if p.honorCtx {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.release:
		}
	} else {
		<-p.release
	}
	return p.name, nil
}

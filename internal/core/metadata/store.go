package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-chatcore/internal/core/metrics"
	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/lib/log"
	"github.com/dep2p/go-chatcore/pkg/types"
)

var logger = log.Logger("core/metadata")

// allAttributes 读取全部属性时 singleflight 键中的占位
const allAttributes = "*"

var errNoResolver = errors.New("no fetcher resolver")

// ============================================================================
// 条目
// ============================================================================

// entry 单个 Selector 的缓存条目
type entry struct {
	mu  sync.Mutex
	sel types.Selector

	// gen 条目创建序号，失效后重建的条目不会与旧条目共享拉取
	gen uint64

	attrs types.Attributes

	// complete 已拉取过全部属性
	complete bool

	// stale 数据保留，但下次读取时重新拉取
	stale bool

	// epoch 每次标记过期时递增，早于标记开始的拉取结果不再写入
	epoch uint64

	// absentUntil 拉取失败后的退避截止时间
	absentUntil time.Time
	absentErr   error
}

// missing 计算需要拉取的属性，调用方持有 e.mu
//
// fetch 为 false 表示缓存可以满足本次读取；names 为空表示读取全部。
func (e *entry) missing(names []string) (need []string, fetch bool) {
	if len(names) == 0 {
		return nil, e.stale || !e.complete
	}
	if e.stale {
		return names, true
	}
	for _, n := range names {
		if _, ok := e.attrs[n]; !ok {
			need = append(need, n)
		}
	}
	return need, len(need) > 0
}

// ============================================================================
// Store
// ============================================================================

// Store 元数据存储
//
// 条目按 Selector 的结构键存放在容量有限的 LRU 中。同一条目的并发未命中
// 合并为一次拉取；拉取失败后条目进入退避期。
type Store struct {
	cfg      *Config
	clock    clock.Clock
	resolver pkgif.FetcherResolver
	metrics  *metrics.Metrics
	emitter  pkgif.Emitter

	cache *lru.Cache[string, *entry]
	group singleflight.Group
	gens  atomic.Uint64
}

var _ pkgif.MetadataStore = (*Store)(nil)

// Option 存储选项
type Option func(*Store)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(s *Store) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithEmitter 设置 EvtMetadataInvalidated 发射器
func WithEmitter(em pkgif.Emitter) Option {
	return func(s *Store) {
		s.emitter = em
	}
}

// NewStore 创建元数据存储
func NewStore(cfg *Config, resolver pkgif.FetcherResolver, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *entry](cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}

	s := &Store{
		cfg:      cfg.Clone(),
		clock:    clock.New(),
		resolver: resolver,
		cache:    cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get 读取属性
func (s *Store) Get(ctx context.Context, sel types.Selector, names ...string) (types.Attributes, error) {
	if sel.IsEmpty() {
		return nil, fmt.Errorf("%w: empty selector", types.ErrMalformedSelector)
	}

	e := s.entryFor(sel)

	e.mu.Lock()
	need, fetch := e.missing(names)
	if !fetch {
		out := e.attrs.Pick(names...)
		e.mu.Unlock()
		s.metrics.MetadataRequest(metrics.ResultHit)
		return out, nil
	}
	// 退避只拦截需要拉取的读取，已缓存的属性照常返回
	if s.clock.Now().Before(e.absentUntil) {
		cause := e.absentErr
		e.mu.Unlock()
		s.metrics.MetadataRequest(metrics.ResultUnavailable)
		return nil, unavailable(cause)
	}
	epoch := e.epoch
	e.mu.Unlock()

	s.metrics.MetadataRequest(metrics.ResultMiss)

	fetched, err := s.fetch(ctx, e, need, epoch)
	if err != nil {
		return nil, err
	}

	// 拉取期间条目可能已被移除，此时直接用拉取结果作答
	e.mu.Lock()
	merged := e.attrs.Clone()
	e.mu.Unlock()
	for k, v := range fetched {
		merged[k] = v
	}
	return merged.Pick(names...), nil
}

// fetch 合并并发的相同拉取
func (s *Store) fetch(ctx context.Context, e *entry, need []string, epoch uint64) (types.Attributes, error) {
	key := flightKey(e, epoch, need)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.doFetch(ctx, e, need, epoch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(types.Attributes), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// doFetch 向协议拉取并写回条目
//
// 拉取不随首个调用方的 ctx 取消：其他调用方可能正在等待同一结果。
func (s *Store) doFetch(ctx context.Context, e *entry, need []string, epoch uint64) (types.Attributes, error) {
	if s.resolver == nil {
		return nil, s.fail(e, errNoResolver)
	}
	fetcher, ok := s.resolver.ResolveFetcher(e.sel)
	if !ok {
		return nil, s.fail(e, fmt.Errorf("no active protocol for platform %q", e.sel.Platform()))
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
	defer cancel()

	attrs, err := fetcher.Fetch(fctx, e.sel, need)
	s.metrics.MetadataFetch(err)
	if err != nil {
		logger.Debug("元数据拉取失败",
			"selector", e.sel.String(),
			"attrs", need,
			"error", err)
		return nil, s.fail(e, err)
	}
	if attrs == nil {
		attrs = types.Attributes{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.current(e) || e.epoch != epoch {
		return attrs.Clone(), nil
	}
	if e.stale {
		e.attrs = attrs.Clone()
		e.stale = false
		e.complete = len(need) == 0
	} else {
		if e.attrs == nil {
			e.attrs = make(types.Attributes, len(attrs))
		}
		for k, v := range attrs {
			e.attrs[k] = v
		}
		if len(need) == 0 {
			e.complete = true
		}
	}
	e.absentUntil = time.Time{}
	e.absentErr = nil
	return attrs.Clone(), nil
}

// fail 记录拉取失败并进入退避期
func (s *Store) fail(e *entry, cause error) error {
	e.mu.Lock()
	if s.current(e) {
		e.absentUntil = s.clock.Now().Add(s.cfg.AbsentBackoff)
		e.absentErr = cause
	}
	e.mu.Unlock()
	return unavailable(cause)
}

// Put 写入属性
func (s *Store) Put(sel types.Selector, attrs types.Attributes) {
	if sel.IsEmpty() || len(attrs) == 0 {
		return
	}
	e := s.entryFor(sel)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attrs == nil {
		e.attrs = make(types.Attributes, len(attrs))
	}
	for k, v := range attrs {
		e.attrs[k] = v
	}
	e.absentUntil = time.Time{}
	e.absentErr = nil
}

// Invalidate 移除条目
func (s *Store) Invalidate(sel types.Selector) {
	if s.cache.Remove(sel.Key()) {
		logger.Debug("元数据已失效", "selector", sel.String())
	}
	s.notify(types.EvtMetadataInvalidated{Selector: sel})
}

// InvalidatePrefix 移除前缀下的所有条目
func (s *Store) InvalidatePrefix(prefix types.Selector) int {
	removed := 0
	for _, key := range s.cache.Keys() {
		e, ok := s.cache.Peek(key)
		if !ok || !e.sel.HasPrefix(prefix) {
			continue
		}
		if s.cache.Remove(key) {
			removed++
		}
	}
	logger.Debug("按前缀使元数据失效", "prefix", prefix.String(), "removed", removed)
	s.notify(types.EvtMetadataInvalidated{Selector: prefix, Prefix: true})
	return removed
}

// MarkStale 标记条目过期
func (s *Store) MarkStale(sel types.Selector) {
	e, ok := s.cache.Peek(sel.Key())
	if !ok {
		return
	}
	e.mu.Lock()
	e.stale = true
	e.epoch++
	e.mu.Unlock()
}

// Freshness 返回条目的新鲜度
func (s *Store) Freshness(sel types.Selector) types.Freshness {
	e, ok := s.cache.Peek(sel.Key())
	if !ok {
		return types.FreshnessAbsent
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case s.clock.Now().Before(e.absentUntil):
		return types.FreshnessAbsent
	case e.stale:
		return types.FreshnessStale
	case len(e.attrs) == 0 && !e.complete:
		return types.FreshnessAbsent
	default:
		return types.FreshnessValid
	}
}

// Len 条目数量
func (s *Store) Len() int {
	return s.cache.Len()
}

// entryFor 取得或创建条目
func (s *Store) entryFor(sel types.Selector) *entry {
	key := sel.Key()
	if e, ok := s.cache.Get(key); ok {
		return e
	}
	fresh := &entry{sel: sel, gen: s.gens.Add(1)}
	prev, found, evicted := s.cache.PeekOrAdd(key, fresh)
	if evicted {
		s.metrics.MetadataEvicted()
	}
	if found {
		return prev
	}
	return fresh
}

// current 条目是否仍在缓存中
func (s *Store) current(e *entry) bool {
	cur, ok := s.cache.Peek(e.sel.Key())
	return ok && cur == e
}

func (s *Store) notify(evt types.EvtMetadataInvalidated) {
	if s.emitter != nil {
		s.emitter.Emit(evt)
	}
}

// flightKey 合并拉取的键：结构键、条目序号、过期纪元加排序后的缺失属性
//
// 失效或标记过期之后发起的读取不会加入之前的拉取。
func flightKey(e *entry, epoch uint64, need []string) string {
	prefix := e.sel.Key() + "|" + strconv.FormatUint(e.gen, 10) + "." + strconv.FormatUint(epoch, 10) + "|"
	if len(need) == 0 {
		return prefix + allAttributes
	}
	sorted := make([]string, len(need))
	copy(sorted, need)
	sort.Strings(sorted)
	return prefix + strings.Join(sorted, ",")
}

// unavailable 包装为 ErrMetadataUnavailable，同时保留原因
func unavailable(cause error) error {
	switch {
	case cause == nil:
		return types.ErrMetadataUnavailable
	case errors.Is(cause, types.ErrMetadataUnavailable):
		return cause
	default:
		return fmt.Errorf("%w: %w", types.ErrMetadataUnavailable, cause)
	}
}

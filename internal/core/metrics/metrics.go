package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-chatcore/pkg/types"
)

const namespace = "chatcore"

// Metrics 核心组件指标集合
type Metrics struct {
	EventsPublished   *prometheus.CounterVec
	EventsDelivered   *prometheus.CounterVec
	SequenceAnomalies *prometheus.CounterVec
	HandlerFailures   *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec

	MetadataRequests  *prometheus.CounterVec
	MetadataFetches   *prometheus.CounterVec
	MetadataEvictions prometheus.Counter

	ServiceState       *prometheus.GaugeVec
	ServiceTransitions *prometheus.CounterVec
	ServiceRestarts    *prometheus.CounterVec

	Actions        *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
}

// New 创建指标并注册到 reg
//
// reg 为 nil 时只创建不注册。重复注册同名指标时复用已注册的收集器。
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "published_total",
			Help: "Events accepted by the dispatcher",
		}, []string{"source"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "delivered_total",
			Help: "Handler invocations",
		}, []string{"source"}),
		SequenceAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "sequence_anomalies_total",
			Help: "Per-source sequence gaps and regressions",
		}, []string{"source", "kind"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "handler", Name: "failures_total",
			Help: "Handler errors and panics",
		}, []string{"handler", "panic"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "duration_seconds",
			Help:    "Time spent fanning one event out to handlers",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"source"}),

		MetadataRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "metadata", Name: "requests_total",
			Help: "Metadata lookups by result (hit, miss, unavailable)",
		}, []string{"result"}),
		MetadataFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "metadata", Name: "fetches_total",
			Help: "Fetches issued to protocol implementations",
		}, []string{"result"}),
		MetadataEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "metadata", Name: "evictions_total",
			Help: "Entries evicted by the capacity bound",
		}),

		ServiceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "state",
			Help: "Service state (0=pending 1=starting 2=active 3=stopping 4=stopped 5=failed)",
		}, []string{"service"}),
		ServiceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "service", Name: "transitions_total",
			Help: "Service state transitions",
		}, []string{"service", "to"}),
		ServiceRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "service", Name: "restarts_total",
			Help: "Automatic service restarts",
		}, []string{"service"}),

		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "action", Name: "executed_total",
			Help: "Actions executed through relationship contexts",
		}, []string{"platform", "kind", "result"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "action", Name: "duration_seconds",
			Help:    "Action execution latency including middlewares",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
	}

	if reg == nil {
		return m, nil
	}

	m.EventsPublished = register(reg, m.EventsPublished)
	m.EventsDelivered = register(reg, m.EventsDelivered)
	m.SequenceAnomalies = register(reg, m.SequenceAnomalies)
	m.HandlerFailures = register(reg, m.HandlerFailures)
	m.DispatchDuration = register(reg, m.DispatchDuration)
	m.MetadataRequests = register(reg, m.MetadataRequests)
	m.MetadataFetches = register(reg, m.MetadataFetches)
	m.MetadataEvictions = register(reg, m.MetadataEvictions)
	m.ServiceState = register(reg, m.ServiceState)
	m.ServiceTransitions = register(reg, m.ServiceTransitions)
	m.ServiceRestarts = register(reg, m.ServiceRestarts)
	m.Actions = register(reg, m.Actions)
	m.ActionDuration = register(reg, m.ActionDuration)
	return m, nil
}

// register 注册收集器，已存在时返回已注册的实例
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.Warn("指标注册失败", "error", err)
	}
	return c
}

// ============================================================================
//                              事件总线
// ============================================================================

// EventPublished 记录一次发布及其分发耗时
func (m *Metrics) EventPublished(source string, delivered int, took time.Duration) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(source).Inc()
	if delivered > 0 {
		m.EventsDelivered.WithLabelValues(source).Add(float64(delivered))
	}
	m.DispatchDuration.WithLabelValues(source).Observe(took.Seconds())
}

// SequenceAnomaly 记录序号缺口或回退
func (m *Metrics) SequenceAnomaly(source string, regressed bool) {
	if m == nil {
		return
	}
	kind := "gap"
	if regressed {
		kind = "regression"
	}
	m.SequenceAnomalies.WithLabelValues(source, kind).Inc()
}

// HandlerFailed 记录处理器失败
func (m *Metrics) HandlerFailed(handler string, panicked bool) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(handler, strconv.FormatBool(panicked)).Inc()
}

// ============================================================================
//                              元数据
// ============================================================================

// 元数据请求结果
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultUnavailable = "unavailable"
	ResultOK          = "ok"
	ResultError       = "error"
)

// MetadataRequest 记录一次读取
func (m *Metrics) MetadataRequest(result string) {
	if m == nil {
		return
	}
	m.MetadataRequests.WithLabelValues(result).Inc()
}

// MetadataFetch 记录一次向协议拉取
func (m *Metrics) MetadataFetch(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.MetadataFetches.WithLabelValues(result).Inc()
}

// MetadataEvicted 记录一次容量淘汰
func (m *Metrics) MetadataEvicted() {
	if m == nil {
		return
	}
	m.MetadataEvictions.Inc()
}

// ============================================================================
//                              服务生命周期
// ============================================================================

// ServiceTransition 记录状态迁移
func (m *Metrics) ServiceTransition(service string, to types.ServiceState) {
	if m == nil {
		return
	}
	m.ServiceState.WithLabelValues(service).Set(float64(to))
	m.ServiceTransitions.WithLabelValues(service, to.String()).Inc()
}

// ServiceRestarted 记录自动重启
func (m *Metrics) ServiceRestarted(service string) {
	if m == nil {
		return
	}
	m.ServiceRestarts.WithLabelValues(service).Inc()
}

// ============================================================================
//                              动作
// ============================================================================

// ActionExecuted 记录一次动作执行
func (m *Metrics) ActionExecuted(platform string, kind types.ActionKind, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Actions.WithLabelValues(platform, string(kind), result).Inc()
	m.ActionDuration.WithLabelValues(platform).Observe(took.Seconds())
}

// Package metrics 提供核心组件的 Prometheus 指标
//
// 所有记录方法都对 nil *Metrics 安全，组件在未启用指标时传入 nil 即可。
//
// # 指标
//
//   - chatcore_events_published_total{source}
//   - chatcore_events_delivered_total{source}
//   - chatcore_events_sequence_anomalies_total{source,kind}
//   - chatcore_handler_failures_total{handler,panic}
//   - chatcore_dispatch_duration_seconds{source}
//   - chatcore_metadata_requests_total{result}
//   - chatcore_metadata_fetches_total{result}
//   - chatcore_metadata_evictions_total
//   - chatcore_service_state{service}
//   - chatcore_service_transitions_total{service,to}
//   - chatcore_service_restarts_total{service}
//
// # Fx 模块
//
//	app := fx.New(
//	    metrics.Module,
//	    fx.Invoke(func(m *metrics.Metrics) { ... }),
//	)
//
// 未提供 prometheus.Registerer 时使用独立的 prometheus.Registry。
package metrics

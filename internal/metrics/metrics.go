package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标（使用独立 Registry，nil 接收者上的调用均为空操作）
type Metrics struct {
	registry *prometheus.Registry

	syncRecords        *prometheus.CounterVec
	syncCycles         *prometheus.CounterVec
	auditDropped       prometheus.Counter
	auditWriteFailures prometheus.Counter
	reminders          *prometheus.CounterVec
	suggestionsShown   *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New 创建并注册指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afya_sync_records_total",
				Help: "Records processed by sync cycles, by result",
			},
			[]string{"result"},
		),
		syncCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afya_sync_cycles_total",
				Help: "Sync cycles, by outcome",
			},
			[]string{"outcome"},
		),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "afya_audit_dropped_total",
			Help: "Audit entries dropped because the queue was full",
		}),
		auditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "afya_audit_write_failures_total",
			Help: "Audit entries that failed to persist",
		}),
		reminders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afya_reminders_total",
				Help: "Follow-up reminders processed, by result",
			},
			[]string{"result"},
		),
		suggestionsShown: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afya_suggestions_shown_total",
				Help: "Decision support suggestions shown, by type",
			},
			[]string{"type"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afya_http_requests_total",
				Help: "HTTP requests handled by the device API",
			},
			[]string{"method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "afya_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	m.registry.MustRegister(
		m.syncRecords,
		m.syncCycles,
		m.auditDropped,
		m.auditWriteFailures,
		m.reminders,
		m.suggestionsShown,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSync 记录一次同步周期
func (m *Metrics) RecordSync(uploaded, failed int, offline bool) {
	if m == nil {
		return
	}
	m.syncRecords.WithLabelValues("uploaded").Add(float64(uploaded))
	m.syncRecords.WithLabelValues("failed").Add(float64(failed))
	switch {
	case offline:
		m.syncCycles.WithLabelValues("offline").Inc()
	case failed > 0:
		m.syncCycles.WithLabelValues("partial").Inc()
	default:
		m.syncCycles.WithLabelValues("ok").Inc()
	}
}

// AuditDropped 审计队列已满
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// AuditWriteFailed 审计写入失败
func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.auditWriteFailures.Inc()
}

// RecordReminder result: sent | failed | skipped
func (m *Metrics) RecordReminder(result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(result).Inc()
}

// SuggestionShown 记录展示的建议
func (m *Metrics) SuggestionShown(suggestionType string) {
	if m == nil {
		return
	}
	m.suggestionsShown.WithLabelValues(suggestionType).Inc()
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware 记录请求数与耗时
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		m.httpRequests.WithLabelValues(r.Method, strconv.Itoa(wrapper.statusCode)).Inc()
		m.httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

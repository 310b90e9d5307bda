package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue 从 Registry 中读取指定指标（按标签值匹配）的值
func counterValue(t *testing.T, m *Metrics, name string, labelValue string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelValue == "" {
				return metric.GetCounter().GetValue()
			}
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == labelValue {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRecordSync(t *testing.T) {
	m := New()
	m.RecordSync(4, 1, false)
	m.RecordSync(0, 0, true)

	assert.Equal(t, 4.0, counterValue(t, m, "afya_sync_records_total", "uploaded"))
	assert.Equal(t, 1.0, counterValue(t, m, "afya_sync_records_total", "failed"))
	assert.Equal(t, 1.0, counterValue(t, m, "afya_sync_cycles_total", "partial"))
	assert.Equal(t, 1.0, counterValue(t, m, "afya_sync_cycles_total", "offline"))
}

func TestAuditAndReminderCounters(t *testing.T) {
	m := New()
	m.AuditDropped()
	m.AuditDropped()
	m.AuditWriteFailed()
	m.RecordReminder("sent")
	m.SuggestionShown("TREATMENT")

	assert.Equal(t, 2.0, counterValue(t, m, "afya_audit_dropped_total", ""))
	assert.Equal(t, 1.0, counterValue(t, m, "afya_audit_write_failures_total", ""))
	assert.Equal(t, 1.0, counterValue(t, m, "afya_reminders_total", "sent"))
	assert.Equal(t, 1.0, counterValue(t, m, "afya_suggestions_shown_total", "TREATMENT"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSync(1, 1, false)
		m.AuditDropped()
		m.AuditWriteFailed()
		m.RecordReminder("failed")
		m.SuggestionShown("REFERRAL")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	h := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `afya_http_requests_total{method="GET",status="418"} 1`))
}

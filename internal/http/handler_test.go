package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/audit"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/decision"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/metrics"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/reminder"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSyncer struct {
	calls int
}

func (f *fakeSyncer) SyncAll(context.Context) models.SyncResult {
	f.calls++
	return models.SyncResult{Uploaded: 2, Failed: 1}
}

func (f *fakeSyncer) Status(context.Context) (*models.SyncStatus, error) {
	return &models.SyncStatus{Pending: models.PendingCount{Patients: 1}}, nil
}

type fakeReminders struct{}

func (fakeReminders) ProcessDueReminders(context.Context) (reminder.Result, error) {
	return reminder.Result{Sent: 1}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func setupServer(t *testing.T) (*httptest.Server, *fakeSyncer) {
	t.Helper()
	st := repository.NewMemoryStore()
	auditLog := audit.NewLogger(st.Audit, nil, zap.NewNop(), 256)
	t.Cleanup(auditLog.Close)

	wf := workflow.NewWorkflow(st, decision.NewEngine(zap.NewNop()), auditLog, "chw-1", zap.NewNop())
	syncer := &fakeSyncer{}
	h := NewHandler(wf, st.Visits, syncer, fakeReminders{}, metrics.New(), zap.NewNop())

	server := httptest.NewServer(NewRouter(h))
	t.Cleanup(server.Close)
	return server, syncer
}

func call(t *testing.T, server *httptest.Server, method, path string, body any) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestHandler_VisitFlow(t *testing.T) {
	server, _ := setupServer(t)

	env := call(t, server, http.MethodPost, "/api/v1/patients", map[string]any{
		"name":          "Amina Otieno",
		"date_of_birth": time.Now().AddDate(-2, 0, 0).Format("2006-01-02"),
		"sex":           "FEMALE",
		"village":       "Kisumu",
	})
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	env = call(t, server, http.MethodPost, "/api/v1/workflow/visit", nil)
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	env = call(t, server, http.MethodPost, "/api/v1/workflow/transcript", map[string]string{"text": "fever for 2 days and a cough"})
	require.Equal(t, ResultSuccess, env.Code, env.Message)
	var added []models.Symptom
	require.NoError(t, json.Unmarshal(env.Result, &added))
	assert.Len(t, added, 2)

	env = call(t, server, http.MethodPost, "/api/v1/workflow/suggestions", nil)
	require.Equal(t, ResultSuccess, env.Code, env.Message)
	var suggestions []models.Suggestion
	require.NoError(t, json.Unmarshal(env.Result, &suggestions))
	require.NotEmpty(t, suggestions)

	var paracetamolID string
	for _, s := range suggestions {
		if s.Title == "Consider: Paracetamol" {
			paracetamolID = s.ID
		}
	}
	require.NotEmpty(t, paracetamolID)
	env = call(t, server, http.MethodPost, "/api/v1/workflow/suggestions/"+paracetamolID+"/accept", nil)
	require.Equal(t, ResultSuccess, env.Code, env.Message)

	env = call(t, server, http.MethodPost, "/api/v1/workflow/complete", map[string]any{
		"follow_up": map[string]any{"days": 2, "reason": "Check fever", "sms_consent": true},
	})
	require.Equal(t, ResultSuccess, env.Code, env.Message)
	var view stateView
	require.NoError(t, json.Unmarshal(env.Result, &view))
	assert.Equal(t, "completed", view.State)
	require.NotNil(t, view.Completed)

	resp, err := http.Get(server.URL + "/api/v1/reports/visits")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "visit_register_")
}

func TestHandler_InvalidTransitionIsFailEnvelope(t *testing.T) {
	server, _ := setupServer(t)

	env := call(t, server, http.MethodPost, "/api/v1/workflow/suggestions", nil)
	assert.Equal(t, ResultError, env.Code)
	assert.Equal(t, "error", env.Type)
	assert.Contains(t, env.Message, "invalid workflow transition")

	env = call(t, server, http.MethodGet, "/api/v1/workflow/state", nil)
	assert.Equal(t, ResultSuccess, env.Code)
	assert.JSONEq(t, `{"state":"idle"}`, string(env.Result))
}

func TestHandler_CreatePatientValidation(t *testing.T) {
	server, _ := setupServer(t)

	env := call(t, server, http.MethodPost, "/api/v1/patients", map[string]any{"name": "", "sex": "MALE", "date_of_birth": "2024-01-01"})
	assert.Equal(t, ResultError, env.Code)

	env = call(t, server, http.MethodPost, "/api/v1/patients", map[string]any{"name": "Baraka", "sex": "MALE", "date_of_birth": "01/01/2024"})
	assert.Equal(t, ResultError, env.Code)
	assert.Equal(t, "invalid date_of_birth", env.Message)
}

func TestHandler_SyncAndReminders(t *testing.T) {
	server, syncer := setupServer(t)

	env := call(t, server, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, ResultSuccess, env.Code)
	var result models.SyncResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, 2, result.Uploaded)
	assert.Equal(t, 1, syncer.calls)

	env = call(t, server, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, ResultSuccess, env.Code)

	env = call(t, server, http.MethodPost, "/api/v1/reminders/run", nil)
	require.Equal(t, ResultSuccess, env.Code)
	assert.JSONEq(t, `{"sent":1,"failed":0,"skipped":0}`, string(env.Result))
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	server, _ := setupServer(t)

	env := call(t, server, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Result))

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "afya_http_requests_total")
}

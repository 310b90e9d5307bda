package syncer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	Path string
	Auth string
	Body []byte
}

// fakeServer 模拟后端，记录请求；failPaths 中的路径返回 500
func fakeServer(t *testing.T, failPaths ...string) (*httptest.Server, *[]recordedRequest) {
	var mu sync.Mutex
	var reqs []recordedRequest
	fail := make(map[string]bool)
	for _, p := range failPaths {
		fail[p] = true
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body})
		mu.Unlock()

		if fail[r.URL.Path] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Path == PathHealth {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestClient_UploadPatientPayload(t *testing.T) {
	srv, reqs := fakeServer(t)
	tokens := NewTokenSource("s3cret", "device-9", "chw-1", time.Hour)
	c := NewClient(srv.URL, time.Second, tokens, zap.NewNop())

	phone := "+254700000001"
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err := c.UploadPatient(context.Background(), models.Patient{
		ID:          "p-1",
		Name:        "Amina",
		DateOfBirth: time.Date(1970, 1, 11, 0, 0, 0, 0, time.UTC),
		Sex:         models.SexFemale,
		Village:     "Kisumu",
		Phone:       &phone,
		CreatedAt:   created,
		UpdatedAt:   created,
	})
	require.NoError(t, err)
	require.Len(t, *reqs, 1)

	req := (*reqs)[0]
	assert.Equal(t, PathPatients, req.Path)
	require.True(t, strings.HasPrefix(req.Auth, "Bearer "))

	claims, err := ParseDeviceToken(strings.TrimPrefix(req.Auth, "Bearer "), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "chw-1", claims.Subject)
	assert.Equal(t, "device-9", claims.DeviceID)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, float64(10), body["dateOfBirth"])
	assert.Equal(t, float64(created.UnixMilli()), body["createdAt"])
	assert.Equal(t, "FEMALE", body["sex"])
	assert.Nil(t, body["caregiverName"])
}

func TestClient_UploadVisitNestedJSON(t *testing.T) {
	srv, reqs := fakeServer(t)
	c := NewClient(srv.URL, time.Second, nil, zap.NewNop())

	temp := 39.8
	sev := models.SeveritySevere
	err := c.UploadVisit(context.Background(), models.Visit{
		ID:          "v-1",
		PatientID:   "p-1",
		ExaminerID:  "chw-1",
		StartTime:   time.Unix(1700000000, 0),
		Symptoms:    []models.Symptom{{Name: "fever", Present: true, Severity: &sev}},
		Vitals:      &models.Vitals{Temperature: &temp},
		DangerSigns: []string{"Lethargic or unconscious"},
		Referral:    &models.Referral{Facility: "Siaya CRH", Urgency: models.UrgencyEmergency, Reason: "lethargic"},
	})
	require.NoError(t, err)

	req := (*reqs)[0]
	assert.Equal(t, PathVisits, req.Path)
	assert.Empty(t, req.Auth)

	var body struct {
		CHWID       string `json:"chwId"`
		StartTime   int64  `json:"startTime"`
		EndTime     *int64 `json:"endTime"`
		Symptoms    []map[string]interface{}
		Vitals      map[string]interface{}
		DangerSigns []string `json:"dangerSigns"`
		Referral    map[string]interface{}
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "chw-1", body.CHWID)
	assert.Equal(t, int64(1700000000000), body.StartTime)
	assert.Nil(t, body.EndTime)
	assert.Equal(t, "SEVERE", body.Symptoms[0]["severity"])
	assert.Equal(t, 39.8, body.Vitals["temperature"])
	assert.Equal(t, []string{"Lethargic or unconscious"}, body.DangerSigns)
	assert.Equal(t, "EMERGENCY", body.Referral["urgency"])
}

func TestClient_UploadAuditBatch(t *testing.T) {
	srv, reqs := fakeServer(t)
	c := NewClient(srv.URL, time.Second, nil, zap.NewNop())

	detail := "Consider: Zinc"
	require.NoError(t, c.UploadAuditBatch(context.Background(), []models.AuditEntry{
		{ID: "a-1", ActorID: "chw-1", Action: models.ActionSuggestionAccepted, EntityType: "suggestion", EntityID: "s-1", Detail: &detail},
	}))

	var body []AuditPayload
	require.NoError(t, json.Unmarshal((*reqs)[0].Body, &body))
	require.Len(t, body, 1)
	assert.Equal(t, "suggestion_accepted", body[0].Action)
	assert.Equal(t, "chw-1", body[0].CHWID)

	tooMany := make([]models.AuditEntry, MaxAuditBatch+1)
	assert.Error(t, c.UploadAuditBatch(context.Background(), tooMany))
}

func TestClient_ErrorStatusNotRetried(t *testing.T) {
	srv, reqs := fakeServer(t, PathPatients)
	c := NewClient(srv.URL, time.Second, nil, zap.NewNop())

	err := c.UploadPatient(context.Background(), models.Patient{ID: "p-1"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Len(t, *reqs, 1)
}

func TestClient_Health(t *testing.T) {
	srv, _ := fakeServer(t)
	c := NewClient(srv.URL, time.Second, nil, zap.NewNop())
	assert.NoError(t, c.Health(context.Background()))

	down, _ := fakeServer(t, PathHealth)
	assert.Error(t, NewClient(down.URL, time.Second, nil, zap.NewNop()).Health(context.Background()))
}

func TestClient_OfflineEndToEnd(t *testing.T) {
	srv, _ := fakeServer(t)
	c := NewClient(srv.URL, time.Second, nil, zap.NewNop())
	srv.Close()

	assert.False(t, NewHealthConnectivity(c, time.Second).IsConnected(context.Background()))
}

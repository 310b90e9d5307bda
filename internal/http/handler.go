package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/metrics"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/reminder"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/report"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/workflow"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Syncer 同步能力（syncer.Manager 实现）
type Syncer interface {
	SyncAll(ctx context.Context) models.SyncResult
	Status(ctx context.Context) (*models.SyncStatus, error)
}

// ReminderRunner 提醒处理能力（reminder.Scheduler 实现）
type ReminderRunner interface {
	ProcessDueReminders(ctx context.Context) (reminder.Result, error)
}

// Handler 设备本地 API，驱动就诊工作流
type Handler struct {
	workflow  *workflow.Workflow
	visits    repository.VisitRepository
	syncer    Syncer
	reminders ReminderRunner
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHandler 创建 Handler
func NewHandler(wf *workflow.Workflow, visits repository.VisitRepository, syncer Syncer, reminders ReminderRunner, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if m == nil {
		m = metrics.New()
	}
	return &Handler{
		workflow:  wf,
		visits:    visits,
		syncer:    syncer,
		reminders: reminders,
		metrics:   m,
		logger:    logger,
	}
}

// fail 业务错误统一返回 HTTP 200 + Fail 信封；非预期错误记录日志
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, workflow.ErrValidation),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, repository.ErrNotFound):
		h.logger.Debug("Request rejected", zap.String("op", op), zap.Error(err))
	default:
		h.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, Fail(err.Error()))
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

// ============================================
// 患者
// ============================================

func (h *Handler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 20)
	patients, err := h.workflow.SearchPatients(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, "search patients", err)
		return
	}
	if patients == nil {
		patients = []models.Patient{}
	}
	writeJSON(w, http.StatusOK, Ok(patients))
}

type createPatientRequest struct {
	Name          string     `json:"name"`
	DateOfBirth   string     `json:"date_of_birth"` // YYYY-MM-DD
	Sex           models.Sex `json:"sex"`
	Village       string     `json:"village"`
	Phone         *string    `json:"phone"`
	CaregiverName *string    `json:"caregiver_name"`
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	dob, err := parseDate(req.DateOfBirth, time.Time{})
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid date_of_birth"))
		return
	}

	patient, err := h.workflow.CreatePatient(r.Context(), workflow.NewPatient{
		Name:          req.Name,
		DateOfBirth:   dob,
		Sex:           req.Sex,
		Village:       req.Village,
		Phone:         req.Phone,
		CaregiverName: req.CaregiverName,
	})
	if err != nil {
		h.fail(w, "create patient", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(patient))
}

func (h *Handler) SelectPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := h.workflow.SelectPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "select patient", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(patient))
}

type contactRequest struct {
	Phone         *string `json:"phone"`
	CaregiverName *string `json:"caregiver_name"`
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	patient, err := h.workflow.UpdateContact(r.Context(), req.Phone, req.CaregiverName)
	if err != nil {
		h.fail(w, "update contact", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(patient))
}

// ============================================
// 工作流
// ============================================

// stateView 状态的 JSON 视图
type stateView struct {
	State            string              `json:"state"`
	Patient          *models.Patient     `json:"patient,omitempty"`
	Visit            *models.Visit       `json:"visit,omitempty"`
	LastVisitSummary string              `json:"last_visit_summary,omitempty"`
	Suggestions      []models.Suggestion `json:"suggestions,omitempty"`
	Completed        *completedView      `json:"completed,omitempty"`
}

type completedView struct {
	VisitID         string `json:"visit_id"`
	PatientID       string `json:"patient_id"`
	DurationSeconds int64  `json:"duration_seconds"`
}

func newStateView(s workflow.State) stateView {
	view := stateView{State: s.Name()}
	switch st := s.(type) {
	case workflow.PatientSelected:
		view.Patient = &st.Patient
	case workflow.Capturing:
		view.Patient = &st.Patient
		view.Visit = &st.Visit
		view.LastVisitSummary = st.LastVisitSummary
	case workflow.Reviewing:
		view.Patient = &st.Patient
		view.Visit = &st.Visit
		view.Suggestions = st.Suggestions
	case workflow.Completed:
		view.Completed = &completedView{
			VisitID:         st.VisitID,
			PatientID:       st.PatientID,
			DurationSeconds: int64(st.Duration / time.Second),
		}
	}
	return view
}

func (h *Handler) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(newStateView(h.workflow.State())))
}

func (h *Handler) StartVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.workflow.StartVisit(r.Context())
	if err != nil {
		h.fail(w, "start visit", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(visit))
}

func (h *Handler) AddSymptom(w http.ResponseWriter, r *http.Request) {
	var req models.Symptom
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	h.visitResult(w, "add symptom")(h.workflow.AddSymptom(req))
}

func (h *Handler) RemoveSymptom(w http.ResponseWriter, r *http.Request) {
	h.visitResult(w, "remove symptom")(h.workflow.RemoveSymptom(chi.URLParam(r, "name")))
}

func (h *Handler) SetVitals(w http.ResponseWriter, r *http.Request) {
	var req models.Vitals
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	h.visitResult(w, "set vitals")(h.workflow.SetVitals(req))
}

func (h *Handler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	h.visitResult(w, "set notes")(h.workflow.SetNotes(req.Notes))
}

func (h *Handler) RecordRDT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Result models.RDTResult `json:"result"`
	}
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	h.visitResult(w, "record RDT")(h.workflow.RecordRDT(req.Result))
}

func (h *Handler) CheckDangerSigns(w http.ResponseWriter, _ *http.Request) {
	signs, err := h.workflow.CheckDangerSigns()
	if err != nil {
		h.fail(w, "check danger signs", err)
		return
	}
	if signs == nil {
		signs = []string{}
	}
	writeJSON(w, http.StatusOK, Ok(signs))
}

func (h *Handler) ConfirmDangerSign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	h.visitResult(w, "confirm danger sign")(h.workflow.ConfirmDangerSign(req.Name))
}

func (h *Handler) CaptureTranscript(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	added, err := h.workflow.CaptureTranscript(req.Text)
	if err != nil {
		h.fail(w, "capture transcript", err)
		return
	}
	if added == nil {
		added = []models.Symptom{}
	}
	writeJSON(w, http.StatusOK, Ok(added))
}

func (h *Handler) RequestSuggestions(w http.ResponseWriter, _ *http.Request) {
	suggestions, err := h.workflow.RequestSuggestions()
	if err != nil {
		h.fail(w, "request suggestions", err)
		return
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	writeJSON(w, http.StatusOK, Ok(suggestions))
}

func (h *Handler) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.AcceptSuggestion(chi.URLParam(r, "id")); err != nil {
		h.fail(w, "accept suggestion", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(newStateView(h.workflow.State())))
}

func (h *Handler) RejectSuggestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if err := h.workflow.RejectSuggestion(chi.URLParam(r, "id"), req.Reason); err != nil {
		h.fail(w, "reject suggestion", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(newStateView(h.workflow.State())))
}

func (h *Handler) CreateReferral(w http.ResponseWriter, r *http.Request) {
	var req models.Referral
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	h.visitResult(w, "create referral")(h.workflow.CreateReferral(req.Facility, req.Urgency, req.Reason))
}

type completeRequest struct {
	FollowUp *struct {
		Days       int    `json:"days"`
		Reason     string `json:"reason"`
		SMSConsent bool   `json:"sms_consent"`
	} `json:"follow_up"`
}

func (h *Handler) CompleteVisit(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	// 空 body 表示不安排随访
	if r.ContentLength != 0 {
		if err := readBodyJSON(r, &req); err != nil {
			writeJSON(w, http.StatusOK, Fail("invalid body"))
			return
		}
	}

	var plan *workflow.FollowUpPlan
	if req.FollowUp != nil {
		plan = &workflow.FollowUpPlan{
			Days:       req.FollowUp.Days,
			Reason:     req.FollowUp.Reason,
			SMSConsent: req.FollowUp.SMSConsent,
		}
	}

	completed, err := h.workflow.CompleteVisit(r.Context(), plan)
	if err != nil {
		h.fail(w, "complete visit", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(newStateView(completed)))
}

func (h *Handler) Reset(w http.ResponseWriter, _ *http.Request) {
	h.workflow.Reset()
	writeJSON(w, http.StatusOK, Ok(newStateView(h.workflow.State())))
}

// visitResult 返回就诊快照的操作统一输出
func (h *Handler) visitResult(w http.ResponseWriter, op string) func(models.Visit, error) {
	return func(visit models.Visit, err error) {
		if err != nil {
			h.fail(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(visit))
	}
}

// ============================================
// 同步 / 提醒 / 报表
// ============================================

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result := h.syncer.SyncAll(r.Context())
	writeJSON(w, http.StatusOK, Ok(result))
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncer.Status(r.Context())
	if err != nil {
		h.fail(w, "sync status", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	result, err := h.reminders.ProcessDueReminders(r.Context())
	if err != nil {
		h.fail(w, "run reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// ExportVisitRegister 导出就诊登记表（from/to 为 YYYY-MM-DD，默认最近 30 天）
func (h *Handler) ExportVisitRegister(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from, err := parseDate(r.URL.Query().Get("from"), now.AddDate(0, 0, -30))
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid from"))
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), now)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid to"))
		return
	}
	if r.URL.Query().Get("to") != "" {
		to = to.AddDate(0, 0, 1) // 包含结束日
	}

	visits, err := h.visits.ListCompleted(r.Context(), from, to)
	if err != nil {
		h.fail(w, "export visit register", err)
		return
	}
	data, err := report.VisitRegister(visits)
	if err != nil {
		h.fail(w, "export visit register", err)
		return
	}

	filename := fmt.Sprintf("visit_register_%s.xlsx", from.Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

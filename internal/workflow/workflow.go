package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/audit"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/decision"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/events"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/metrics"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidTransition 当前状态不允许该操作
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrValidation 输入校验失败，状态未改变
	ErrValidation = errors.New("validation failed")
)

// NewPatient 新建患者输入
type NewPatient struct {
	Name          string
	DateOfBirth   time.Time
	Sex           models.Sex
	Village       string
	Phone         *string
	CaregiverName *string
}

// FollowUpPlan 结束就诊时安排的随访
type FollowUpPlan struct {
	Days       int
	Reason     string
	SMSConsent bool
}

// Workflow 就诊工作流：设备上唯一的在诊患者/就诊写入者
type Workflow struct {
	store     *repository.Store
	engine    *decision.Engine
	audit     *audit.Logger
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	chwID string
	now   func() time.Time
	newID func() string

	mu          sync.Mutex
	state       State
	subscribers map[int]chan State
	nextSubID   int
}

// Option 工作流选项
type Option func(*Workflow)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithIDGenerator 注入 ID 生成器
func WithIDGenerator(newID func() string) Option {
	return func(w *Workflow) { w.newID = newID }
}

// WithPublisher 就诊完成事件发布
func WithPublisher(p events.Publisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

// WithMetrics 指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// NewWorkflow 创建就诊工作流，初始状态为 Idle
func NewWorkflow(st *repository.Store, engine *decision.Engine, auditLog *audit.Logger, chwID string, logger *zap.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		store:       st,
		engine:      engine,
		audit:       auditLog,
		publisher:   events.NopPublisher{},
		logger:      logger,
		chwID:       chwID,
		now:         time.Now,
		newID:       uuid.NewString,
		state:       Idle{},
		subscribers: make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State 当前状态快照
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe 订阅状态变化；通道只保留最新状态，订阅时立即收到当前状态
func (w *Workflow) Subscribe() (<-chan State, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextSubID
	w.nextSubID++
	ch := make(chan State, 1)
	ch <- w.state
	w.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.subscribers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// setState 调用方需持有 w.mu
func (w *Workflow) setState(s State) {
	w.state = s
	for _, ch := range w.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func invalid(op string, s State) error {
	return fmt.Errorf("%w: %s not allowed in %s", ErrInvalidTransition, op, s.Name())
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// canSelect 可以（重新）选择患者的状态
func canSelect(s State) bool {
	switch s.(type) {
	case Idle, PatientSelected, Completed:
		return true
	}
	return false
}

// ============================================
// 步骤 1：查找/创建患者
// ============================================

// SearchPatients 按姓名/村庄搜索患者
func (w *Workflow) SearchPatients(ctx context.Context, query string, limit int) ([]models.Patient, error) {
	return w.store.Patients.Search(ctx, strings.TrimSpace(query), limit)
}

// CreatePatient 创建并立即持久化患者身份，然后选中
func (w *Workflow) CreatePatient(ctx context.Context, in NewPatient) (models.Patient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !canSelect(w.state) {
		return models.Patient{}, invalid("create patient", w.state)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Patient{}, invalidInput("patient name is required")
	}
	if !in.Sex.Valid() {
		return models.Patient{}, invalidInput("invalid sex %q", in.Sex)
	}
	now := w.now()
	if in.DateOfBirth.IsZero() || in.DateOfBirth.After(now) {
		return models.Patient{}, invalidInput("invalid date of birth")
	}

	patient := models.Patient{
		ID:            w.newID(),
		Name:          name,
		DateOfBirth:   in.DateOfBirth,
		Sex:           in.Sex,
		Village:       strings.TrimSpace(in.Village),
		Phone:         trimmedOrNil(in.Phone),
		CaregiverName: trimmedOrNil(in.CaregiverName),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := w.store.Patients.Upsert(ctx, &patient); err != nil {
		return models.Patient{}, fmt.Errorf("failed to save patient: %w", err)
	}

	w.audit.PatientCreated(w.chwID, patient.ID)
	w.setState(PatientSelected{Patient: patient})
	return patient, nil
}

// SelectPatient 选择已有患者
func (w *Workflow) SelectPatient(ctx context.Context, patientID string) (models.Patient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !canSelect(w.state) {
		return models.Patient{}, invalid("select patient", w.state)
	}

	patient, err := w.store.Patients.Get(ctx, patientID)
	if err != nil {
		return models.Patient{}, fmt.Errorf("failed to load patient %s: %w", patientID, err)
	}

	w.audit.PatientViewed(w.chwID, patient.ID)
	w.setState(PatientSelected{Patient: *patient})
	return *patient, nil
}

// UpdateContact 更新当前患者的联系方式（身份字段不可变）
func (w *Workflow) UpdateContact(ctx context.Context, phone, caregiverName *string) (models.Patient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var patient models.Patient
	switch s := w.state.(type) {
	case PatientSelected:
		patient = s.Patient
	case Capturing:
		patient = s.Patient
	default:
		return models.Patient{}, invalid("update contact", w.state)
	}

	patient.Phone = trimmedOrNil(phone)
	patient.CaregiverName = trimmedOrNil(caregiverName)
	patient.UpdatedAt = w.now()
	patient.Synced = false
	if err := w.store.Patients.Upsert(ctx, &patient); err != nil {
		return models.Patient{}, fmt.Errorf("failed to update patient contact: %w", err)
	}

	switch s := w.state.(type) {
	case PatientSelected:
		w.setState(PatientSelected{Patient: patient})
	case Capturing:
		w.setState(Capturing{Patient: patient, Visit: s.Visit, LastVisitSummary: s.LastVisitSummary})
	}
	return patient, nil
}

// ============================================
// 步骤 2：开始就诊
// ============================================

// StartVisit 为选中患者创建新就诊（完成前不持久化）
func (w *Workflow) StartVisit(ctx context.Context) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	selected, ok := w.state.(PatientSelected)
	if !ok {
		return models.Visit{}, invalid("start visit", w.state)
	}

	visit := models.Visit{
		ID:          w.newID(),
		PatientID:   selected.Patient.ID,
		ExaminerID:  w.chwID,
		StartTime:   w.now(),
		Symptoms:    []models.Symptom{},
		DangerSigns: []string{},
	}

	w.audit.VisitStarted(w.chwID, visit.ID, selected.Patient.ID)
	w.setState(selected.startVisit(visit, w.lastVisitSummary(ctx, selected.Patient.ID)))
	return visit, nil
}

// lastVisitSummary 上次就诊摘要，如 "2026-03-01: fever, cough"；查询失败不影响就诊
func (w *Workflow) lastVisitSummary(ctx context.Context, patientID string) string {
	history, err := w.store.Visits.ListByPatient(ctx, patientID, 1)
	if err != nil {
		w.logger.Warn("Failed to load visit history", zap.String("patient_id", patientID), zap.Error(err))
		return ""
	}
	if len(history) == 0 {
		return ""
	}

	last := history[0]
	summary := last.StartTime.Format("2006-01-02")
	if last.Assessment != nil && *last.Assessment != "" {
		summary += ": " + *last.Assessment
	}
	if last.Referral != nil {
		summary += " (referred to " + last.Referral.Facility + ")"
	}
	return summary
}

// ============================================
// 步骤 3：采集
// ============================================

// mutateVisit 在 Capturing 状态下修改就诊
func (w *Workflow) mutateVisit(op string, mutate func(v *models.Visit)) (models.Visit, error) {
	capturing, ok := w.state.(Capturing)
	if !ok {
		return models.Visit{}, invalid(op, w.state)
	}
	next := capturing.withVisit(mutate)
	w.setState(next)
	return next.Visit, nil
}

// AddSymptom 添加症状；同名症状被替换
func (w *Workflow) AddSymptom(symptom models.Symptom) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	symptom.Name = strings.TrimSpace(symptom.Name)
	if symptom.Name == "" {
		return models.Visit{}, invalidInput("symptom name is required")
	}
	if symptom.Severity != nil && !symptom.Severity.Valid() {
		return models.Visit{}, invalidInput("invalid severity %q", *symptom.Severity)
	}

	return w.mutateVisit("add symptom", func(v *models.Visit) {
		for i := range v.Symptoms {
			if strings.EqualFold(v.Symptoms[i].Name, symptom.Name) {
				v.Symptoms[i] = symptom
				return
			}
		}
		v.Symptoms = append(v.Symptoms, symptom)
	})
}

// RemoveSymptom 移除症状
func (w *Workflow) RemoveSymptom(name string) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.mutateVisit("remove symptom", func(v *models.Visit) {
		kept := v.Symptoms[:0]
		for _, s := range v.Symptoms {
			if !strings.EqualFold(s.Name, name) {
				kept = append(kept, s)
			}
		}
		v.Symptoms = kept
	})
}

// SetVitals 设置生命体征
func (w *Workflow) SetVitals(vitals models.Vitals) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := validateVitals(vitals); err != nil {
		return models.Visit{}, err
	}
	return w.mutateVisit("set vitals", func(v *models.Visit) {
		v.Vitals = &vitals
	})
}

// SetNotes 设置备注
func (w *Workflow) SetNotes(notes string) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.mutateVisit("set notes", func(v *models.Visit) {
		v.Notes = trimmedOrNil(&notes)
	})
}

// RecordRDT 记录疟疾快速检测结果
func (w *Workflow) RecordRDT(result models.RDTResult) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !result.Valid() {
		return models.Visit{}, invalidInput("invalid RDT result %q", result)
	}
	return w.mutateVisit("record RDT", func(v *models.Visit) {
		v.RDTResult = result
	})
}

// CheckDangerSigns 快速危险征象检查：只读，不写入任何数据
func (w *Workflow) CheckDangerSigns() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	capturing, ok := w.state.(Capturing)
	if !ok {
		return nil, invalid("check danger signs", w.state)
	}
	age := capturing.Patient.AgeInMonths(w.now())
	return w.engine.QuickDangerCheck(capturing.Visit.Symptoms, capturing.Visit.Vitals, age), nil
}

// ConfirmDangerSign 操作员确认危险征象（只增不减）
func (w *Workflow) ConfirmDangerSign(name string) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return models.Visit{}, invalidInput("danger sign is required")
	}

	capturing, _ := w.state.(Capturing)
	var added bool
	visit, err := w.mutateVisit("confirm danger sign", func(v *models.Visit) {
		added = v.AddDangerSign(name)
	})
	if err != nil {
		return models.Visit{}, err
	}
	if added {
		w.audit.DangerSignDetected(w.chwID, visit.ID, audit.Redact(name, patientNames(capturing.Patient)...))
	}
	return visit, nil
}

// ExtractSymptoms 从转写文本提取症状（不修改状态）
func (w *Workflow) ExtractSymptoms(transcript string) []models.Symptom {
	return ExtractSymptoms(transcript)
}

// CaptureTranscript 提取症状并添加尚未录入的项，返回新增症状
func (w *Workflow) CaptureTranscript(transcript string) ([]models.Symptom, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	capturing, ok := w.state.(Capturing)
	if !ok {
		return nil, invalid("capture transcript", w.state)
	}

	var added []models.Symptom
	for _, s := range ExtractSymptoms(transcript) {
		if !capturing.Visit.HasSymptom(s.Name) {
			added = append(added, s)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}

	w.setState(capturing.withVisit(func(v *models.Visit) {
		v.Symptoms = append(v.Symptoms, added...)
	}))
	return added, nil
}

// ConsumeTranscript 持续消费语音转写流，直到通道关闭、ctx 取消或离开采集状态
func (w *Workflow) ConsumeTranscript(ctx context.Context, transcripts <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-transcripts:
			if !ok {
				return nil
			}
			added, err := w.CaptureTranscript(text)
			if errors.Is(err, ErrInvalidTransition) {
				return nil
			}
			if err != nil {
				return err
			}
			if len(added) > 0 {
				w.logger.Debug("Symptoms captured from transcript", zap.Int("count", len(added)))
			}
		}
	}
}

// ============================================
// 步骤 4/5：审阅建议、决策
// ============================================

// RequestSuggestions 冻结症状并运行一次完整评估；每条建议先记审计再返回
func (w *Workflow) RequestSuggestions() ([]models.Suggestion, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	capturing, ok := w.state.(Capturing)
	if !ok {
		return nil, invalid("request suggestions", w.state)
	}

	suggestions := w.engine.Evaluate(capturing.Patient, capturing.Visit)
	for _, sg := range suggestions {
		w.audit.SuggestionShown(w.chwID, sg.ID, sg.Title)
		w.metrics.SuggestionShown(string(sg.Type))
	}

	next := capturing.review(suggestions)
	w.setState(next)
	return append([]models.Suggestion(nil), next.Suggestions...), nil
}

// AcceptSuggestion 接受建议；审计先于内存更新
func (w *Workflow) AcceptSuggestion(suggestionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	reviewing, ok := w.state.(Reviewing)
	if !ok {
		return invalid("accept suggestion", w.state)
	}
	sg, found := reviewing.find(suggestionID)
	if !found {
		return invalidInput("unknown suggestion %s", suggestionID)
	}

	w.audit.SuggestionAccepted(w.chwID, sg.ID, sg.Title)
	w.setState(reviewing.withSuggestion(sg.ID, func(s *models.Suggestion) {
		s.Response = models.ResponseAccepted
		s.ResponseReason = ""
	}))
	return nil
}

// RejectSuggestion 拒绝建议，必须给出原因
func (w *Workflow) RejectSuggestion(suggestionID, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	reviewing, ok := w.state.(Reviewing)
	if !ok {
		return invalid("reject suggestion", w.state)
	}
	sg, found := reviewing.find(suggestionID)
	if !found {
		return invalidInput("unknown suggestion %s", suggestionID)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return invalidInput("rejection reason is required")
	}

	w.audit.SuggestionRejected(w.chwID, sg.ID, audit.Redact(reason, patientNames(reviewing.Patient)...))
	w.setState(reviewing.withSuggestion(sg.ID, func(s *models.Suggestion) {
		s.Response = models.ResponseRejected
		s.ResponseReason = reason
	}))
	return nil
}

// CreateReferral 创建转诊
func (w *Workflow) CreateReferral(facility string, urgency models.Urgency, reason string) (models.Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	reviewing, ok := w.state.(Reviewing)
	if !ok {
		return models.Visit{}, invalid("create referral", w.state)
	}
	facility = strings.TrimSpace(facility)
	if facility == "" {
		return models.Visit{}, invalidInput("referral facility is required")
	}
	if !urgency.Valid() {
		return models.Visit{}, invalidInput("invalid urgency %q", urgency)
	}

	next := reviewing.withReferral(models.Referral{Facility: facility, Urgency: urgency, Reason: strings.TrimSpace(reason)})
	w.audit.ReferralMade(w.chwID, next.Visit.ID, audit.Redact(facility, patientNames(reviewing.Patient)...))
	w.setState(next)
	return next.Visit, nil
}

// ============================================
// 步骤 6：结束就诊
// ============================================

// CompleteVisit 组装并持久化就诊；持久化失败时保持 Reviewing 并返回错误
func (w *Workflow) CompleteVisit(ctx context.Context, plan *FollowUpPlan) (Completed, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	reviewing, ok := w.state.(Reviewing)
	if !ok {
		return Completed{}, invalid("complete visit", w.state)
	}
	if plan != nil {
		if plan.Days <= 0 {
			return Completed{}, invalidInput("follow-up days must be positive")
		}
		if strings.TrimSpace(plan.Reason) == "" {
			return Completed{}, invalidInput("follow-up reason is required")
		}
	}

	end := w.now()
	visit := reviewing.finalize(end)
	if err := w.store.Visits.Upsert(ctx, &visit); err != nil {
		w.logger.Error("Failed to persist visit", zap.String("visit_id", visit.ID), zap.Error(err))
		return Completed{}, fmt.Errorf("failed to save visit: %w", err)
	}
	w.audit.VisitCompleted(w.chwID, visit.ID)

	scheduled := false
	if plan != nil {
		scheduled = w.scheduleFollowUp(ctx, visit, *plan, end)
	}

	evt := events.VisitCompleted{
		VisitID:           visit.ID,
		DangerSignCount:   len(visit.DangerSigns),
		Referred:          visit.Referral != nil,
		FollowUpScheduled: scheduled,
		CompletedAt:       end,
	}
	if err := w.publisher.PublishVisitCompleted(ctx, evt); err != nil {
		w.logger.Warn("Failed to publish visit completed event", zap.String("visit_id", visit.ID), zap.Error(err))
	}

	completed := Completed{
		VisitID:   visit.ID,
		PatientID: visit.PatientID,
		Duration:  end.Sub(visit.StartTime),
	}
	w.setState(completed)

	w.logger.Info("Visit completed",
		zap.String("visit_id", visit.ID),
		zap.Int("danger_signs", len(visit.DangerSigns)),
		zap.Bool("referred", visit.Referral != nil),
		zap.Duration("duration", completed.Duration),
	)
	return completed, nil
}

// scheduleFollowUp 就诊已保存，随访保存失败只记录日志
func (w *Workflow) scheduleFollowUp(ctx context.Context, visit models.Visit, plan FollowUpPlan, from time.Time) bool {
	followUp := models.FollowUp{
		ID:         w.newID(),
		VisitID:    visit.ID,
		PatientID:  visit.PatientID,
		DueDate:    from.AddDate(0, 0, plan.Days),
		Reason:     strings.TrimSpace(plan.Reason),
		SMSConsent: plan.SMSConsent,
	}
	if err := w.store.FollowUps.Insert(ctx, &followUp); err != nil {
		w.logger.Error("Failed to schedule follow-up", zap.String("visit_id", visit.ID), zap.Error(err))
		return false
	}
	w.audit.FollowUpScheduled(w.chwID, followUp.ID, followUp.DueDate)
	return true
}

// Reset 放弃当前状态回到 Idle（未完成的就诊不会被保存）
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setState(Idle{})
}

func validateVitals(v models.Vitals) error {
	if v.Temperature != nil && (*v.Temperature < 25 || *v.Temperature > 45) {
		return invalidInput("temperature out of range")
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate <= 0 || *v.RespiratoryRate > 200) {
		return invalidInput("respiratory rate out of range")
	}
	if v.Weight != nil && *v.Weight <= 0 {
		return invalidInput("weight must be positive")
	}
	if v.MUAC != nil && *v.MUAC <= 0 {
		return invalidInput("MUAC must be positive")
	}
	return nil
}

func patientNames(p models.Patient) []string {
	names := []string{p.Name}
	if p.CaregiverName != nil {
		names = append(names, *p.CaregiverName)
	}
	return names
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

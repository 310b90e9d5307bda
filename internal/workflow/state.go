package workflow

import (
	"strings"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
)

// State 工作流状态（封闭集合：Idle / PatientSelected / Capturing / Reviewing / Completed）
type State interface {
	Name() string
	sealed()
}

// Idle 无活动患者和就诊
type Idle struct{}

// PatientSelected 已选定患者
type PatientSelected struct {
	Patient models.Patient
}

// Capturing 采集症状、体征和危险征象
type Capturing struct {
	Patient          models.Patient
	Visit            models.Visit
	LastVisitSummary string
}

// Reviewing 审阅建议；症状已冻结
type Reviewing struct {
	Patient     models.Patient
	Visit       models.Visit
	Suggestions []models.Suggestion
}

// Completed 就诊已完成并持久化
type Completed struct {
	VisitID   string
	PatientID string
	Duration  time.Duration
}

func (Idle) Name() string            { return "idle" }
func (PatientSelected) Name() string { return "patient_selected" }
func (Capturing) Name() string       { return "capturing" }
func (Reviewing) Name() string       { return "reviewing" }
func (Completed) Name() string       { return "completed" }

func (Idle) sealed()            {}
func (PatientSelected) sealed() {}
func (Capturing) sealed()       {}
func (Reviewing) sealed()       {}
func (Completed) sealed()       {}

// ============================================
// 状态转换：每次返回新的状态值，不修改旧快照
// ============================================

func (s PatientSelected) startVisit(visit models.Visit, lastSummary string) Capturing {
	return Capturing{Patient: s.Patient, Visit: visit, LastVisitSummary: lastSummary}
}

func (s Capturing) withVisit(mutate func(v *models.Visit)) Capturing {
	visit := s.Visit.Clone()
	mutate(&visit)
	return Capturing{Patient: s.Patient, Visit: visit, LastVisitSummary: s.LastVisitSummary}
}

func (s Capturing) review(suggestions []models.Suggestion) Reviewing {
	return Reviewing{Patient: s.Patient, Visit: s.Visit.Clone(), Suggestions: suggestions}
}

func (s Reviewing) withSuggestion(id string, mutate func(sg *models.Suggestion)) Reviewing {
	suggestions := append([]models.Suggestion(nil), s.Suggestions...)
	for i := range suggestions {
		if suggestions[i].ID == id {
			mutate(&suggestions[i])
		}
	}
	return Reviewing{Patient: s.Patient, Visit: s.Visit, Suggestions: suggestions}
}

func (s Reviewing) withReferral(ref models.Referral) Reviewing {
	visit := s.Visit.Clone()
	visit.Referral = &ref
	return Reviewing{Patient: s.Patient, Visit: visit, Suggestions: s.Suggestions}
}

func (s Reviewing) find(id string) (models.Suggestion, bool) {
	for _, sg := range s.Suggestions {
		if sg.ID == id {
			return sg, true
		}
	}
	return models.Suggestion{}, false
}

// finalize 组装最终就诊记录：评估为存在症状的名称，治疗为已接受的治疗建议标题
func (s Reviewing) finalize(end time.Time) models.Visit {
	visit := s.Visit.Clone()
	visit.EndTime = &end

	assessment := strings.Join(visit.PresentSymptomNames(), ", ")
	treatment := TreatmentSummary(s.Suggestions)
	visit.Assessment = &assessment
	visit.Treatment = &treatment
	visit.Synced = false
	return visit
}

// TreatmentSummary 已接受的治疗建议标题（去掉 "Consider: " 前缀），逗号连接
func TreatmentSummary(suggestions []models.Suggestion) string {
	var titles []string
	for _, sg := range suggestions {
		if sg.Type == models.SuggestionTreatment && sg.IsAccepted() {
			titles = append(titles, strings.TrimPrefix(sg.Title, "Consider: "))
		}
	}
	return strings.Join(titles, ", ")
}

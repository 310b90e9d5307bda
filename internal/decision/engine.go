package decision

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/guidelines"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine 决策支持引擎：基于规则、完全可解释，只提供建议，不做诊断
type Engine struct {
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 注入时钟（用于计算月龄）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator 注入建议 ID 生成器
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine 创建决策支持引擎
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate 评估就诊并返回排序后的建议列表
func (e *Engine) Evaluate(patient models.Patient, visit models.Visit) []models.Suggestion {
	ageMonths := patient.AgeInMonths(e.now())
	var suggestions []models.Suggestion

	// 1. 已确认危险征象 → 紧急转诊
	if visit.HasDangerSigns() {
		suggestions = append(suggestions, models.Suggestion{
			Type:         models.SuggestionReferral,
			Title:        "Urgent Referral Needed",
			Description:  "Refer to nearest health facility immediately",
			Reason:       "Danger sign confirmed: " + strings.Join(visit.DangerSigns, ", "),
			BasedOn:      append([]string(nil), visit.DangerSigns...),
			GuidelineRef: "WHO IMCI General Danger Signs",
			Confidence:   models.ConfidenceHigh,
			IsUrgent:     true,
		})
	}

	// 2. 体征越界 → 每项一条 DANGER_SIGN
	if visit.Vitals != nil {
		for _, ds := range guidelines.CheckVitals(*visit.Vitals, ageMonths) {
			suggestions = append(suggestions, models.Suggestion{
				Type:         models.SuggestionDangerSign,
				Title:        "Warning: " + ds.Name,
				Description:  ds.Action,
				Reason:       "Vital sign is outside safe range",
				BasedOn:      []string{ds.Name},
				GuidelineRef: guidelines.RefIMCI,
				Confidence:   models.ConfidenceHigh,
				IsUrgent:     true,
			})
		}
	}

	// 3. 发热且无危险征象 → 疟疾分支
	symptomNames := visit.PresentSymptomNames()
	if guidelines.HasFever(symptomNames) && !visit.HasDangerSigns() {
		suggestions = append(suggestions, guidelines.MalariaSuggestions(true, visit.RDTResult)...)
	}

	// 4. 对症治疗（按月龄选剂量档位）
	for _, tx := range guidelines.TreatmentsFor(symptomNames) {
		suggestions = append(suggestions, models.Suggestion{
			Type:         models.SuggestionTreatment,
			Title:        "Consider: " + tx.Name,
			Description:  treatmentDescription(tx, ageMonths),
			Reason:       "Indicated for " + tx.Indication,
			BasedOn:      tx.MatchingSymptoms(symptomNames),
			GuidelineRef: tx.GuidelineRef,
			Confidence:   models.ConfidenceHigh,
		})
	}

	for i := range suggestions {
		suggestions[i].ID = e.newID()
		if err := suggestions[i].Validate(); err != nil {
			e.logger.Error("Suggestion failed explainability check",
				zap.String("title", suggestions[i].Title),
				zap.Error(err),
			)
		}
	}

	// 5. 按优先级稳定排序
	SortByPriority(suggestions)

	e.logger.Debug("Visit evaluated",
		zap.String("visit_id", visit.ID),
		zap.Int("age_months", ageMonths),
		zap.Int("suggestions", len(suggestions)),
	)
	return suggestions
}

// QuickDangerCheck 采集过程中的快速危险征象检查，无副作用，结果去重
func (e *Engine) QuickDangerCheck(symptoms []models.Symptom, vitals *models.Vitals, ageMonths int) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(signs []guidelines.DangerSign) {
		for _, ds := range signs {
			if !seen[ds.Name] {
				seen[ds.Name] = true
				names = append(names, ds.Name)
			}
		}
	}

	add(guidelines.CheckSymptoms(symptoms))
	if vitals != nil {
		add(guidelines.CheckVitals(*vitals, ageMonths))
	}
	return names
}

// EvaluateMaternal 孕产期评估：有危险征象 → 紧急转诊；否则 → 常规咨询
func (e *Engine) EvaluateMaternal(antenatal bool, mentioned []string) []models.Suggestion {
	suggestions := guidelines.MaternalDangerSuggestions(antenatal, mentioned)
	if len(suggestions) == 0 {
		suggestions = []models.Suggestion{guidelines.MaternalCounsel(antenatal)}
	}
	for i := range suggestions {
		suggestions[i].ID = e.newID()
	}
	return suggestions
}

// Priority 排序优先级：紧急 > 危险征象 > 转诊 > 治疗 > 其他
func Priority(s models.Suggestion) int {
	switch {
	case s.IsUrgent:
		return 100
	case s.Type == models.SuggestionDangerSign:
		return 90
	case s.Type == models.SuggestionReferral:
		return 80
	case s.Type == models.SuggestionTreatment:
		return 70
	default:
		return 50
	}
}

// SortByPriority 按优先级降序稳定排序，同级保持原顺序
func SortByPriority(suggestions []models.Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		return Priority(suggestions[i]) > Priority(suggestions[j])
	})
}

func treatmentDescription(tx guidelines.Treatment, ageMonths int) string {
	var b strings.Builder
	b.WriteString(DoseForAge(tx, ageMonths))
	b.WriteString("\n\n")
	for i, line := range tx.Instructions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• ")
		b.WriteString(line)
	}
	return b.String()
}

// DoseForAge 按月龄选择剂量档位，无匹配时回退到第一档
func DoseForAge(tx guidelines.Treatment, ageMonths int) string {
	var keys []string
	switch {
	case ageMonths < 6:
		keys = []string{"6 month", "under"}
	case ageMonths < 24:
		keys = []string{"2 year", "under 2", "6-"}
	default:
		keys = []string{"5 year", "2-5", "10"}
	}

	for _, bracket := range tx.Dosing {
		key := strings.ToLower(bracket.Key)
		for _, k := range keys {
			if strings.Contains(key, k) {
				return formatDose(bracket)
			}
		}
	}
	if len(tx.Dosing) == 0 {
		return ""
	}
	return formatDose(tx.Dosing[0])
}

func formatDose(b guidelines.DoseBracket) string {
	return fmt.Sprintf("%s: %s", b.Key, b.Value)
}

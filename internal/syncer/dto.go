package syncer

import (
	"encoding/json"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
)

// 后端接口的传输结构：camelCase 字段，时间为毫秒时间戳，出生日期为 epoch 天数

// PatientPayload 患者上传体
type PatientPayload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	DateOfBirth   int64   `json:"dateOfBirth"`
	Sex           string  `json:"sex"`
	Village       string  `json:"village"`
	Phone         *string `json:"phone"`
	CaregiverName *string `json:"caregiverName"`
	CreatedAt     int64   `json:"createdAt"`
	UpdatedAt     int64   `json:"updatedAt"`
}

// VisitPayload 就诊上传体（子结构为嵌套 JSON）
type VisitPayload struct {
	ID          string          `json:"id"`
	PatientID   string          `json:"patientId"`
	CHWID       string          `json:"chwId"`
	StartTime   int64           `json:"startTime"`
	EndTime     *int64          `json:"endTime"`
	Symptoms    json.RawMessage `json:"symptoms"`
	Vitals      json.RawMessage `json:"vitals"`
	DangerSigns json.RawMessage `json:"dangerSigns"`
	RDTResult   string          `json:"rdtResult,omitempty"`
	Assessment  *string         `json:"assessment"`
	Treatment   *string         `json:"treatment"`
	Referral    json.RawMessage `json:"referral"`
	Notes       *string         `json:"notes"`
}

// AuditPayload 审计上传体
type AuditPayload struct {
	ID         string  `json:"id"`
	Timestamp  int64   `json:"timestamp"`
	CHWID      string  `json:"chwId"`
	Action     string  `json:"action"`
	EntityType string  `json:"entityType"`
	EntityID   string  `json:"entityId"`
	Details    *string `json:"details"`
}

type symptomPayload struct {
	Name     string  `json:"name"`
	Present  bool    `json:"present"`
	Duration *string `json:"duration"`
	Severity *string `json:"severity"`
}

type vitalsPayload struct {
	Temperature     *float64 `json:"temperature"`
	RespiratoryRate *int     `json:"respiratoryRate"`
	Weight          *float64 `json:"weight"`
	MUAC            *int     `json:"muac"`
}

type referralPayload struct {
	Facility string `json:"facility"`
	Urgency  string `json:"urgency"`
	Reason   string `json:"reason"`
}

const millisPerDay = 24 * 60 * 60 * 1000

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// toEpochDays 按日历日期计算（忽略时区偏移）
func toEpochDays(t time.Time) int64 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.UnixMilli() / millisPerDay
}

// NewPatientPayload 转换患者
func NewPatientPayload(p models.Patient) PatientPayload {
	return PatientPayload{
		ID:            p.ID,
		Name:          p.Name,
		DateOfBirth:   toEpochDays(p.DateOfBirth),
		Sex:           string(p.Sex),
		Village:       p.Village,
		Phone:         p.Phone,
		CaregiverName: p.CaregiverName,
		CreatedAt:     toMillis(p.CreatedAt),
		UpdatedAt:     toMillis(p.UpdatedAt),
	}
}

// NewVisitPayload 转换就诊
func NewVisitPayload(v models.Visit) (VisitPayload, error) {
	out := VisitPayload{
		ID:         v.ID,
		PatientID:  v.PatientID,
		CHWID:      v.ExaminerID,
		StartTime:  toMillis(v.StartTime),
		RDTResult:  string(v.RDTResult),
		Assessment: v.Assessment,
		Treatment:  v.Treatment,
		Notes:      v.Notes,
	}
	if v.EndTime != nil {
		end := toMillis(*v.EndTime)
		out.EndTime = &end
	}

	symptoms := make([]symptomPayload, 0, len(v.Symptoms))
	for _, s := range v.Symptoms {
		sp := symptomPayload{Name: s.Name, Present: s.Present, Duration: s.Duration}
		if s.Severity != nil {
			sev := string(*s.Severity)
			sp.Severity = &sev
		}
		symptoms = append(symptoms, sp)
	}

	var err error
	if out.Symptoms, err = json.Marshal(symptoms); err != nil {
		return out, err
	}
	dangerSigns := v.DangerSigns
	if dangerSigns == nil {
		dangerSigns = []string{}
	}
	if out.DangerSigns, err = json.Marshal(dangerSigns); err != nil {
		return out, err
	}

	out.Vitals = json.RawMessage("null")
	if v.Vitals != nil {
		if out.Vitals, err = json.Marshal(vitalsPayload{
			Temperature:     v.Vitals.Temperature,
			RespiratoryRate: v.Vitals.RespiratoryRate,
			Weight:          v.Vitals.Weight,
			MUAC:            v.Vitals.MUAC,
		}); err != nil {
			return out, err
		}
	}

	out.Referral = json.RawMessage("null")
	if v.Referral != nil {
		if out.Referral, err = json.Marshal(referralPayload{
			Facility: v.Referral.Facility,
			Urgency:  string(v.Referral.Urgency),
			Reason:   v.Referral.Reason,
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}

// NewAuditPayloads 转换审计批次
func NewAuditPayloads(entries []models.AuditEntry) []AuditPayload {
	out := make([]AuditPayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditPayload{
			ID:         e.ID,
			Timestamp:  toMillis(e.OccurredAt),
			CHWID:      e.ActorID,
			Action:     string(e.Action),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Details:    e.Detail,
		})
	}
	return out
}

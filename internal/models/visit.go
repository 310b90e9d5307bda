package models

import (
	"strings"
	"time"
)

// Severity 症状严重程度
type Severity string

const (
	SeverityMild     Severity = "MILD"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

// Valid 是否为合法取值
func (s Severity) Valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// Urgency 转诊紧急程度
type Urgency string

const (
	UrgencyEmergency Urgency = "EMERGENCY"
	UrgencyUrgent    Urgency = "URGENT"
	UrgencyRoutine   Urgency = "ROUTINE"
)

// Valid 是否为合法取值
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyEmergency, UrgencyUrgent, UrgencyRoutine:
		return true
	}
	return false
}

// RDTResult 疟疾快速检测结果（空串表示未做）
type RDTResult string

const (
	RDTNotDone  RDTResult = ""
	RDTPositive RDTResult = "positive"
	RDTNegative RDTResult = "negative"
)

// Valid 是否为合法取值
func (r RDTResult) Valid() bool {
	switch r {
	case RDTNotDone, RDTPositive, RDTNegative:
		return true
	}
	return false
}

// Symptom 症状（JSONB 结构）
type Symptom struct {
	Name     string    `json:"name"`
	Present  bool      `json:"present"`
	Duration *string   `json:"duration,omitempty"` // "3 days", "1 week"
	Severity *Severity `json:"severity,omitempty"`
}

// Vitals 生命体征（JSONB 结构），各项独立可选
type Vitals struct {
	Temperature     *float64 `json:"temperature,omitempty"`      // 摄氏度
	RespiratoryRate *int     `json:"respiratory_rate,omitempty"` // 次/分
	Weight          *float64 `json:"weight,omitempty"`           // kg
	MUAC            *int     `json:"muac,omitempty"`             // mm
}

// Referral 转诊（JSONB 结构）
type Referral struct {
	Facility string  `json:"facility"`
	Urgency  Urgency `json:"urgency"`
	Reason   string  `json:"reason"`
}

// Visit 就诊记录（对应 visits 表）
type Visit struct {
	ID          string     `json:"id" db:"id"`
	PatientID   string     `json:"patient_id" db:"patient_id"`
	ExaminerID  string     `json:"examiner_id" db:"examiner_id"`
	StartTime   time.Time  `json:"start_time" db:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty" db:"end_time"`
	Symptoms    []Symptom  `json:"symptoms" db:"symptoms"`         // JSONB
	Vitals      *Vitals    `json:"vitals,omitempty" db:"vitals"`   // JSONB
	DangerSigns []string   `json:"danger_signs" db:"danger_signs"` // JSONB，只增不减
	RDTResult   RDTResult  `json:"rdt_result" db:"rdt_result"`
	Assessment  *string    `json:"assessment,omitempty" db:"assessment"`
	Treatment   *string    `json:"treatment,omitempty" db:"treatment"`
	Referral    *Referral  `json:"referral,omitempty" db:"referral"` // JSONB
	Notes       *string    `json:"notes,omitempty" db:"notes"`
	Synced      bool       `json:"synced" db:"synced"`
}

// PresentSymptomNames 返回存在的症状名称（保持录入顺序）
func (v Visit) PresentSymptomNames() []string {
	names := make([]string, 0, len(v.Symptoms))
	for _, s := range v.Symptoms {
		if s.Present {
			names = append(names, s.Name)
		}
	}
	return names
}

// HasDangerSigns 是否已确认危险征象
func (v Visit) HasDangerSigns() bool {
	return len(v.DangerSigns) > 0
}

// HasSymptom 是否已录入同名症状（忽略大小写）
func (v Visit) HasSymptom(name string) bool {
	for _, s := range v.Symptoms {
		if strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

// AddDangerSign 追加危险征象，重复项忽略；返回是否新增
func (v *Visit) AddDangerSign(name string) bool {
	for _, ds := range v.DangerSigns {
		if ds == name {
			return false
		}
	}
	v.DangerSigns = append(v.DangerSigns, name)
	return true
}

// Clone 深拷贝，保证工作流之外的观察者拿到的快照不会被后续修改影响
func (v Visit) Clone() Visit {
	out := v
	out.Symptoms = append([]Symptom(nil), v.Symptoms...)
	out.DangerSigns = append([]string(nil), v.DangerSigns...)
	if v.Vitals != nil {
		vitals := *v.Vitals
		out.Vitals = &vitals
	}
	if v.Referral != nil {
		ref := *v.Referral
		out.Referral = &ref
	}
	return out
}

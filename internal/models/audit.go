package models

import "time"

// AuditAction 审计动作代码
type AuditAction string

const (
	ActionPatientCreated     AuditAction = "patient_created"
	ActionPatientViewed      AuditAction = "patient_viewed"
	ActionVisitStarted       AuditAction = "visit_started"
	ActionVisitCompleted     AuditAction = "visit_completed"
	ActionSuggestionShown    AuditAction = "suggestion_shown"
	ActionSuggestionAccepted AuditAction = "suggestion_accepted"
	ActionSuggestionRejected AuditAction = "suggestion_rejected"
	ActionDangerSignDetected AuditAction = "danger_sign_detected"
	ActionReferralMade       AuditAction = "referral_made"
	ActionFollowUpScheduled  AuditAction = "follow_up_scheduled"
	ActionReminderSent       AuditAction = "reminder_sent"
	ActionReminderFailed     AuditAction = "reminder_failed"
)

// 审计主体类型
const (
	EntityPatient    = "patient"
	EntityVisit      = "visit"
	EntitySuggestion = "suggestion"
	EntityFollowUp   = "follow_up"
)

// AuditEntry 审计记录（对应 audit_entries 表），写入后不可修改
// Detail 不得包含可识别患者身份的内容
type AuditEntry struct {
	ID         string      `json:"id" db:"id"`
	OccurredAt time.Time   `json:"occurred_at" db:"occurred_at"`
	ActorID    string      `json:"actor_id" db:"actor_id"`
	Action     AuditAction `json:"action" db:"action"`
	EntityType string      `json:"entity_type" db:"entity_type"`
	EntityID   string      `json:"entity_id" db:"entity_id"`
	Detail     *string     `json:"detail,omitempty" db:"detail"`
	Synced     bool        `json:"synced" db:"synced"`
}

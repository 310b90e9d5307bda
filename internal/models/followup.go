package models

import "time"

// FollowUp 随访（对应 follow_ups 表）
// ReminderSentAt 只允许从 nil 变为非 nil 一次
type FollowUp struct {
	ID             string     `json:"id" db:"id"`
	VisitID        string     `json:"visit_id" db:"visit_id"`
	PatientID      string     `json:"patient_id" db:"patient_id"`
	DueDate        time.Time  `json:"due_date" db:"due_date"`
	Reason         string     `json:"reason" db:"reason"`
	SMSConsent     bool       `json:"sms_consent" db:"sms_consent"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	Synced         bool       `json:"synced" db:"synced"`
}

// DueForReminder 是否应当发送提醒：已到期、已同意、未发送
func (f FollowUp) DueForReminder(now time.Time) bool {
	return !f.DueDate.After(now) && f.SMSConsent && f.ReminderSentAt == nil
}

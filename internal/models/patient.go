package models

import (
	"time"
)

// Sex 性别
type Sex string

const (
	SexMale   Sex = "MALE"
	SexFemale Sex = "FEMALE"
	SexOther  Sex = "OTHER"
)

// Valid 是否为合法取值
func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale, SexOther:
		return true
	}
	return false
}

// Patient 患者（对应 patients 表）
// 身份字段创建后不可变；Phone/CaregiverName 为可变联系方式
type Patient struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	DateOfBirth   time.Time `json:"date_of_birth" db:"date_of_birth"`
	Sex           Sex       `json:"sex" db:"sex"`
	Village       string    `json:"village" db:"village"`
	Phone         *string   `json:"phone,omitempty" db:"phone"`
	CaregiverName *string   `json:"caregiver_name,omitempty" db:"caregiver_name"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
	Synced        bool      `json:"synced" db:"synced"`
}

// AgeInMonths 以 at 所在日期计算月龄（年差*12 + 月差，不足 0 记为 0）
func (p Patient) AgeInMonths(at time.Time) int {
	months := (at.Year()-p.DateOfBirth.Year())*12 + int(at.Month()) - int(p.DateOfBirth.Month())
	if months < 0 {
		return 0
	}
	return months
}

// IsUnderFive 是否五岁以下
func (p Patient) IsUnderFive(at time.Time) bool {
	return p.AgeInMonths(at) < 60
}

// PhoneNumber 返回电话号码（未登记时为空串）
func (p Patient) PhoneNumber() string {
	if p.Phone == nil {
		return ""
	}
	return *p.Phone
}

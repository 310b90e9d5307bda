package models

import (
	"errors"
	"strings"
)

// SuggestionType 建议类型
type SuggestionType string

const (
	SuggestionDangerSign SuggestionType = "DANGER_SIGN"
	SuggestionAssessment SuggestionType = "ASSESSMENT"
	SuggestionTreatment  SuggestionType = "TREATMENT"
	SuggestionReferral   SuggestionType = "REFERRAL"
	SuggestionQuestion   SuggestionType = "QUESTION"
)

// Confidence 置信度
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// SuggestionResponse 人工处理结果
type SuggestionResponse string

const (
	ResponseUnset    SuggestionResponse = ""
	ResponseAccepted SuggestionResponse = "ACCEPTED"
	ResponseRejected SuggestionResponse = "REJECTED"
)

// ErrMissingExplanation 建议缺少可解释性字段
var ErrMissingExplanation = errors.New("suggestion is missing reason, basedOn or guidelineRef")

// Suggestion 决策支持建议（不单独持久化）
type Suggestion struct {
	ID             string             `json:"id"`
	Type           SuggestionType     `json:"type"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Reason         string             `json:"reason"`
	BasedOn        []string           `json:"based_on"`
	GuidelineRef   string             `json:"guideline_ref"`
	Confidence     Confidence         `json:"confidence"`
	IsUrgent       bool               `json:"is_urgent"`
	Response       SuggestionResponse `json:"response,omitempty"`
	ResponseReason string             `json:"response_reason,omitempty"`
}

// Validate 校验可解释性三元组 {reason, basedOn, guidelineRef}
func (s Suggestion) Validate() error {
	if strings.TrimSpace(s.Reason) == "" || strings.TrimSpace(s.GuidelineRef) == "" || len(s.BasedOn) == 0 {
		return ErrMissingExplanation
	}
	return nil
}

// IsAccepted 是否已被接受
func (s Suggestion) IsAccepted() bool {
	return s.Response == ResponseAccepted
}

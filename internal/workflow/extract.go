package workflow

import (
	"regexp"
	"strings"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
)

type symptomPhrase struct {
	keyword string
	symptom string
}

// 关键词匹配表（按顺序），不是 NLP
var symptomPhrases = []symptomPhrase{
	{"fever", "fever"},
	{"diarr", "diarrhea"},
	{"cough", "cough"},
	{"vomit", "vomiting"},
	{"not drinking", "poor intake"},
	{"not eating", "poor intake"},
	{"won't drink", "poor intake"},
	{"won't eat", "poor intake"},
	{"breathing fast", "fast breathing"},
	{"difficult breath", "difficulty breathing"},
}

var durationPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(symptomPhrases))
	for _, p := range symptomPhrases {
		out[p.keyword] = regexp.MustCompile(regexp.QuoteMeta(p.keyword) + `.{0,20}?(\d+)\s*(days|day|weeks|week|hours|hour)`)
	}
	return out
}()

// ExtractSymptoms 从转写文本中提取症状（大小写不敏感，同名症状只保留首个）
func ExtractSymptoms(transcript string) []models.Symptom {
	text := strings.ToLower(transcript)
	seen := make(map[string]bool)
	var symptoms []models.Symptom

	for _, p := range symptomPhrases {
		if !strings.Contains(text, p.keyword) || seen[p.symptom] {
			continue
		}
		seen[p.symptom] = true

		sym := models.Symptom{Name: p.symptom, Present: true}
		if d := extractDuration(text, p.keyword); d != "" {
			sym.Duration = &d
		}
		symptoms = append(symptoms, sym)
	}
	return symptoms
}

// extractDuration 提取关键词后的 "3 days" 一类时长
func extractDuration(text, keyword string) string {
	m := durationPatterns[keyword].FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + " " + m[2]
}

package guidelines

import "strings"

// DoseBracket 剂量档位（按表内顺序匹配）
type DoseBracket struct {
	Key   string
	Value string
}

// Treatment 社区卫生工作者可执行的治疗方案
type Treatment struct {
	Name         string
	Indication   string
	Keyword      string // 症状名匹配关键词（小写子串）
	Dosing       []DoseBracket
	Instructions []string
	GuidelineRef string
}

var (
	ORS = Treatment{
		Name:       "ORS (Oral Rehydration Salts)",
		Indication: "Diarrhea",
		Keyword:    "diarr",
		Dosing: []DoseBracket{
			{"Under 2 years", "50-100ml after each loose stool"},
			{"2-5 years", "100-200ml after each loose stool"},
		},
		Instructions: []string{
			"Mix 1 packet with 1 liter clean water",
			"Give small sips frequently",
			"If child vomits, wait 10 minutes, continue slowly",
			"Good for 24 hours after mixing",
		},
		GuidelineRef: "WHO IMCI Plan A",
	}

	Zinc = Treatment{
		Name:       "Zinc",
		Indication: "Diarrhea (with ORS)",
		Keyword:    "diarr",
		Dosing: []DoseBracket{
			{"Under 6 months", "10mg once daily for 10-14 days"},
			{"6 months to 5 years", "20mg once daily for 10-14 days"},
		},
		Instructions: []string{
			"Continue even after diarrhea stops",
			"Dissolve in breast milk or water for infants",
		},
		GuidelineRef: RefIMCI,
	}

	Paracetamol = Treatment{
		Name:       "Paracetamol",
		Indication: "Fever ≥38°C",
		Keyword:    "fever",
		Dosing: []DoseBracket{
			{"4-6 kg", "60mg (quarter tablet)"},
			{"6-10 kg", "125mg (half tablet)"},
			{"10-19 kg", "250mg (1 tablet)"},
		},
		Instructions: []string{
			"Give every 6 hours if fever continues",
			"Maximum 4 doses per day",
			"Use tepid sponging as well",
		},
		GuidelineRef: RefIMCI,
	}
)

// TreatmentsFor 根据存在的症状名返回适用治疗（腹泻 → ORS + 锌；发热 → 扑热息痛）
func TreatmentsFor(symptomNames []string) []Treatment {
	var out []Treatment
	if anyContains(symptomNames, "diarr") {
		out = append(out, ORS, Zinc)
	}
	if anyContains(symptomNames, "fever") {
		out = append(out, Paracetamol)
	}
	return out
}

// MatchingSymptoms 返回触发该治疗的症状名（作为 basedOn 证据）
func (t Treatment) MatchingSymptoms(symptomNames []string) []string {
	var out []string
	for _, n := range symptomNames {
		if strings.Contains(strings.ToLower(n), t.Keyword) {
			out = append(out, n)
		}
	}
	return out
}

// HasFever 症状中是否有发热类
func HasFever(symptomNames []string) bool {
	return anyContains(symptomNames, "fever")
}

func anyContains(names []string, keyword string) bool {
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), keyword) {
			return true
		}
	}
	return false
}

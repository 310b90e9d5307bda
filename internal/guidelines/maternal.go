package guidelines

import (
	"strings"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
)

// ANCDangerSigns 产前危险征象
var ANCDangerSigns = []string{
	"Severe headache",
	"Blurred vision",
	"Fits",
	"Vaginal bleeding",
	"Fever",
	"Severe abdominal pain",
	"Severe breathlessness",
}

// PNCDangerSigns 产后危险征象（母亲或新生儿）
var PNCDangerSigns = []string{
	"Heavy bleeding",
	"Fever",
	"Fits",
	"Newborn not feeding",
	"Newborn convulsions",
	"Newborn fast breathing",
}

func maternalRef(antenatal bool) string {
	if antenatal {
		return "WHO ANC / NATIONAL_ANC"
	}
	return "WHO PNC / NATIONAL_PNC"
}

// MaternalDangerSuggestions 有任何孕产期危险征象即建议紧急转诊
func MaternalDangerSuggestions(antenatal bool, mentioned []string) []models.Suggestion {
	if len(mentioned) == 0 {
		return nil
	}
	return []models.Suggestion{{
		Type:         models.SuggestionReferral,
		Title:        "Urgent referral – maternal danger sign",
		Description:  "Refer to nearest health facility immediately.",
		Reason:       "Danger sign: " + strings.Join(mentioned, ", "),
		BasedOn:      append([]string(nil), mentioned...),
		GuidelineRef: maternalRef(antenatal),
		Confidence:   models.ConfidenceHigh,
		IsUrgent:     true,
	}}
}

// MaternalCounsel 无危险征象时的常规咨询与下次随访建议
func MaternalCounsel(antenatal bool) models.Suggestion {
	title := "Continue PNC"
	if antenatal {
		title = "Continue ANC"
	}
	return models.Suggestion{
		Type:         models.SuggestionAssessment,
		Title:        title,
		Description:  "Counsel on danger signs, nutrition, rest. Schedule next contact per national schedule.",
		Reason:       "No danger signs – routine care",
		BasedOn:      []string{"No maternal danger signs"},
		GuidelineRef: maternalRef(antenatal),
		Confidence:   models.ConfidenceHigh,
	}
}

// MatchMaternalDangerSigns 从自由文本中匹配对应清单中的危险征象（忽略大小写）
func MatchMaternalDangerSigns(antenatal bool, text string) []string {
	list := PNCDangerSigns
	if antenatal {
		list = ANCDangerSigns
	}
	lower := strings.ToLower(text)
	var out []string
	for _, sign := range list {
		if strings.Contains(lower, strings.ToLower(sign)) {
			out = append(out, sign)
		}
	}
	return out
}

package guidelines

import (
	"fmt"
	"strings"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
)

// DangerSign 危险征象（IMCI 一般危险征象或体征越界）
type DangerSign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Action string `json:"action"`
}

const referUrgently = "Refer URGENTLY to hospital"

// 一般危险征象（适用于所有五岁以下患儿）
var (
	UnableToDrink    = DangerSign{ID: "unable_to_drink", Name: "Unable to drink or breastfeed", Action: referUrgently}
	VomitsEverything = DangerSign{ID: "vomits_everything", Name: "Vomits everything", Action: referUrgently}
	Convulsions      = DangerSign{ID: "convulsions", Name: "Convulsions (now or during this illness)", Action: referUrgently}
	Lethargic        = DangerSign{ID: "lethargic", Name: "Lethargic or unconscious", Action: referUrgently}
)

// General 一般危险征象列表
var General = []DangerSign{UnableToDrink, VomitsEverything, Convulsions, Lethargic}

type keywordSign struct {
	keyword string
	sign    DangerSign
}

// 关键词按顺序匹配，每个症状只取第一个命中
var dangerKeywords = []keywordSign{
	{"unable to drink", UnableToDrink},
	{"not drinking", UnableToDrink},
	{"refuses feeds", UnableToDrink},
	{"vomits everything", VomitsEverything},
	{"convulsion", Convulsions},
	{"seizure", Convulsions},
	{"lethargic", Lethargic},
	{"unconscious", Lethargic},
	{"difficult to wake", Lethargic},
}

// 体征阈值
const (
	HighFeverThreshold   = 39.5 // ≥
	HypothermiaThreshold = 35.5 // ≤
	SevereMUACThreshold  = 115  // <，单位 mm
)

// FastBreathingThreshold 按月龄返回快速呼吸阈值（次/分）
func FastBreathingThreshold(ageMonths int) int {
	switch {
	case ageMonths < 2:
		return 60
	case ageMonths < 12:
		return 50
	default:
		return 40
	}
}

// CheckSymptoms 按关键词检查存在的症状，结果按 ID 去重
func CheckSymptoms(symptoms []models.Symptom) []DangerSign {
	var dangers []DangerSign
	seen := make(map[string]bool)

	for _, s := range symptoms {
		if !s.Present {
			continue
		}
		name := strings.ToLower(s.Name)
		for _, kw := range dangerKeywords {
			if !strings.Contains(name, kw.keyword) {
				continue
			}
			if !seen[kw.sign.ID] {
				seen[kw.sign.ID] = true
				dangers = append(dangers, kw.sign)
			}
			break
		}
	}
	return dangers
}

// CheckVitals 检查体征阈值，各项独立评估
func CheckVitals(vitals models.Vitals, ageMonths int) []DangerSign {
	var dangers []DangerSign

	if vitals.Temperature != nil {
		temp := *vitals.Temperature
		if temp >= HighFeverThreshold {
			dangers = append(dangers, DangerSign{
				ID:     "high_fever",
				Name:   fmt.Sprintf("Very high fever (%.1f°C)", temp),
				Action: "Give paracetamol, refer urgently",
			})
		}
		if temp <= HypothermiaThreshold {
			dangers = append(dangers, DangerSign{
				ID:     "hypothermia",
				Name:   fmt.Sprintf("Low temperature (%.1f°C)", temp),
				Action: "Warm the child, refer urgently",
			})
		}
	}

	if vitals.RespiratoryRate != nil {
		rr := *vitals.RespiratoryRate
		if rr >= FastBreathingThreshold(ageMonths) {
			dangers = append(dangers, DangerSign{
				ID:     "fast_breathing",
				Name:   fmt.Sprintf("Fast breathing (%d/min)", rr),
				Action: "Check for chest indrawing, may need referral",
			})
		}
	}

	if vitals.MUAC != nil {
		muac := *vitals.MUAC
		if muac < SevereMUACThreshold {
			dangers = append(dangers, DangerSign{
				ID:     "severe_malnutrition",
				Name:   fmt.Sprintf("Severe malnutrition (MUAC %dmm)", muac),
				Action: "Refer for nutrition program",
			})
		}
	}

	return dangers
}

package guidelines

import "github.com/Githafconsulting/Healthcare-Assistant/internal/models"

const (
	RefIMCI    = "WHO IMCI"
	RefMalaria = "WHO malaria / NATIONAL_MALARIA"
)

// MalariaSuggestions 发热分支：根据 RDT 结果给出治疗/评估建议（最多两条）
// 危险征象已确认时由调用方跳过此分支
func MalariaSuggestions(hasFever bool, rdt models.RDTResult) []models.Suggestion {
	if !hasFever {
		return nil
	}

	switch rdt {
	case models.RDTPositive:
		return []models.Suggestion{
			{
				Type:         models.SuggestionTreatment,
				Title:        "Consider: ACT for malaria",
				Description:  "Give ACT per weight/age. Guideline: WHO malaria.",
				Reason:       "RDT positive – treat for malaria",
				BasedOn:      []string{"Fever", "RDT positive"},
				GuidelineRef: RefMalaria,
				Confidence:   models.ConfidenceHigh,
			},
			{
				Type:         models.SuggestionTreatment,
				Title:        "Consider: Paracetamol for fever",
				Description:  "If fever ≥38°C, give paracetamol per weight.",
				Reason:       "Fever present",
				BasedOn:      []string{"Fever"},
				GuidelineRef: RefIMCI,
				Confidence:   models.ConfidenceHigh,
			},
		}
	case models.RDTNegative:
		return []models.Suggestion{
			{
				Type:         models.SuggestionTreatment,
				Title:        "Consider: Paracetamol for fever",
				Description:  "Malaria unlikely. Other causes of fever – give paracetamol if fever.",
				Reason:       "RDT negative – other fever care",
				BasedOn:      []string{"Fever", "RDT negative"},
				GuidelineRef: RefMalaria,
				Confidence:   models.ConfidenceHigh,
			},
		}
	default:
		return []models.Suggestion{
			{
				Type:         models.SuggestionAssessment,
				Title:        "Consider: Do RDT if available",
				Description:  "If RDT not available, follow national policy (treat as malaria or refer).",
				Reason:       "Fever without RDT result",
				BasedOn:      []string{"Fever"},
				GuidelineRef: RefMalaria,
				Confidence:   models.ConfidenceMedium,
			},
		}
	}
}

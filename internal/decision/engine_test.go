package decision

import (
	"fmt"
	"testing"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/guidelines"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var evalDate = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	n := 0
	return NewEngine(zap.NewNop(),
		WithClock(func() time.Time { return evalDate }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("s-%d", n) }),
	)
}

// patientAged 返回在 evalDate 时为 months 月龄的患者
func patientAged(months int) models.Patient {
	return models.Patient{ID: "p-1", DateOfBirth: evalDate.AddDate(0, -months, 0)}
}

func titles(s []models.Suggestion) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		out = append(out, x.Title)
	}
	return out
}

func TestEvaluate_DangerSignReferralSuppressesMalaria(t *testing.T) {
	e := newTestEngine()
	visit := models.Visit{
		ID:          "v-1",
		Symptoms:    []models.Symptom{{Name: "fever", Present: true}},
		DangerSigns: []string{"Convulsions (now or during this illness)", "Lethargic or unconscious"},
		RDTResult:   models.RDTPositive,
	}

	got := e.Evaluate(patientAged(24), visit)

	var referrals int
	for _, s := range got {
		if s.Type == models.SuggestionReferral {
			referrals++
			assert.True(t, s.IsUrgent)
			assert.Equal(t, "Danger sign confirmed: Convulsions (now or during this illness), Lethargic or unconscious", s.Reason)
			assert.Equal(t, visit.DangerSigns, s.BasedOn)
		}
		assert.NotEqual(t, "Consider: ACT for malaria", s.Title)
		assert.NotEqual(t, "Consider: Paracetamol for fever", s.Title)
		assert.NotEqual(t, "Consider: Do RDT if available", s.Title)
	}
	assert.Equal(t, 1, referrals)
	assert.Equal(t, "Urgent Referral Needed", got[0].Title)
	assert.Contains(t, titles(got), "Consider: Paracetamol", "generic treatments remain")
}

func TestEvaluate_FeverBranches(t *testing.T) {
	e := newTestEngine()
	base := models.Visit{Symptoms: []models.Symptom{{Name: "Fever", Present: true}}}

	base.RDTResult = models.RDTNotDone
	assert.Equal(t, []string{"Consider: Paracetamol", "Consider: Do RDT if available"}, titles(e.Evaluate(patientAged(30), base)))

	base.RDTResult = models.RDTPositive
	assert.Equal(t,
		[]string{"Consider: ACT for malaria", "Consider: Paracetamol for fever", "Consider: Paracetamol"},
		titles(e.Evaluate(patientAged(30), base)))

	base.RDTResult = models.RDTNegative
	assert.Equal(t, []string{"Consider: Paracetamol for fever", "Consider: Paracetamol"}, titles(e.Evaluate(patientAged(30), base)))
}

func TestEvaluate_VitalsDangerAndOrdering(t *testing.T) {
	e := newTestEngine()
	visit := models.Visit{
		Symptoms: []models.Symptom{
			{Name: "cough", Present: true},
			{Name: "diarrhea", Present: true},
		},
		Vitals: &models.Vitals{Temperature: floatPtr(39.5), MUAC: intPtr(114)},
	}

	got := e.Evaluate(patientAged(18), visit)
	require.Len(t, got, 4)
	assert.Equal(t, "Warning: Very high fever (39.5°C)", got[0].Title)
	assert.Equal(t, models.SuggestionDangerSign, got[0].Type)
	assert.Equal(t, "Give paracetamol, refer urgently", got[0].Description)
	assert.Equal(t, "Warning: Severe malnutrition (MUAC 114mm)", got[1].Title)
	assert.Equal(t, "Consider: ORS (Oral Rehydration Salts)", got[2].Title)
	assert.Equal(t, "Consider: Zinc", got[3].Title)
	assert.Equal(t, []string{"diarrhea"}, got[2].BasedOn)
	assert.Equal(t, "Indicated for Diarrhea (with ORS)", got[3].Reason)

	for _, s := range got {
		assert.NoError(t, s.Validate(), s.Title)
		assert.NotEmpty(t, s.ID)
	}
}

func TestEvaluate_StableOrdering(t *testing.T) {
	e := newTestEngine()
	visit := models.Visit{
		Symptoms: []models.Symptom{
			{Name: "fever", Present: true},
			{Name: "diarrhea", Present: true},
		},
		Vitals: &models.Vitals{RespiratoryRate: intPtr(55), MUAC: intPtr(100)},
	}

	first := titles(e.Evaluate(patientAged(6), visit))
	second := titles(e.Evaluate(patientAged(6), visit))
	assert.Equal(t, first, second)
}

func TestSortByPriority_Stable(t *testing.T) {
	in := []models.Suggestion{
		{Title: "a", Type: models.SuggestionAssessment},
		{Title: "t1", Type: models.SuggestionTreatment},
		{Title: "u", Type: models.SuggestionTreatment, IsUrgent: true},
		{Title: "t2", Type: models.SuggestionTreatment},
		{Title: "r", Type: models.SuggestionReferral},
		{Title: "d", Type: models.SuggestionDangerSign},
	}
	SortByPriority(in)
	assert.Equal(t, []string{"u", "d", "r", "t1", "t2", "a"}, titles(in))
}

func TestDoseForAge(t *testing.T) {
	tests := []struct {
		tx        guidelines.Treatment
		ageMonths int
		want      string
	}{
		{guidelines.ORS, 3, "Under 2 years: 50-100ml after each loose stool"},
		{guidelines.ORS, 12, "Under 2 years: 50-100ml after each loose stool"},
		{guidelines.ORS, 36, "2-5 years: 100-200ml after each loose stool"},
		{guidelines.Zinc, 3, "Under 6 months: 10mg once daily for 10-14 days"},
		// 6-23 月龄无文本匹配，回退到第一档
		{guidelines.Zinc, 12, "Under 6 months: 10mg once daily for 10-14 days"},
		{guidelines.Zinc, 36, "6 months to 5 years: 20mg once daily for 10-14 days"},
		{guidelines.Paracetamol, 3, "4-6 kg: 60mg (quarter tablet)"},
		{guidelines.Paracetamol, 12, "6-10 kg: 125mg (half tablet)"},
		{guidelines.Paracetamol, 36, "6-10 kg: 125mg (half tablet)"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.tx.Name, tt.ageMonths), func(t *testing.T) {
			assert.Equal(t, tt.want, DoseForAge(tt.tx, tt.ageMonths))
		})
	}

	assert.Empty(t, DoseForAge(guidelines.Treatment{Name: "none"}, 12))
}

func TestQuickDangerCheck_Idempotent(t *testing.T) {
	e := newTestEngine()
	symptoms := []models.Symptom{
		{Name: "convulsion", Present: true},
		{Name: "seizure", Present: true},
		{Name: "not drinking", Present: true},
	}
	vitals := &models.Vitals{RespiratoryRate: intPtr(60)}

	first := e.QuickDangerCheck(symptoms, vitals, 1)
	second := e.QuickDangerCheck(symptoms, vitals, 1)

	assert.ElementsMatch(t, first, second)
	assert.Len(t, first, 3)
	assert.ElementsMatch(t, []string{
		"Convulsions (now or during this illness)",
		"Unable to drink or breastfeed",
		"Fast breathing (60/min)",
	}, first)
	assert.Empty(t, e.QuickDangerCheck(nil, nil, 12))
}

func TestEvaluateMaternal(t *testing.T) {
	e := newTestEngine()

	got := e.EvaluateMaternal(true, []string{"Severe headache"})
	require.Len(t, got, 1)
	assert.Equal(t, "Urgent referral – maternal danger sign", got[0].Title)
	assert.NotEmpty(t, got[0].ID)

	got = e.EvaluateMaternal(false, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "Continue PNC", got[0].Title)
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPatient_AgeInMonths(t *testing.T) {
	p := Patient{DateOfBirth: time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC)}

	assert.Equal(t, 0, p.AgeInMonths(time.Date(2024, 11, 25, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2, p.AgeInMonths(time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 14, p.AgeInMonths(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, p.AgeInMonths(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), "future DOB floors at 0")
	assert.True(t, p.IsUnderFive(time.Date(2029, 10, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.IsUnderFive(time.Date(2029, 11, 1, 0, 0, 0, 0, time.UTC)))
}

func TestVisit_AddDangerSignAppendOnly(t *testing.T) {
	v := Visit{}
	assert.True(t, v.AddDangerSign("Convulsions"))
	assert.False(t, v.AddDangerSign("Convulsions"))
	assert.True(t, v.AddDangerSign("Lethargic"))
	assert.Equal(t, []string{"Convulsions", "Lethargic"}, v.DangerSigns)
	assert.True(t, v.HasDangerSigns())
}

func TestVisit_PresentSymptomNames(t *testing.T) {
	v := Visit{Symptoms: []Symptom{
		{Name: "fever", Present: true},
		{Name: "rash", Present: false},
		{Name: "cough", Present: true},
	}}
	assert.Equal(t, []string{"fever", "cough"}, v.PresentSymptomNames())
	assert.True(t, v.HasSymptom("Fever"))
	assert.False(t, v.HasSymptom("diarrhea"))
}

func TestVisit_CloneIsIndependent(t *testing.T) {
	temp := 38.0
	v := Visit{Symptoms: []Symptom{{Name: "fever", Present: true}}, Vitals: &Vitals{Temperature: &temp}}
	c := v.Clone()
	c.Symptoms[0].Present = false
	c.Vitals.Weight = &temp
	assert.True(t, v.Symptoms[0].Present)
	assert.Nil(t, v.Vitals.Weight)
}

func TestSuggestion_Validate(t *testing.T) {
	ok := Suggestion{Reason: "r", BasedOn: []string{"Fever"}, GuidelineRef: "WHO IMCI"}
	assert.NoError(t, ok.Validate())

	missing := ok
	missing.BasedOn = nil
	assert.ErrorIs(t, missing.Validate(), ErrMissingExplanation)

	missing = ok
	missing.GuidelineRef = " "
	assert.ErrorIs(t, missing.Validate(), ErrMissingExplanation)
}

func TestFollowUp_DueForReminder(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f := FollowUp{DueDate: now, SMSConsent: true}
	assert.True(t, f.DueForReminder(now), "due exactly now")

	f.DueDate = now.Add(time.Minute)
	assert.False(t, f.DueForReminder(now))

	f.DueDate = now.Add(-time.Hour)
	f.SMSConsent = false
	assert.False(t, f.DueForReminder(now))

	f.SMSConsent = true
	sent := now
	f.ReminderSentAt = &sent
	assert.False(t, f.DueForReminder(now))
}

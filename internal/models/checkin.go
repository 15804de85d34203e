package models

import "time"

// Mood answer to the greeting step.
type Mood string

const (
	MoodGood Mood = "good"
	MoodOkay Mood = "okay"
	MoodBad  Mood = "bad"
)

// Valid reports whether m is a known mood.
func (m Mood) Valid() bool {
	return m == MoodGood || m == MoodOkay || m == MoodBad
}

// MedicationStatus answer to the medication step.
type MedicationStatus string

const (
	MedicationFull    MedicationStatus = "full"
	MedicationPartial MedicationStatus = "partial"
	MedicationNone    MedicationStatus = "none"
	MedicationForgot  MedicationStatus = "forgot"
)

// Valid reports whether m is a known medication answer.
func (m MedicationStatus) Valid() bool {
	switch m {
	case MedicationFull, MedicationPartial, MedicationNone, MedicationForgot:
		return true
	}
	return false
}

// Taken reports whether the answer counts toward adherence.
// full and partial are taken, none and forgot are missed.
func (m MedicationStatus) Taken() bool {
	return m == MedicationFull || m == MedicationPartial
}

// CheckInRecord one row per patient per calendar day (check_ins table).
// Fields fill in as the conversation progresses.
type CheckInRecord struct {
	PatientID   string            `json:"patient_id"`
	CheckInDate time.Time         `json:"check_in_date"`
	Mood        *Mood             `json:"mood,omitempty"`
	Medication  *MedicationStatus `json:"medication,omitempty"`
	Symptoms    *string           `json:"symptoms,omitempty"`
	Glucose     *float64          `json:"glucose,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CheckInPatch partial facts merged into the day's record. Nil fields keep
// the stored value.
type CheckInPatch struct {
	Mood       *Mood
	Medication *MedicationStatus
	Symptoms   *string
	Glucose    *float64
}

// IsEmpty reports whether the patch carries no facts.
func (p CheckInPatch) IsEmpty() bool {
	return p.Mood == nil && p.Medication == nil && p.Symptoms == nil && p.Glucose == nil
}

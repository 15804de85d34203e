package models

import (
	"fmt"
	"time"
)

// EnrollmentStatus lifecycle stage of the patient's enrollment.
type EnrollmentStatus string

const (
	EnrollmentOnboarding EnrollmentStatus = "onboarding"
	EnrollmentTrial      EnrollmentStatus = "trial"
	EnrollmentActive     EnrollmentStatus = "active"
	EnrollmentExpired    EnrollmentStatus = "expired"
)

// CheckInState position of the patient inside the daily check-in conversation.
type CheckInState string

const (
	StateNone          CheckInState = "none"
	StateGreeting      CheckInState = "greeting"
	StateMedication    CheckInState = "medication"
	StateSymptoms      CheckInState = "symptoms"
	StateSymptomPicker CheckInState = "symptom_picker"
)

// Valid reports whether s is one of the five known states.
func (s CheckInState) Valid() bool {
	switch s {
	case StateNone, StateGreeting, StateMedication, StateSymptoms, StateSymptomPicker:
		return true
	}
	return false
}

// ParseCheckInState maps the stored value to a state. Empty means none.
func ParseCheckInState(v string) (CheckInState, error) {
	if v == "" {
		return StateNone, nil
	}
	s := CheckInState(v)
	if !s.Valid() {
		return StateNone, fmt.Errorf("unknown check-in state %q", v)
	}
	return s, nil
}

// Patient (patients table)
type Patient struct {
	PatientID             string           `json:"patient_id"`
	ChannelUserID         string           `json:"channel_user_id"`
	DisplayName           string           `json:"display_name"`
	EnrollmentStatus      EnrollmentStatus `json:"enrollment_status"`
	CurrentCheckInState   CheckInState     `json:"current_checkin_state"`
	LastResponseDate      *time.Time       `json:"last_response_date,omitempty"`
	ConsecutiveMissedDays int              `json:"consecutive_missed_days"`
	Age                   int              `json:"age"`
	Condition             string           `json:"condition"`
	EnrolledAt            time.Time        `json:"enrolled_at"`
}

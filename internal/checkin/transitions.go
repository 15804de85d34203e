package checkin

import (
	"errors"
	"fmt"
	"strings"

	"hanna-engine/internal/models"
)

var (
	ErrStepMismatch      = errors.New("check-in step mismatch")
	ErrUnknownTransition = errors.New("unknown check-in transition")
	ErrInvalidValue      = errors.New("invalid check-in value")
)

// Action kinds carried by button postbacks.
const (
	ActionMood        = "mood"
	ActionMedication  = "medication"
	ActionSymptoms    = "symptoms"
	ActionSymptomPick = "symptom_pick"
)

const (
	symptomsNone = "none"
	symptomsHas  = "has"
)

// PickerSymptoms buttons offered by the symptom picker.
var PickerSymptoms = []string{"fever", "dizziness", "headache", "chest pain"}

// outcome is what one accepted input does.
type outcome struct {
	next     models.CheckInState
	patch    models.CheckInPatch
	message  *models.Message
	triggers []models.Trigger
	symptom  string
}

type transitionKey struct {
	state  models.CheckInState
	action string
}

type step func(value string) (outcome, error)

// transitions is the complete table; any other (state, action) pair is rejected.
var transitions = map[transitionKey]step{
	{models.StateGreeting, ActionMood}:             onMood,
	{models.StateMedication, ActionMedication}:     onMedication,
	{models.StateSymptoms, ActionSymptoms}:         onSymptoms,
	{models.StateSymptomPicker, ActionSymptomPick}: onSymptomPick,
}

// Decide validates (state, action, value) against the table without side effects.
func Decide(state models.CheckInState, action, value string) (outcome, error) {
	fn, ok := transitions[transitionKey{state, action}]
	if !ok {
		return outcome{}, fmt.Errorf("%w: (%s, %s)", ErrUnknownTransition, state, action)
	}
	return fn(strings.TrimSpace(value))
}

func onMood(value string) (outcome, error) {
	mood := models.Mood(strings.ToLower(value))
	if !mood.Valid() {
		return outcome{}, fmt.Errorf("%w: mood %q", ErrInvalidValue, value)
	}
	out := outcome{
		next:    models.StateMedication,
		patch:   models.CheckInPatch{Mood: &mood},
		message: medicationCard(moodAck[mood]),
	}
	if mood == models.MoodBad {
		out.triggers = append(out.triggers, models.MoodBadTrigger{})
	}
	return out, nil
}

func onMedication(value string) (outcome, error) {
	med := models.MedicationStatus(strings.ToLower(value))
	if !med.Valid() {
		return outcome{}, fmt.Errorf("%w: medication %q", ErrInvalidValue, value)
	}
	out := outcome{
		next:    models.StateSymptoms,
		patch:   models.CheckInPatch{Medication: &med},
		message: symptomsCard(medicationAck[med]),
	}
	if med == models.MedicationNone {
		out.triggers = append(out.triggers, models.MissedMedication{})
	}
	return out, nil
}

func onSymptoms(value string) (outcome, error) {
	switch strings.ToLower(value) {
	case symptomsNone:
		return outcome{
			next:    models.StateNone,
			message: models.TextMessage("Wonderful, no symptoms today. Your check-in is complete. Thank you!"),
		}, nil
	case symptomsHas:
		return outcome{
			next:    models.StateSymptomPicker,
			message: pickerCard(),
		}, nil
	}
	return outcome{}, fmt.Errorf("%w: symptoms %q", ErrInvalidValue, value)
}

func onSymptomPick(value string) (outcome, error) {
	name := strings.ToLower(value)
	if name == "" || len(name) > 200 {
		return outcome{}, fmt.Errorf("%w: symptom %q", ErrInvalidValue, value)
	}
	text := fmt.Sprintf("Thank you for telling us about your %s. Your check-in is complete and our care team can see it.", name)
	if _, sos := models.EmergencyKeyword(models.Symptom{Name: name}); sos {
		text = "This may be an emergency. Please call 1669 now if you need urgent help. Our nurse has been alerted."
	}
	return outcome{
		next:     models.StateNone,
		patch:    models.CheckInPatch{Symptoms: &name},
		message:  models.TextMessage(text),
		triggers: []models.Trigger{models.Symptom{Name: name}},
		symptom:  name,
	}, nil
}

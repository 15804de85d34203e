package models

import "strings"

// Trigger instantaneous event that prompted a risk calculation.
// Implementations: Keyword, MoodBadTrigger, MissedMedication, Symptom.
type Trigger interface {
	String() string
	isTrigger()
}

// Keyword free text typed by the patient.
type Keyword struct{ Text string }

// MoodBadTrigger patient answered "bad" to the greeting.
type MoodBadTrigger struct{}

// MissedMedication patient reported no medication today.
type MissedMedication struct{}

// Symptom symptom picked from the symptom picker.
type Symptom struct{ Name string }

func (Keyword) isTrigger()          {}
func (MoodBadTrigger) isTrigger()   {}
func (MissedMedication) isTrigger() {}
func (Symptom) isTrigger()          {}

func (k Keyword) String() string        { return "keyword:" + k.Text }
func (MoodBadTrigger) String() string   { return "mood_bad" }
func (MissedMedication) String() string { return "missed_medication" }
func (s Symptom) String() string        { return "symptom:" + s.Name }

// EmergencyKeywords phrases that short-circuit the risk model to critical.
var EmergencyKeywords = []string{"chest pain", "breathing", "faint"}

// EmergencyKeyword returns the emergency phrase carried by t, if any.
func EmergencyKeyword(t Trigger) (string, bool) {
	var text string
	switch v := t.(type) {
	case nil:
		return "", false
	case Keyword:
		text = v.Text
	case Symptom:
		text = v.Name
	case MoodBadTrigger, MissedMedication:
		return "", false
	default:
		return "", false
	}
	lower := strings.ToLower(text)
	for _, kw := range EmergencyKeywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// ParseTrigger inverse of Trigger.String. Unprefixed text is a Keyword.
func ParseTrigger(s string) Trigger {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil
	case s == "mood_bad":
		return MoodBadTrigger{}
	case s == "missed_medication":
		return MissedMedication{}
	case strings.HasPrefix(s, "symptom:"):
		return Symptom{Name: strings.TrimPrefix(s, "symptom:")}
	case strings.HasPrefix(s, "keyword:"):
		return Keyword{Text: strings.TrimPrefix(s, "keyword:")}
	default:
		return Keyword{Text: s}
	}
}

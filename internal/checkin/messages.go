package checkin

import (
	"fmt"
	"net/url"
	"time"

	"hanna-engine/internal/models"
)

// greetings per time of day; %s is the patient's display name.
var greetings = map[string][]string{
	"morning": {
		"Good morning, %s! How are you feeling today?",
		"Morning, %s. Did you sleep well? How do you feel?",
		"Hello %s, a new day has started. How are you this morning?",
	},
	"afternoon": {
		"Good afternoon, %s! How is your day going?",
		"Hi %s, checking in this afternoon. How are you feeling?",
		"Hello %s! How are you doing so far today?",
	},
	"evening": {
		"Good evening, %s. How was your day?",
		"Hi %s, before the day ends, how are you feeling?",
		"Evening, %s! Let's do a quick check-in. How do you feel?",
	},
}

// partOfDay morning 05:00-11:59, afternoon 12:00-16:59, evening otherwise.
func partOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

var moodAck = map[models.Mood]string{
	models.MoodGood: "Great to hear!",
	models.MoodOkay: "Thanks for letting me know.",
	models.MoodBad:  "I'm sorry you're not feeling well. Our care team will keep an eye on you.",
}

var medicationAck = map[models.MedicationStatus]string{
	models.MedicationFull:    "Well done taking your medicine.",
	models.MedicationPartial: "Thanks. Try to take the rest when you can.",
	models.MedicationNone:    "Thanks for being honest. Please talk to us if something is stopping you.",
	models.MedicationForgot:  "No problem, please take it if it is still safe to do so.",
}

// Postback encodes button data as action=..&state=..&value=..
func Postback(state models.CheckInState, action, value string) string {
	v := url.Values{}
	v.Set("action", action)
	v.Set("state", string(state))
	v.Set("value", value)
	return v.Encode()
}

// ParsePostback is the inverse of Postback.
func ParsePostback(data string) (state models.CheckInState, action, value string, err error) {
	v, err := url.ParseQuery(data)
	if err != nil {
		return models.StateNone, "", "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	action = v.Get("action")
	if action == "" {
		return models.StateNone, "", "", fmt.Errorf("%w: postback without action", ErrInvalidValue)
	}
	state, err = models.ParseCheckInState(v.Get("state"))
	if err != nil {
		return models.StateNone, "", "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return state, action, v.Get("value"), nil
}

func moodCard(greeting string) *models.Message {
	return models.ButtonMessage(greeting,
		models.Button{Label: "Good", Data: Postback(models.StateGreeting, ActionMood, string(models.MoodGood))},
		models.Button{Label: "Okay", Data: Postback(models.StateGreeting, ActionMood, string(models.MoodOkay))},
		models.Button{Label: "Not good", Data: Postback(models.StateGreeting, ActionMood, string(models.MoodBad))},
	)
}

func medicationCard(prefix string) *models.Message {
	s := models.StateMedication
	return models.ButtonMessage(prefix+" Did you take your medication today?",
		models.Button{Label: "Took all", Data: Postback(s, ActionMedication, string(models.MedicationFull))},
		models.Button{Label: "Took some", Data: Postback(s, ActionMedication, string(models.MedicationPartial))},
		models.Button{Label: "Did not take", Data: Postback(s, ActionMedication, string(models.MedicationNone))},
		models.Button{Label: "Forgot", Data: Postback(s, ActionMedication, string(models.MedicationForgot))},
	)
}

func symptomsCard(prefix string) *models.Message {
	s := models.StateSymptoms
	return models.ButtonMessage(prefix+" Do you have any symptoms today?",
		models.Button{Label: "No symptoms", Data: Postback(s, ActionSymptoms, symptomsNone)},
		models.Button{Label: "Yes, I do", Data: Postback(s, ActionSymptoms, symptomsHas)},
	)
}

func pickerCard() *models.Message {
	buttons := make([]models.Button, 0, len(PickerSymptoms))
	for _, name := range PickerSymptoms {
		buttons = append(buttons, models.Button{
			Label: name,
			Data:  Postback(models.StateSymptomPicker, ActionSymptomPick, name),
		})
	}
	return models.ButtonMessage("Which symptom are you having? You can also type it.", buttons...)
}

// TransientFailureMessage the single acknowledgement shown when storage is unavailable.
var TransientFailureMessage = models.TextMessage("Sorry, we could not save that right now. Please try again in a few minutes.")

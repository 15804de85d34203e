package evaluator

import (
	"hanna-engine/internal/models"
)

// summarize builds the rolling summary from rows ordered most recent first.
func summarize(rows []*models.CheckInRecord) models.WeeklySummary {
	var s models.WeeklySummary
	var glucoseSum float64
	var glucoseN int

	for _, r := range rows {
		s.TotalCheckIns++
		if r.Medication != nil {
			if r.Medication.Taken() {
				s.MedicationTaken++
			} else {
				s.MedicationMiss++
			}
		}
		if r.Glucose != nil {
			glucoseSum += *r.Glucose
			glucoseN++
			if s.LatestGlucose == nil {
				v := *r.Glucose
				s.LatestGlucose = &v
			}
		}
		if r.Mood != nil {
			switch *r.Mood {
			case models.MoodGood:
				s.GoodMoodDays++
			case models.MoodBad:
				s.BadMoodDays++
			}
		}
	}
	if glucoseN > 0 {
		avg := glucoseSum / float64(glucoseN)
		s.AvgGlucose = &avg
	}
	return s
}

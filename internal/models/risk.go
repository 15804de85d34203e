package models

import "time"

// RiskLevel coarse bucket derived from the score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

const (
	MinRiskScore = 0
	MaxRiskScore = 10
)

// LevelForScore score>=8 critical, 5..7 high, otherwise low.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 8:
		return RiskCritical
	case score >= 5:
		return RiskHigh
	default:
		return RiskLow
	}
}

// ClampScore bounds score to [0,10].
func ClampScore(score int) int {
	if score < MinRiskScore {
		return MinRiskScore
	}
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}

// RiskResult output of one risk calculation.
type RiskResult struct {
	Score           int       `json:"score"`
	Level           RiskLevel `json:"level"`
	Reasons         []string  `json:"reasons"`
	PositiveSignals []string  `json:"positive_signals"`
	Trigger         string    `json:"trigger,omitempty"`
}

// RiskSnapshot latest risk per patient (risk_snapshots table, upserted).
type RiskSnapshot struct {
	PatientID       string    `json:"patient_id"`
	Score           int       `json:"score"`
	Level           RiskLevel `json:"level"`
	Reasons         []string  `json:"reasons"`
	PositiveSignals []string  `json:"positive_signals"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WeeklySummary rolling 7-day aggregate used by the risk model.
type WeeklySummary struct {
	TotalCheckIns   int
	MedicationTaken int
	MedicationMiss  int
	AvgGlucose      *float64
	LatestGlucose   *float64
	GoodMoodDays    int
	BadMoodDays     int
}

// AdherencePercent taken/(taken+missed)*100; ok is false without medication answers.
func (s WeeklySummary) AdherencePercent() (pct float64, ok bool) {
	total := s.MedicationTaken + s.MedicationMiss
	if total == 0 {
		return 0, false
	}
	return float64(s.MedicationTaken) / float64(total) * 100, true
}

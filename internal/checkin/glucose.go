package checkin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"hanna-engine/internal/models"
)

// Accepted meter range in mg/dL.
const (
	MinGlucose = 20
	MaxGlucose = 800
)

var ErrGlucoseOutOfRange = errors.New("glucose reading out of range")

var glucoseText = regexp.MustCompile(`(?i)^\s*(?:glucose|sugar|blood sugar|bg|dtx)\s*[:=]?\s*(\d{2,3}(?:\.\d+)?)\s*(?:mg/?dl)?\s*$`)

// ParseGlucose reads free text such as "sugar 250" or "DTX: 132 mg/dL".
func ParseGlucose(text string) (float64, bool) {
	m := glucoseText.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// GlucoseAck confirms a stored reading to the patient.
func GlucoseAck(value float64) *models.Message {
	return models.TextMessage(fmt.Sprintf("Thank you! I've recorded your blood sugar of %.0f mg/dL for today.", value))
}

// RecordGlucose merges a reading into today's check-in row. It does not
// re-score; callers run Analyze when they want the new risk.
func (f *Flow) RecordGlucose(ctx context.Context, patientID string, value float64) error {
	if value < MinGlucose || value > MaxGlucose {
		return fmt.Errorf("%w: %.1f", ErrGlucoseOutOfRange, value)
	}
	if _, err := f.patients.GetPatient(ctx, patientID); err != nil {
		return fmt.Errorf("record glucose: %w", err)
	}

	now := f.now()
	if err := f.checkIns.MergeCheckIn(ctx, patientID, models.CivilDate(now, f.loc), models.CheckInPatch{Glucose: &value}); err != nil {
		f.logger.Error("failed to store glucose", zap.String("patient_id", patientID), zap.Error(err))
		return fmt.Errorf("record glucose: %w", err)
	}

	entry := models.NewAuditEntry(models.ActorCheckInFlow, models.ActionGlucoseRecorded, patientID, map[string]float64{"glucose": value})
	entry.CreatedAt = now
	if err := f.audit.AppendAudit(ctx, entry); err != nil {
		f.logger.Warn("failed to audit glucose reading", zap.String("patient_id", patientID), zap.Error(err))
	}
	return nil
}

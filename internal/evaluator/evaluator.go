// Package evaluator scores patient risk from the last seven days of
// check-ins plus an optional trigger event.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/dispatcher"
	"hanna-engine/internal/engagement"
	"hanna-engine/internal/models"
	"hanna-engine/internal/repository"
)

const (
	summaryDays        = 7
	positiveStreakDays = 14

	glucoseCriticalHigh = 400.0
	glucoseCriticalLow  = 70.0
	glucoseElevated     = 250.0
	glucoseTarget       = 140.0
	adherenceFloorPct   = 50.0
	ageModifierAbove    = 70
)

// TaskDispatcher receives every non-low result.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, patientID string, risk *models.RiskResult) (*dispatcher.Result, error)
}

type Evaluator struct {
	patients   repository.PatientsRepository
	checkIns   repository.CheckInsRepository
	snapshots  repository.RiskSnapshotsRepository
	audit      repository.AuditRepository
	dispatcher TaskDispatcher
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

func NewEvaluator(
	patients repository.PatientsRepository,
	checkIns repository.CheckInsRepository,
	snapshots repository.RiskSnapshotsRepository,
	audit repository.AuditRepository,
	dispatcher TaskDispatcher,
	loc *time.Location,
	logger *zap.Logger,
) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{
		patients:   patients,
		checkIns:   checkIns,
		snapshots:  snapshots,
		audit:      audit,
		dispatcher: dispatcher,
		loc:        loc,
		now:        time.Now,
		logger:     logger,
	}
}

// Analyze computes, persists and audits the patient's risk, then hands any
// non-low result to the dispatcher. trigger may be nil.
//
// An emergency keyword in the trigger short-circuits to score 10 / critical
// without consulting history. It is dispatched even when the profile cannot
// be loaded or the snapshot cannot be written.
func (e *Evaluator) Analyze(ctx context.Context, patientID string, trigger models.Trigger) (*models.RiskResult, error) {
	log := e.logger.With(zap.String("patient_id", patientID))
	if trigger != nil {
		log = log.With(zap.String("trigger", trigger.String()))
	}

	patient, err := e.patients.GetPatient(ctx, patientID)
	keyword, sos := models.EmergencyKeyword(trigger)
	if err != nil && !sos {
		log.Error("failed to load patient", zap.Error(err))
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if err != nil {
		log.Warn("patient profile unavailable, continuing SOS", zap.Error(err))
	}

	var result *models.RiskResult
	if sos {
		result = &models.RiskResult{
			Score:           models.MaxRiskScore,
			Level:           models.RiskCritical,
			Reasons:         []string{"SOS trigger: " + keyword},
			PositiveSignals: []string{},
		}
	} else {
		result, err = e.score(ctx, patient, trigger)
		if err != nil {
			log.Error("risk scoring aborted", zap.Error(err))
			return nil, fmt.Errorf("analyze: %w", err)
		}
	}
	if trigger != nil {
		result.Trigger = trigger.String()
	}

	if err := e.persist(ctx, patientID, result); err != nil {
		log.Error("failed to persist risk", zap.Error(err))
		if !sos {
			return nil, fmt.Errorf("analyze: %w", err)
		}
	}
	log.Info("risk calculated", zap.Int("score", result.Score), zap.String("level", string(result.Level)))

	if result.Level != models.RiskLow && e.dispatcher != nil {
		if _, err := e.dispatcher.Dispatch(ctx, patientID, result); err != nil {
			log.Error("dispatch failed", zap.Error(err))
			return result, fmt.Errorf("analyze: %w", err)
		}
	}
	return result, nil
}

func (e *Evaluator) score(ctx context.Context, patient *models.Patient, trigger models.Trigger) (*models.RiskResult, error) {
	today := models.CivilDate(e.now(), e.loc)
	rows, err := e.checkIns.ListCheckInsSince(ctx, patient.PatientID, today.AddDate(0, 0, -(summaryDays-1)))
	if err != nil {
		return nil, err
	}
	summary := summarize(rows)

	if summary.TotalCheckIns == 0 && trigger == nil {
		return &models.RiskResult{
			Score:           1,
			Level:           models.RiskLow,
			Reasons:         []string{"no data"},
			PositiveSignals: []string{},
		}, nil
	}

	score := 0
	reasons := []string{}

	if avg := summary.AvgGlucose; avg != nil {
		switch {
		case *avg > glucoseCriticalHigh || *avg < glucoseCriticalLow:
			score += 2
			reasons = append(reasons, fmt.Sprintf("glucose out of safe range (avg %.0f mg/dL)", *avg))
		case *avg > glucoseElevated:
			score++
			reasons = append(reasons, fmt.Sprintf("elevated glucose (avg %.0f mg/dL)", *avg))
		}
	}
	if pct, ok := summary.AdherencePercent(); ok && pct < adherenceFloorPct {
		score += 2
		reasons = append(reasons, fmt.Sprintf("low medication adherence (%.0f%%)", pct))
	}
	if summary.TotalCheckIns == 0 {
		score++
		reasons = append(reasons, "no check-ins in 7 days")
	}
	if patient.Age > ageModifierAbove {
		// ceil(score * 1.2) in integers
		score = (score*6 + 4) / 5
		if score > 0 {
			reasons = append(reasons, fmt.Sprintf("age %d modifier", patient.Age))
		}
	}
	if trigger != nil {
		reasons = append(reasons, "trigger: "+trigger.String())
	}

	score = models.ClampScore(score)
	result := &models.RiskResult{
		Score:           score,
		Level:           models.LevelForScore(score),
		Reasons:         reasons,
		PositiveSignals: e.positiveSignals(ctx, patient.PatientID, today, summary),
	}
	return result, nil
}

// positiveSignals never fails the calculation; lookup errors just drop the signal.
func (e *Evaluator) positiveSignals(ctx context.Context, patientID string, today time.Time, s models.WeeklySummary) []string {
	signals := []string{}

	dates, err := e.checkIns.ListCheckInDates(ctx, patientID, positiveStreakDays)
	if err != nil {
		e.logger.Warn("streak lookup failed", zap.String("patient_id", patientID), zap.Error(err))
	} else {
		var recent []time.Time
		cutoff := today.AddDate(0, 0, -(positiveStreakDays - 1))
		for _, d := range dates {
			if !d.Before(cutoff) {
				recent = append(recent, d)
			}
		}
		if streak := engagement.StreakFromDates(recent, today); streak > 2 {
			signals = append(signals, fmt.Sprintf("%d-day streak", streak))
		}
	}

	if s.LatestGlucose != nil && s.AvgGlucose != nil &&
		*s.LatestGlucose < glucoseTarget && *s.LatestGlucose < *s.AvgGlucose {
		signals = append(signals, "glucose trending down")
	}
	return signals
}

func (e *Evaluator) persist(ctx context.Context, patientID string, r *models.RiskResult) error {
	now := e.now()
	if err := e.snapshots.UpsertSnapshot(ctx, &models.RiskSnapshot{
		PatientID:       patientID,
		Score:           r.Score,
		Level:           r.Level,
		Reasons:         r.Reasons,
		PositiveSignals: r.PositiveSignals,
		UpdatedAt:       now,
	}); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	entry := models.NewAuditEntry(models.ActorRiskEngine, models.ActionCalculateRisk, patientID, r)
	entry.CreatedAt = now
	if err := e.audit.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

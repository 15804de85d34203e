// Package engagement computes check-in streaks, celebrates milestones and
// escalates symptoms reported several days running.
package engagement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/dispatcher"
	"hanna-engine/internal/models"
	"hanna-engine/internal/repository"
)

// recurringWindowDays trailing days scanned for a repeating symptom, today included.
const recurringWindowDays = 3

// Milestones streak lengths that earn a celebration.
var Milestones = map[int]string{
	7:  "7 days in a row! You have checked in every day this week. Keep it up!",
	14: "14 days in a row! Two whole weeks of check-ins. We are proud of you.",
	30: "30 days in a row! A full month of looking after yourself. Amazing work!",
}

// Messenger sends a message to a patient and records it.
type Messenger interface {
	Send(ctx context.Context, patientID, userID string, msg *models.Message) error
}

// RecurringDispatcher creates the recurring_symptom task.
type RecurringDispatcher interface {
	DispatchRecurringSymptom(ctx context.Context, patientID, symptom string, days int) (*dispatcher.Result, error)
}

type Tracker struct {
	patients  repository.PatientsRepository
	checkIns  repository.CheckInsRepository
	audit     repository.AuditRepository
	messenger Messenger
	recurring RecurringDispatcher
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

func NewTracker(
	patients repository.PatientsRepository,
	checkIns repository.CheckInsRepository,
	audit repository.AuditRepository,
	messenger Messenger,
	recurring RecurringDispatcher,
	loc *time.Location,
	logger *zap.Logger,
) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		patients:  patients,
		checkIns:  checkIns,
		audit:     audit,
		messenger: messenger,
		recurring: recurring,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
}

func (t *Tracker) today() time.Time {
	return models.CivilDate(t.now(), t.loc)
}

// CalculateStreak consecutive check-in days ending today or yesterday.
func (t *Tracker) CalculateStreak(ctx context.Context, patientID string) (int, error) {
	dates, err := t.checkIns.ListCheckInDates(ctx, patientID, maxStreakDates)
	if err != nil {
		return 0, fmt.Errorf("calculate streak: %w", err)
	}
	return StreakFromDates(dates, t.today()), nil
}

// CheckAndCelebrate sends the milestone message at most once per milestone per day.
func (t *Tracker) CheckAndCelebrate(ctx context.Context, patientID string) (bool, error) {
	streak, err := t.CalculateStreak(ctx, patientID)
	if err != nil {
		return false, err
	}
	text, ok := Milestones[streak]
	if !ok {
		return false, nil
	}

	now := t.now()
	already, err := t.audit.ExistsAudit(ctx, repository.AuditQuery{
		PatientID:   patientID,
		Action:      models.ActionStreakCelebration,
		Since:       models.StartOfDay(now, t.loc),
		DetailKey:   "milestone",
		DetailValue: strconv.Itoa(streak),
	})
	if err != nil {
		return false, fmt.Errorf("check celebration: %w", err)
	}
	if already {
		t.logger.Debug("milestone already celebrated today", zap.String("patient_id", patientID), zap.Int("milestone", streak))
		return false, nil
	}

	patient, err := t.patients.GetPatient(ctx, patientID)
	if err != nil {
		return false, fmt.Errorf("check celebration: %w", err)
	}
	if err := t.messenger.Send(ctx, patientID, patient.ChannelUserID, models.TextMessage(text)); err != nil {
		t.logger.Warn("celebration not delivered", zap.String("patient_id", patientID), zap.Error(err))
	}

	entry := models.NewAuditEntry(models.ActorEngagement, models.ActionStreakCelebration, patientID, map[string]int{
		"milestone": streak,
	})
	entry.CreatedAt = now
	if err := t.audit.AppendAudit(ctx, entry); err != nil {
		return true, fmt.Errorf("audit celebration: %w", err)
	}
	t.logger.Info("streak milestone celebrated", zap.String("patient_id", patientID), zap.Int("milestone", streak))
	return true, nil
}

// TrackRecurringSymptom counts consecutive days, today first, on which the
// symptom was reported. Three days running raises a recurring_symptom task.
func (t *Tracker) TrackRecurringSymptom(ctx context.Context, patientID, symptom string) (int, error) {
	symptom = strings.TrimSpace(symptom)
	if symptom == "" {
		return 0, nil
	}
	today := t.today()
	since := today.AddDate(0, 0, -(recurringWindowDays - 1))
	rows, err := t.checkIns.ListCheckInsSince(ctx, patientID, since)
	if err != nil {
		return 0, fmt.Errorf("track recurring symptom: %w", err)
	}

	needle := strings.ToLower(symptom)
	count := 1
	expected := today.AddDate(0, 0, -1)
	for _, rec := range rows {
		day := models.CivilDate(rec.CheckInDate, time.UTC)
		if !day.Before(today) {
			continue
		}
		if !day.Equal(expected) || rec.Symptoms == nil || !strings.Contains(strings.ToLower(*rec.Symptoms), needle) {
			break
		}
		count++
		expected = expected.AddDate(0, 0, -1)
	}

	if count >= recurringWindowDays {
		if _, err := t.recurring.DispatchRecurringSymptom(ctx, patientID, symptom, count); err != nil {
			return count, err
		}
	}
	return count, nil
}

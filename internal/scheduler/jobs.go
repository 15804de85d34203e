package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/models"
	"hanna-engine/internal/monitor"
	"hanna-engine/internal/repository"
)

const (
	JobNonResponderSweep = "non_responder_sweep"
	JobMorningCheckIn    = "morning_checkin"
	JobEveningReminder   = "evening_reminder"
)

type Sweeper interface {
	RunSweep(ctx context.Context) (*monitor.SweepReport, error)
}

type CheckInStarter interface {
	Start(ctx context.Context, patientID, displayName string) (*models.Message, error)
}

type Messenger interface {
	Send(ctx context.Context, patientID, userID string, msg *models.Message) error
}

// SweepJob the daily non-responder sweep.
func SweepJob(at Clock, sweeper Sweeper) Job {
	return Job{
		Name: JobNonResponderSweep,
		At:   at,
		Run: func(ctx context.Context) error {
			_, err := sweeper.RunSweep(ctx)
			return err
		},
	}
}

// MorningCheckInJob starts the check-in for every active patient who has not checked in today.
func MorningCheckInJob(at Clock, patients repository.PatientsRepository, starter CheckInStarter, loc *time.Location, logger *zap.Logger) Job {
	return Job{
		Name: JobMorningCheckIn,
		At:   at,
		Run: func(ctx context.Context) error {
			list, err := patients.ListActiveWithoutCheckIn(ctx, models.CivilDate(time.Now(), loc))
			if err != nil {
				return fmt.Errorf("list patients: %w", err)
			}
			failed := 0
			for _, p := range list {
				if _, err := starter.Start(ctx, p.PatientID, p.DisplayName); err != nil {
					failed++
					logger.Warn("morning check-in not started", zap.String("patient_id", p.PatientID), zap.Error(err))
				}
			}
			logger.Info("morning check-in broadcast", zap.Int("patients", len(list)), zap.Int("failed", failed))
			return nil
		},
	}
}

// EveningReminderJob nudges active patients who still have no check-in today.
func EveningReminderJob(at Clock, patients repository.PatientsRepository, messenger Messenger, loc *time.Location, logger *zap.Logger) Job {
	return Job{
		Name: JobEveningReminder,
		At:   at,
		Run: func(ctx context.Context) error {
			list, err := patients.ListActiveWithoutCheckIn(ctx, models.CivilDate(time.Now(), loc))
			if err != nil {
				return fmt.Errorf("list patients: %w", err)
			}
			for _, p := range list {
				msg := models.TextMessage(ReminderText(p.DisplayName))
				if err := messenger.Send(ctx, p.PatientID, p.ChannelUserID, msg); err != nil {
					logger.Warn("evening reminder not delivered", zap.String("patient_id", p.PatientID), zap.Error(err))
				}
			}
			logger.Info("evening reminder broadcast", zap.Int("patients", len(list)))
			return nil
		},
	}
}

func ReminderText(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, you haven't checked in today yet. It only takes a minute, tap the menu to start.", name)
}

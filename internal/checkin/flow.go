// Package checkin runs the daily check-in conversation: greeting, mood,
// medication, symptoms and the symptom picker.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/models"
	"hanna-engine/internal/notifier"
	"hanna-engine/internal/repository"
)

// DefaultBackgroundTimeout bounds each fire-and-forget risk or engagement call.
const DefaultBackgroundTimeout = 30 * time.Second

type RiskAnalyzer interface {
	Analyze(ctx context.Context, patientID string, trigger models.Trigger) (*models.RiskResult, error)
}

type EngagementTracker interface {
	CheckAndCelebrate(ctx context.Context, patientID string) (bool, error)
	TrackRecurringSymptom(ctx context.Context, patientID, symptom string) (int, error)
}

type Messenger interface {
	Send(ctx context.Context, patientID, userID string, msg *models.Message) error
	RecordInbound(ctx context.Context, patientID, text string)
}

// Reply is the next message for the patient. Handled is false when the input
// did not belong to the current step and the caller should route it elsewhere.
type Reply struct {
	Message *models.Message     `json:"message,omitempty"`
	State   models.CheckInState `json:"state"`
	Handled bool                `json:"handled"`
}

type Flow struct {
	patients   repository.PatientsRepository
	checkIns   repository.CheckInsRepository
	audit      repository.AuditRepository
	risk       RiskAnalyzer
	engagement EngagementTracker
	messenger  Messenger

	loc       *time.Location
	now       func() time.Time
	spawn     notifier.Spawn
	bgTimeout time.Duration
	logger    *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewFlow(
	patients repository.PatientsRepository,
	checkIns repository.CheckInsRepository,
	audit repository.AuditRepository,
	risk RiskAnalyzer,
	engagement EngagementTracker,
	messenger Messenger,
	loc *time.Location,
	logger *zap.Logger,
) *Flow {
	if loc == nil {
		loc = time.UTC
	}
	return &Flow{
		patients:   patients,
		checkIns:   checkIns,
		audit:      audit,
		risk:       risk,
		engagement: engagement,
		messenger:  messenger,
		loc:        loc,
		now:        time.Now,
		spawn:      notifier.Go,
		bgTimeout:  DefaultBackgroundTimeout,
		logger:     logger,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSpawn replaces how background work is started.
func (f *Flow) SetSpawn(spawn notifier.Spawn) { f.spawn = spawn }

func (f *Flow) pick(n int) int {
	f.randMu.Lock()
	defer f.randMu.Unlock()
	return f.rand.Intn(n)
}

// Greeting picks a phrasing uniformly from the catalog for the local time of day.
func (f *Flow) Greeting(displayName string) string {
	options := greetings[partOfDay(f.now().In(f.loc))]
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(options[f.pick(len(options))], name)
}

// Start greets the patient with the mood card and moves them to greeting.
func (f *Flow) Start(ctx context.Context, patientID, displayName string) (*models.Message, error) {
	patient, err := f.patients.GetPatient(ctx, patientID)
	if err != nil {
		f.logger.Error("check-in start failed", zap.String("patient_id", patientID), zap.Error(err))
		return nil, fmt.Errorf("start check-in: %w", err)
	}
	if displayName == "" {
		displayName = patient.DisplayName
	}

	from := patient.CurrentCheckInState
	if err := f.patients.UpdateCheckInState(ctx, patientID, models.StateGreeting); err != nil {
		f.logger.Error("check-in start failed", zap.String("patient_id", patientID), zap.Error(err))
		return nil, fmt.Errorf("start check-in: %w", err)
	}
	f.recordTransition(ctx, patientID, from, models.StateGreeting, "start", "")

	msg := moodCard(f.Greeting(displayName))
	if err := f.messenger.Send(ctx, patientID, patient.ChannelUserID, msg); err != nil {
		f.logger.Warn("greeting not delivered", zap.String("patient_id", patientID), zap.Error(err))
	}
	return msg, nil
}

// HandleInput advances the conversation by one step. It never returns an
// error: invalid input yields Handled=false and storage faults yield the
// transient-failure acknowledgement.
func (f *Flow) HandleInput(ctx context.Context, patientID string, currentState models.CheckInState, action, value string) Reply {
	log := f.logger.With(
		zap.String("patient_id", patientID),
		zap.String("state", string(currentState)),
		zap.String("action", action),
	)

	patient, err := f.patients.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("check-in input for unknown patient")
			return Reply{State: currentState, Handled: false}
		}
		log.Error("failed to load patient", zap.Error(err))
		return Reply{Message: TransientFailureMessage, State: currentState, Handled: true}
	}
	if patient.CurrentCheckInState != currentState {
		log.Debug("input ignored", zap.Error(ErrStepMismatch), zap.String("stored_state", string(patient.CurrentCheckInState)))
		return Reply{State: patient.CurrentCheckInState, Handled: false}
	}

	out, err := Decide(currentState, action, value)
	if err != nil {
		log.Debug("input ignored", zap.Error(err))
		return Reply{State: currentState, Handled: false}
	}

	now := f.now()
	f.messenger.RecordInbound(ctx, patientID, value)

	if err := f.apply(ctx, patientID, now, out); err != nil {
		log.Error("failed to store check-in step", zap.Error(err))
		return Reply{Message: TransientFailureMessage, State: currentState, Handled: true}
	}
	f.recordTransition(ctx, patientID, currentState, out.next, action, value)

	for _, trig := range out.triggers {
		trig := trig
		f.background("analyze", patientID, func(ctx context.Context) error {
			_, err := f.risk.Analyze(ctx, patientID, trig)
			return err
		})
	}
	if out.symptom != "" {
		f.background("track_recurring_symptom", patientID, func(ctx context.Context) error {
			_, err := f.engagement.TrackRecurringSymptom(ctx, patientID, out.symptom)
			return err
		})
	}
	if out.next == models.StateNone {
		f.background("check_and_celebrate", patientID, func(ctx context.Context) error {
			_, err := f.engagement.CheckAndCelebrate(ctx, patientID)
			return err
		})
	}

	return Reply{Message: out.message, State: out.next, Handled: true}
}

func (f *Flow) apply(ctx context.Context, patientID string, now time.Time, out outcome) error {
	return f.patients.ApplyCheckInStep(ctx, patientID, models.CivilDate(now, f.loc), out.patch, out.next, now)
}

func (f *Flow) recordTransition(ctx context.Context, patientID string, from, to models.CheckInState, action, value string) {
	entry := models.NewAuditEntry(models.ActorCheckInFlow, models.ActionCheckInTransition, patientID, map[string]string{
		"from":   string(from),
		"to":     string(to),
		"action": action,
		"value":  value,
	})
	entry.CreatedAt = f.now()
	if err := f.audit.AppendAudit(ctx, entry); err != nil {
		f.logger.Warn("failed to audit check-in transition", zap.String("patient_id", patientID), zap.Error(err))
	}
}

// background runs fn detached from the reply with its own deadline.
func (f *Flow) background(name, patientID string, fn func(ctx context.Context) error) {
	f.spawn(func() {
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("background task panicked",
					zap.String("task", name),
					zap.String("patient_id", patientID),
					zap.Any("panic", r),
				)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), f.bgTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			f.logger.Error("background task failed",
				zap.String("task", name),
				zap.String("patient_id", patientID),
				zap.Error(err),
			)
		}
	})
}

// Package monitor runs the daily non-responder sweep.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/checkin"
	"hanna-engine/internal/dispatcher"
	"hanna-engine/internal/models"
	"hanna-engine/internal/repository"
)

const (
	// silentAfter a patient is a non-responder once the last response is older than this.
	silentAfter = 48 * time.Hour
	// directTaskDays silence at which a non_responder task is created outside the dispatcher guards.
	directTaskDays = 8
)

// Stages of the outreach protocol, highest first.
var Stages = []int{7, 5, 3}

// Postback actions offered by outreach messages.
const (
	ActionImOkay        = "im_okay"
	ActionRequestHelp   = "request_help"
	ActionEscalateNurse = "escalate_nurse"
)

type Messenger interface {
	Send(ctx context.Context, patientID, userID string, msg *models.Message) error
}

type TaskDispatcher interface {
	Dispatch(ctx context.Context, patientID string, risk *models.RiskResult) (*dispatcher.Result, error)
}

// SweepReport summary of one sweep.
type SweepReport struct {
	StartedAt    time.Time   `json:"started_at"`
	Checked      int         `json:"checked"`
	Sent         int         `json:"sent"`
	Skipped      int         `json:"skipped"`
	Failed       int         `json:"failed"`
	TasksCreated int         `json:"tasks_created"`
	ByStage      map[int]int `json:"by_stage"`
}

type Monitor struct {
	patients   repository.PatientsRepository
	audit      repository.AuditRepository
	tasks      repository.TasksRepository
	dispatcher TaskDispatcher
	messenger  Messenger
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

func NewMonitor(
	patients repository.PatientsRepository,
	audit repository.AuditRepository,
	tasks repository.TasksRepository,
	dispatcher TaskDispatcher,
	messenger Messenger,
	loc *time.Location,
	logger *zap.Logger,
) *Monitor {
	if loc == nil {
		loc = time.UTC
	}
	return &Monitor{
		patients:   patients,
		audit:      audit,
		tasks:      tasks,
		dispatcher: dispatcher,
		messenger:  messenger,
		loc:        loc,
		now:        time.Now,
		logger:     logger,
	}
}

// StageFor highest stage reached after daysSilent days, 0 if none.
func StageFor(daysSilent int) int {
	for _, s := range Stages {
		if daysSilent >= s {
			return s
		}
	}
	return 0
}

// DaysSilent calendar days since the last response, or since enrollment.
func DaysSilent(p *models.Patient, today time.Time, loc *time.Location) int {
	base := p.EnrolledAt
	if p.LastResponseDate != nil {
		base = *p.LastResponseDate
	}
	return models.DaysBetween(models.CivilDate(base, loc), today)
}

// RunSweep contacts every silent active patient at most once per stage per day.
// Per-patient failures are logged and counted; only the initial listing can fail the sweep.
func (m *Monitor) RunSweep(ctx context.Context) (*SweepReport, error) {
	now := m.now()
	today := models.CivilDate(now, m.loc)
	report := &SweepReport{StartedAt: now, ByStage: map[int]int{}}

	silent, err := m.patients.ListSilentActive(ctx, now.Add(-silentAfter))
	if err != nil {
		m.logger.Error("non-responder sweep aborted", zap.Error(err))
		return nil, fmt.Errorf("run sweep: %w", err)
	}

	for _, p := range silent {
		report.Checked++
		days := DaysSilent(p, today, m.loc)
		stage := StageFor(days)
		log := m.logger.With(zap.String("patient_id", p.PatientID), zap.Int("days_silent", days), zap.Int("stage", stage))
		if stage == 0 {
			report.Skipped++
			continue
		}

		done, err := m.audit.ExistsAudit(ctx, repository.AuditQuery{
			PatientID:   p.PatientID,
			Action:      models.ActionNonResponderProtocol,
			Since:       models.StartOfDay(now, m.loc),
			DetailKey:   "stage",
			DetailValue: strconv.Itoa(stage),
		})
		if err != nil {
			log.Error("idempotency check failed", zap.Error(err))
			report.Failed++
			continue
		}
		if done {
			report.Skipped++
			continue
		}

		if err := m.messenger.Send(ctx, p.PatientID, p.ChannelUserID, StageMessage(stage, p.DisplayName)); err != nil {
			log.Warn("outreach not delivered", zap.Error(err))
			report.Failed++
			continue
		}

		entry := models.NewAuditEntry(models.ActorNonResponder, models.ActionNonResponderProtocol, p.PatientID, map[string]int{
			"stage":       stage,
			"days_silent": days,
		})
		entry.CreatedAt = now
		if err := m.audit.AppendAudit(ctx, entry); err != nil {
			log.Error("failed to audit outreach", zap.Error(err))
		}
		if err := m.patients.UpdateMissedDays(ctx, p.PatientID, days); err != nil {
			log.Error("failed to update missed days", zap.Error(err))
		}
		report.Sent++
		report.ByStage[stage]++

		if days >= directTaskDays {
			if err := m.createDirectTask(ctx, p.PatientID, days, now); err != nil {
				log.Error("failed to create non_responder task", zap.Error(err))
				report.Failed++
				continue
			}
			report.TasksCreated++
		}
	}

	m.logger.Info("non-responder sweep finished",
		zap.Int("checked", report.Checked),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("tasks_created", report.TasksCreated),
	)
	return report, nil
}

// createDirectTask inserts without the dispatcher's cap and dedup guards.
// TODO: confirm with the care team whether day 8+ tasks should go through the dedup window.
func (m *Monitor) createDirectTask(ctx context.Context, patientID string, days int, now time.Time) error {
	task := &models.Task{
		PatientID: patientID,
		Type:      models.TaskTypeNonResponder,
		Priority:  models.PriorityHigh,
		Reason:    fmt.Sprintf("no response for %d days", days),
		Status:    models.TaskPending,
		CreatedAt: now,
	}
	if err := m.tasks.CreateTask(ctx, task); err != nil {
		return err
	}
	entry := models.NewAuditEntry(models.ActorNonResponder, models.ActionTaskCreated, patientID, map[string]interface{}{
		"task_id":     task.TaskID,
		"type":        task.Type,
		"priority":    task.Priority,
		"reason":      task.Reason,
		"bypass":      true,
		"days_silent": days,
	})
	entry.CreatedAt = now
	return m.audit.AppendAudit(ctx, entry)
}

// RequestHelp handles the outreach buttons. Any tap counts as a response;
// help and escalation requests go through the dispatcher as a high-level review.
func (m *Monitor) RequestHelp(ctx context.Context, patientID, action string) (*models.Message, error) {
	if err := m.patients.MarkResponded(ctx, patientID, m.now()); err != nil {
		return nil, fmt.Errorf("request help: %w", err)
	}
	switch action {
	case ActionImOkay:
		return models.TextMessage("Thank you for letting us know you're okay! We'll check in with you tomorrow."), nil
	case ActionRequestHelp, ActionEscalateNurse:
		reason := "patient requested help after outreach"
		if action == ActionEscalateNurse {
			reason = "patient asked to speak with a nurse"
		}
		score := 5
		if _, err := m.dispatcher.Dispatch(ctx, patientID, &models.RiskResult{
			Score:   score,
			Level:   models.LevelForScore(score),
			Reasons: []string{reason},
		}); err != nil {
			return nil, fmt.Errorf("request help: %w", err)
		}
		return models.TextMessage("Thank you. A nurse from our care team will contact you soon."), nil
	}
	return nil, fmt.Errorf("%w: outreach action %q", checkin.ErrUnknownTransition, action)
}

// StageMessage outreach message for a stage.
func StageMessage(stage int, displayName string) *models.Message {
	name := displayName
	if name == "" {
		name = "there"
	}
	switch stage {
	case 3:
		return models.TextMessage(fmt.Sprintf(
			"Hi %s, we haven't heard from you for a few days. We hope you're doing well! Reply any time to check in.", name))
	case 5:
		return models.ButtonMessage(
			fmt.Sprintf("%s, we miss you! Your care team is thinking of you. Is everything alright?", name),
			models.Button{Label: "I'm okay", Data: checkin.Postback(models.StateNone, ActionImOkay, "5")},
			models.Button{Label: "I need help", Data: checkin.Postback(models.StateNone, ActionRequestHelp, "5")},
		)
	default:
		return models.ButtonMessage(
			fmt.Sprintf("%s, it has been a week since we last heard from you. Please let us know you're safe, or ask a nurse to call you.", name),
			models.Button{Label: "I'm okay", Data: checkin.Postback(models.StateNone, ActionImOkay, "7")},
			models.Button{Label: "Talk to a nurse", Data: checkin.Postback(models.StateNone, ActionEscalateNurse, "7")},
		)
	}
}

package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/models"
	"hanna-engine/internal/repository"
)

const (
	DefaultCriticalCap = 15
	DefaultDedupWindow = 4 * time.Hour
)

// Outcome what a dispatch did. Suppressions are not errors.
type Outcome string

const (
	OutcomeCreated             Outcome = "created"
	OutcomeSuppressedCap       Outcome = "suppressed_cap"
	OutcomeSuppressedDedup     Outcome = "suppressed_dedup"
	OutcomeSuppressedDuplicate Outcome = "suppressed_duplicate"
	OutcomeSkipped             Outcome = "skipped"
)

// Result outcome plus the created task, if any.
type Result struct {
	Outcome Outcome
	Task    *models.Task
}

// SupervisorAlerter best-effort, non-blocking supervisor notification.
type SupervisorAlerter interface {
	Alert(text string)
}

// Dispatcher turns non-low risk results into human follow-up tasks, guarded
// by a system-wide critical cap and a per-patient dedup window.
type Dispatcher struct {
	tasks       repository.TasksRepository
	supervisor  SupervisorAlerter
	criticalCap int
	dedupWindow time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

func NewDispatcher(tasks repository.TasksRepository, supervisor SupervisorAlerter, criticalCap int, dedupWindow time.Duration, logger *zap.Logger) *Dispatcher {
	if criticalCap <= 0 {
		criticalCap = DefaultCriticalCap
	}
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &Dispatcher{
		tasks:       tasks,
		supervisor:  supervisor,
		criticalCap: criticalCap,
		dedupWindow: dedupWindow,
		now:         time.Now,
		logger:      logger,
	}
}

// Dispatch creates an emergency_alert (critical) or risk_review (high) task.
// Cap check, dedup lookup and insert run in one guarded transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, patientID string, risk *models.RiskResult) (*Result, error) {
	if risk == nil || risk.Level == models.RiskLow {
		return &Result{Outcome: OutcomeSkipped}, nil
	}
	critical := risk.Level == models.RiskCritical
	now := d.now()
	res := &Result{}
	var pendingCritical int

	err := d.tasks.Guarded(ctx, patientID, critical, func(ctx context.Context, tx repository.TaskTx) error {
		if critical {
			n, err := tx.CountPendingCritical(ctx)
			if err != nil {
				return err
			}
			if n >= d.criticalCap {
				pendingCritical = n
				res.Outcome = OutcomeSuppressedCap
				return tx.AppendAudit(ctx, d.audit(models.ActionTaskSuppressedCap, patientID, now, map[string]interface{}{
					"level":            risk.Level,
					"score":            risk.Score,
					"reasons":          risk.Reasons,
					"pending_critical": n,
					"cap":              d.criticalCap,
				}))
			}
		}

		existing, err := tx.ListDedupCandidates(ctx, patientID, now.Add(-d.dedupWindow))
		if err != nil {
			return err
		}
		if len(existing) > 0 && !(critical && !anyCritical(existing)) {
			res.Outcome = OutcomeSuppressedDedup
			return tx.AppendAudit(ctx, d.audit(models.ActionTaskSuppressedDedup, patientID, now, map[string]interface{}{
				"level":          risk.Level,
				"score":          risk.Score,
				"existing_tasks": taskIDs(existing),
			}))
		}

		taskType := models.TaskTypeRiskReview
		if critical {
			taskType = models.TaskTypeEmergencyAlert
		}
		task := &models.Task{
			PatientID: patientID,
			Type:      taskType,
			Priority:  models.PriorityForLevel(risk.Level),
			Reason:    strings.Join(risk.Reasons, ", "),
			Status:    models.TaskPending,
			CreatedAt: now,
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		res.Outcome = OutcomeCreated
		res.Task = task
		return tx.AppendAudit(ctx, d.taskCreated(task, now, len(existing) > 0))
	})
	if err != nil {
		d.logger.Error("dispatch failed", zap.String("patient_id", patientID), zap.Error(err))
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	d.report(patientID, res, pendingCritical)
	return res, nil
}

// DispatchRecurringSymptom creates one critical recurring_symptom task per
// patient while it stays pending. The critical cap still applies.
func (d *Dispatcher) DispatchRecurringSymptom(ctx context.Context, patientID, symptom string, days int) (*Result, error) {
	now := d.now()
	res := &Result{}
	var pendingCritical int

	err := d.tasks.Guarded(ctx, patientID, true, func(ctx context.Context, tx repository.TaskTx) error {
		pending, err := tx.FindPendingByType(ctx, patientID, models.TaskTypeRecurringSymptom)
		if err != nil {
			return err
		}
		if pending != nil {
			res.Outcome = OutcomeSuppressedDuplicate
			return tx.AppendAudit(ctx, d.audit(models.ActionTaskSuppressedDedup, patientID, now, map[string]interface{}{
				"type":          models.TaskTypeRecurringSymptom,
				"symptom":       symptom,
				"existing_task": pending.TaskID,
			}))
		}

		n, err := tx.CountPendingCritical(ctx)
		if err != nil {
			return err
		}
		if n >= d.criticalCap {
			pendingCritical = n
			res.Outcome = OutcomeSuppressedCap
			return tx.AppendAudit(ctx, d.audit(models.ActionTaskSuppressedCap, patientID, now, map[string]interface{}{
				"type":             models.TaskTypeRecurringSymptom,
				"symptom":          symptom,
				"pending_critical": n,
				"cap":              d.criticalCap,
			}))
		}

		task := &models.Task{
			PatientID: patientID,
			Type:      models.TaskTypeRecurringSymptom,
			Priority:  models.PriorityCritical,
			Reason:    fmt.Sprintf("recurring symptom: %s for %d consecutive days", symptom, days),
			Status:    models.TaskPending,
			CreatedAt: now,
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		res.Outcome = OutcomeCreated
		res.Task = task
		return tx.AppendAudit(ctx, d.taskCreated(task, now, false))
	})
	if err != nil {
		d.logger.Error("recurring symptom dispatch failed",
			zap.String("patient_id", patientID),
			zap.String("symptom", symptom),
			zap.Error(err),
		)
		return nil, fmt.Errorf("dispatch recurring symptom: %w", err)
	}

	d.report(patientID, res, pendingCritical)
	return res, nil
}

func (d *Dispatcher) report(patientID string, res *Result, pendingCritical int) {
	switch res.Outcome {
	case OutcomeCreated:
		d.logger.Info("task created",
			zap.String("patient_id", patientID),
			zap.String("task_id", res.Task.TaskID),
			zap.String("type", res.Task.Type),
			zap.String("priority", string(res.Task.Priority)),
		)
	case OutcomeSuppressedCap:
		d.logger.Warn("critical task suppressed by cap",
			zap.String("patient_id", patientID),
			zap.Int("pending_critical", pendingCritical),
			zap.Int("cap", d.criticalCap),
		)
		if d.supervisor != nil {
			d.supervisor.Alert(fmt.Sprintf(
				"Critical task cap reached (%d pending, cap %d). A critical alert for patient %s was not queued.",
				pendingCritical, d.criticalCap, patientID))
		}
	default:
		d.logger.Info("task suppressed", zap.String("patient_id", patientID), zap.String("outcome", string(res.Outcome)))
	}
}

func (d *Dispatcher) audit(action, patientID string, at time.Time, details interface{}) *models.AuditEntry {
	e := models.NewAuditEntry(models.ActorDispatcher, action, patientID, details)
	e.CreatedAt = at
	return e
}

func (d *Dispatcher) taskCreated(task *models.Task, at time.Time, escalation bool) *models.AuditEntry {
	return d.audit(models.ActionTaskCreated, task.PatientID, at, map[string]interface{}{
		"task_id":    task.TaskID,
		"type":       task.Type,
		"priority":   task.Priority,
		"reason":     task.Reason,
		"escalation": escalation,
	})
}

func anyCritical(tasks []*models.Task) bool {
	for _, t := range tasks {
		if t.Priority == models.PriorityCritical {
			return true
		}
	}
	return false
}

func taskIDs(tasks []*models.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.TaskID)
	}
	return ids
}

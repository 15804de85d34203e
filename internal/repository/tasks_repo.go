package repository

import (
	"context"
	"time"

	"hanna-engine/internal/models"
)

// TaskFilters list filters; zero values are ignored.
type TaskFilters struct {
	Status    models.TaskStatus
	PatientID string
	Limit     int
}

// TaskTx operations available inside a guarded task transaction.
type TaskTx interface {
	CountPendingCritical(ctx context.Context) (int, error)
	// ListDedupCandidates tasks for the patient created since `since`, plus any
	// still pending with priority critical or high.
	ListDedupCandidates(ctx context.Context, patientID string, since time.Time) ([]*models.Task, error)
	FindPendingByType(ctx context.Context, patientID, taskType string) (*models.Task, error)
	InsertTask(ctx context.Context, task *models.Task) error
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// TasksRepository follow-up tasks.
type TasksRepository interface {
	// Guarded runs fn in one transaction holding the per-patient lock and,
	// when critical is true, the global critical-cap lock.
	Guarded(ctx context.Context, patientID string, critical bool, fn func(ctx context.Context, tx TaskTx) error) error
	// CreateTask inserts without any cap or dedup guard.
	CreateTask(ctx context.Context, task *models.Task) error
	CompleteTask(ctx context.Context, taskID, completedBy string, at time.Time) (*models.Task, error)
	ListTasks(ctx context.Context, filters TaskFilters) ([]*models.Task, error)
}

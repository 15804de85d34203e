package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hanna-engine/internal/models"
)

// MemoryTasksRepo serves tasks when DB is disabled. Guarded holds one mutex
// for the whole callback; writes are staged and applied only when fn succeeds.
type MemoryTasksRepo struct {
	mu    sync.Mutex
	tasks []models.Task
	audit *MemoryAuditRepo
}

func NewMemoryTasksRepo(audit *MemoryAuditRepo) *MemoryTasksRepo {
	return &MemoryTasksRepo{audit: audit}
}

var _ TasksRepository = (*MemoryTasksRepo)(nil)

func (r *MemoryTasksRepo) Guarded(ctx context.Context, patientID string, critical bool, fn func(ctx context.Context, tx TaskTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTaskTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.tasks = append(r.tasks, tx.tasks...)
	if r.audit != nil {
		r.audit.mu.Lock()
		for i := range tx.audits {
			r.audit.appendLocked(&tx.audits[i])
		}
		r.audit.mu.Unlock()
	}
	return nil
}

func (r *MemoryTasksRepo) CreateTask(_ context.Context, t *models.Task) error {
	if t == nil || t.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fillTask(t)
	r.tasks = append(r.tasks, *t)
	return nil
}

func (r *MemoryTasksRepo) CompleteTask(ctx context.Context, taskID, completedBy string, at time.Time) (*models.Task, error) {
	r.mu.Lock()
	var done *models.Task
	for i := range r.tasks {
		t := &r.tasks[i]
		if t.TaskID == taskID && t.Status == models.TaskPending {
			t.Status = models.TaskCompleted
			t.CompletedAt = &at
			by := completedBy
			t.CompletedBy = &by
			cp := *t
			done = &cp
			break
		}
	}
	r.mu.Unlock()

	if done == nil {
		return nil, fmt.Errorf("pending task %s: %w", taskID, ErrNotFound)
	}
	if r.audit != nil {
		entry := models.NewAuditEntry(completedBy, models.ActionTaskCompleted, done.PatientID, map[string]string{
			"task_id":      done.TaskID,
			"type":         done.Type,
			"completed_by": completedBy,
		})
		entry.CreatedAt = at
		if err := r.audit.AppendAudit(ctx, entry); err != nil {
			return nil, err
		}
	}
	return done, nil
}

func (r *MemoryTasksRepo) ListTasks(_ context.Context, filters TaskFilters) ([]*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Task
	for i := range r.tasks {
		t := r.tasks[i]
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		if filters.PatientID != "" && t.PatientID != filters.PatientID {
			continue
		}
		out = append(out, &t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func fillTask(t *models.Task) {
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
}

type memTaskTx struct {
	repo   *MemoryTasksRepo
	tasks  []models.Task
	audits []models.AuditEntry
}

func (t *memTaskTx) all() []models.Task {
	return append(append([]models.Task(nil), t.repo.tasks...), t.tasks...)
}

func (t *memTaskTx) CountPendingCritical(context.Context) (int, error) {
	n := 0
	for _, task := range t.all() {
		if task.Status == models.TaskPending && task.Priority == models.PriorityCritical {
			n++
		}
	}
	return n, nil
}

func (t *memTaskTx) ListDedupCandidates(_ context.Context, patientID string, since time.Time) ([]*models.Task, error) {
	var out []*models.Task
	for _, task := range t.all() {
		if task.PatientID != patientID {
			continue
		}
		recent := !task.CreatedAt.Before(since)
		openUrgent := task.Status == models.TaskPending &&
			(task.Priority == models.PriorityCritical || task.Priority == models.PriorityHigh)
		if recent || openUrgent {
			task := task
			out = append(out, &task)
		}
	}
	return out, nil
}

func (t *memTaskTx) FindPendingByType(_ context.Context, patientID, taskType string) (*models.Task, error) {
	for _, task := range t.all() {
		if task.PatientID == patientID && task.Type == taskType && task.Status == models.TaskPending {
			task := task
			return &task, nil
		}
	}
	return nil, nil
}

func (t *memTaskTx) InsertTask(_ context.Context, task *models.Task) error {
	if task == nil || task.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	fillTask(task)
	t.tasks = append(t.tasks, *task)
	return nil
}

func (t *memTaskTx) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	if entry == nil || entry.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	t.audits = append(t.audits, *entry)
	return nil
}

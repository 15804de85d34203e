package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hanna-engine/common/database"
	"hanna-engine/internal/models"
)

// criticalCapLockKey advisory lock key serialising every critical-task insert.
const criticalCapLockKey int64 = 0x48414e4e41

// PostgresTasksRepository tasks table.
type PostgresTasksRepository struct {
	db *sql.DB
}

// NewPostgresTasksRepository creates the tasks repository.
func NewPostgresTasksRepository(db *sql.DB) *PostgresTasksRepository {
	return &PostgresTasksRepository{db: db}
}

var _ TasksRepository = (*PostgresTasksRepository)(nil)

const taskColumns = `task_id, patient_id, type, priority, reason, status, created_at, completed_at, completed_by`

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var priority, status string
	var completedAt sql.NullTime
	var completedBy sql.NullString
	if err := row.Scan(
		&t.TaskID,
		&t.PatientID,
		&t.Type,
		&priority,
		&t.Reason,
		&status,
		&t.CreatedAt,
		&completedAt,
		&completedBy,
	); err != nil {
		return nil, err
	}
	t.Priority = models.TaskPriority(priority)
	t.Status = models.TaskStatus(status)
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	if completedBy.Valid {
		v := completedBy.String
		t.CompletedBy = &v
	}
	return &t, nil
}

func queryTasks(ctx context.Context, q execer, query string, args ...interface{}) ([]*models.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTask(ctx context.Context, q execer, t *models.Task) error {
	if t == nil || t.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if t.TaskID == "" {
		t.TaskID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO tasks (task_id, patient_id, type, priority, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := q.ExecContext(ctx, query,
		t.TaskID, t.PatientID, t.Type, string(t.Priority), t.Reason, string(t.Status), t.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Guarded runs fn inside one transaction. Critical callers take the global
// cap lock first, then everyone takes the per-patient lock. Locks are
// released at commit or rollback.
func (r *PostgresTasksRepository) Guarded(ctx context.Context, patientID string, critical bool, fn func(ctx context.Context, tx TaskTx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if critical {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, criticalCapLockKey); err != nil {
				return fmt.Errorf("failed to take cap lock: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, patientID); err != nil {
			return fmt.Errorf("failed to take patient lock: %w", err)
		}
		return fn(ctx, &pgTaskTx{tx: tx})
	})
}

// CreateTask inserts a task with no guard.
func (r *PostgresTasksRepository) CreateTask(ctx context.Context, t *models.Task) error {
	return insertTask(ctx, r.db, t)
}

// CompleteTask marks a pending task completed and audits it in the same transaction.
func (r *PostgresTasksRepository) CompleteTask(ctx context.Context, taskID, completedBy string, at time.Time) (*models.Task, error) {
	var task *models.Task
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE tasks
			SET status = 'completed', completed_at = $2, completed_by = $3
			WHERE task_id = $1 AND status = 'pending'
			RETURNING ` + taskColumns
		t, err := scanTask(tx.QueryRowContext(ctx, query, taskID, at, completedBy))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("pending task %s: %w", taskID, ErrNotFound)
			}
			return fmt.Errorf("failed to complete task: %w", err)
		}
		task = t

		details, err := json.Marshal(map[string]string{
			"task_id":      t.TaskID,
			"type":         t.Type,
			"completed_by": completedBy,
		})
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, &models.AuditEntry{
			Actor:     completedBy,
			Action:    models.ActionTaskCompleted,
			PatientID: t.PatientID,
			Details:   details,
			CreatedAt: at,
		})
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks pending tasks sort by priority then age.
func (r *PostgresTasksRepository) ListTasks(ctx context.Context, filters TaskFilters) ([]*models.Task, error) {
	var where []string
	var args []interface{}
	argN := 1
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(filters.Status))
		argN++
	}
	if filters.PatientID != "" {
		where = append(where, fmt.Sprintf("patient_id = $%d", argN))
		args = append(args, filters.PatientID)
		argN++
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += `
		ORDER BY CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 ELSE 2 END, created_at ASC
		LIMIT ` + fmt.Sprintf("$%d", argN)
	args = append(args, limit)

	return queryTasks(ctx, r.db, query, args...)
}

// pgTaskTx TaskTx bound to an open transaction.
type pgTaskTx struct {
	tx *sql.Tx
}

func (t *pgTaskTx) CountPendingCritical(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'pending' AND priority = 'critical'`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count critical tasks: %w", err)
	}
	return n, nil
}

func (t *pgTaskTx) ListDedupCandidates(ctx context.Context, patientID string, since time.Time) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE patient_id = $1
		  AND (created_at >= $2 OR (status = 'pending' AND priority IN ('critical', 'high')))
		ORDER BY created_at DESC`
	return queryTasks(ctx, t.tx, query, patientID, since)
}

func (t *pgTaskTx) FindPendingByType(ctx context.Context, patientID, taskType string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE patient_id = $1 AND type = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1`
	task, err := scanTask(t.tx.QueryRowContext(ctx, query, patientID, taskType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pending task: %w", err)
	}
	return task, nil
}

func (t *pgTaskTx) InsertTask(ctx context.Context, task *models.Task) error {
	return insertTask(ctx, t.tx, task)
}

func (t *pgTaskTx) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	return insertAudit(ctx, t.tx, entry)
}

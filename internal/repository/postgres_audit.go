package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hanna-engine/internal/models"
)

// PostgresAuditRepository audit_log table. Rows are never updated or deleted.
type PostgresAuditRepository struct {
	db *sql.DB
}

// NewPostgresAuditRepository creates the audit repository.
func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

// AppendAudit inserts one entry.
func (r *PostgresAuditRepository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	return insertAudit(ctx, r.db, entry)
}

func insertAudit(ctx context.Context, q execer, entry *models.AuditEntry) error {
	if entry == nil || entry.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	if entry.AuditID == "" {
		entry.AuditID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	details := []byte(entry.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}

	query := `
		INSERT INTO audit_log (audit_id, actor, action, patient_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := q.ExecContext(ctx, query,
		entry.AuditID, entry.Actor, entry.Action, entry.PatientID, details, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to append audit: %w", err)
	}
	return nil
}

// ExistsAudit reports whether any entry matches q.
func (r *PostgresAuditRepository) ExistsAudit(ctx context.Context, q AuditQuery) (bool, error) {
	where := []string{"patient_id = $1", "action = $2", "created_at >= $3"}
	args := []interface{}{q.PatientID, q.Action, q.Since}
	if q.DetailKey != "" {
		where = append(where, "details->>$4 = $5")
		args = append(args, q.DetailKey, q.DetailValue)
	}

	query := `SELECT EXISTS (SELECT 1 FROM audit_log WHERE ` + strings.Join(where, " AND ") + `)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query audit: %w", err)
	}
	return exists, nil
}

// ListAudit most recent entries for a patient.
func (r *PostgresAuditRepository) ListAudit(ctx context.Context, patientID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT audit_id, actor, action, patient_id, details, created_at
		FROM audit_log
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var details []byte
		if err := rows.Scan(&e.AuditID, &e.Actor, &e.Action, &e.PatientID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		e.Details = details
		out = append(out, &e)
	}
	return out, rows.Err()
}

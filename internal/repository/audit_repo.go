package repository

import (
	"context"
	"time"

	"hanna-engine/internal/models"
)

// AuditQuery filter for audit lookups. DetailKey/DetailValue match a
// top-level key of the JSON details when DetailKey is set.
type AuditQuery struct {
	PatientID   string
	Action      string
	Since       time.Time
	DetailKey   string
	DetailValue string
}

// AuditRepository append-only audit log.
type AuditRepository interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ExistsAudit(ctx context.Context, q AuditQuery) (bool, error)
	ListAudit(ctx context.Context, patientID string, limit int) ([]*models.AuditEntry, error)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"hanna-engine/internal/models"
)

// PostgresRiskSnapshotsRepository risk_snapshots table.
type PostgresRiskSnapshotsRepository struct {
	db *sql.DB
}

// NewPostgresRiskSnapshotsRepository creates the risk snapshot repository.
func NewPostgresRiskSnapshotsRepository(db *sql.DB) *PostgresRiskSnapshotsRepository {
	return &PostgresRiskSnapshotsRepository{db: db}
}

var _ RiskSnapshotsRepository = (*PostgresRiskSnapshotsRepository)(nil)

// UpsertSnapshot replaces the patient's latest snapshot.
func (r *PostgresRiskSnapshotsRepository) UpsertSnapshot(ctx context.Context, s *models.RiskSnapshot) error {
	if s == nil || s.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	query := `
		INSERT INTO risk_snapshots (patient_id, score, level, reasons, positive_signals, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (patient_id) DO UPDATE SET
			score            = EXCLUDED.score,
			level            = EXCLUDED.level,
			reasons          = EXCLUDED.reasons,
			positive_signals = EXCLUDED.positive_signals,
			updated_at       = EXCLUDED.updated_at
	`
	reasons := s.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	positives := s.PositiveSignals
	if positives == nil {
		positives = []string{}
	}
	if _, err := r.db.ExecContext(ctx, query,
		s.PatientID, s.Score, string(s.Level), pq.Array(reasons), pq.Array(positives), s.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert risk snapshot: %w", err)
	}
	return nil
}

// GetSnapshot latest snapshot, ErrNotFound if never calculated.
func (r *PostgresRiskSnapshotsRepository) GetSnapshot(ctx context.Context, patientID string) (*models.RiskSnapshot, error) {
	query := `
		SELECT patient_id, score, level, reasons, positive_signals, updated_at
		FROM risk_snapshots
		WHERE patient_id = $1
	`
	var s models.RiskSnapshot
	var level string
	err := r.db.QueryRowContext(ctx, query, patientID).Scan(
		&s.PatientID,
		&s.Score,
		&level,
		pq.Array(&s.Reasons),
		pq.Array(&s.PositiveSignals),
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("risk snapshot %s: %w", patientID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get risk snapshot: %w", err)
	}
	s.Level = models.RiskLevel(level)
	return &s, nil
}

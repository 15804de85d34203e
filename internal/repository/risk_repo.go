package repository

import (
	"context"

	"hanna-engine/internal/models"
)

// RiskSnapshotsRepository latest risk per patient.
type RiskSnapshotsRepository interface {
	UpsertSnapshot(ctx context.Context, snapshot *models.RiskSnapshot) error
	GetSnapshot(ctx context.Context, patientID string) (*models.RiskSnapshot, error)
}

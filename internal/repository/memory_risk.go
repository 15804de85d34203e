package repository

import (
	"context"
	"fmt"
	"sync"

	"hanna-engine/internal/models"
)

// MemoryRiskSnapshotsRepo serves risk snapshots when DB is disabled.
type MemoryRiskSnapshotsRepo struct {
	mu        sync.RWMutex
	snapshots map[string]models.RiskSnapshot
}

func NewMemoryRiskSnapshotsRepo() *MemoryRiskSnapshotsRepo {
	return &MemoryRiskSnapshotsRepo{snapshots: map[string]models.RiskSnapshot{}}
}

var _ RiskSnapshotsRepository = (*MemoryRiskSnapshotsRepo)(nil)

func (r *MemoryRiskSnapshotsRepo) UpsertSnapshot(_ context.Context, s *models.RiskSnapshot) error {
	if s == nil || s.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if s.Score < models.MinRiskScore || s.Score > models.MaxRiskScore {
		return fmt.Errorf("score %d out of range", s.Score)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.Reasons = append([]string(nil), s.Reasons...)
	cp.PositiveSignals = append([]string(nil), s.PositiveSignals...)
	r.snapshots[s.PatientID] = cp
	return nil
}

func (r *MemoryRiskSnapshotsRepo) GetSnapshot(_ context.Context, patientID string) (*models.RiskSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[patientID]
	if !ok {
		return nil, fmt.Errorf("risk snapshot %s: %w", patientID, ErrNotFound)
	}
	return &s, nil
}

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

// MemoryAuditRepo serves the audit log when DB is disabled.
type MemoryAuditRepo struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

func NewMemoryAuditRepo() *MemoryAuditRepo {
	return &MemoryAuditRepo{}
}

var _ AuditRepository = (*MemoryAuditRepo)(nil)

func (r *MemoryAuditRepo) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	if entry == nil || entry.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(entry)
	return nil
}

func (r *MemoryAuditRepo) appendLocked(entry *models.AuditEntry) {
	if entry.AuditID == "" {
		entry.AuditID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if len(entry.Details) == 0 {
		entry.Details = []byte("{}")
	}
	r.entries = append(r.entries, *entry)
}

func (r *MemoryAuditRepo) ExistsAudit(_ context.Context, q AuditQuery) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.entries {
		e := &r.entries[i]
		if e.PatientID != q.PatientID || e.Action != q.Action || e.CreatedAt.Before(q.Since) {
			continue
		}
		if q.DetailKey != "" && e.DetailString(q.DetailKey) != q.DetailValue {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (r *MemoryAuditRepo) ListAudit(_ context.Context, patientID string, limit int) ([]*models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.AuditEntry
	for i := range r.entries {
		if r.entries[i].PatientID == patientID {
			e := r.entries[i]
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count entries with action, optionally for one patient.
func (r *MemoryAuditRepo) Count(action, patientID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Action == action && (patientID == "" || e.PatientID == patientID) {
			n++
		}
	}
	return n
}

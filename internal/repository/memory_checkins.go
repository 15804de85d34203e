package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"hanna-engine/internal/models"
)

// MemoryCheckInsRepo serves check-ins when DB is disabled.
type MemoryCheckInsRepo struct {
	mu   sync.RWMutex
	rows map[string]map[string]models.CheckInRecord // patientID -> date key -> record
	now  func() time.Time
}

func NewMemoryCheckInsRepo() *MemoryCheckInsRepo {
	return &MemoryCheckInsRepo{rows: map[string]map[string]models.CheckInRecord{}, now: time.Now}
}

var _ CheckInsRepository = (*MemoryCheckInsRepo)(nil)

func (r *MemoryCheckInsRepo) MergeCheckIn(_ context.Context, patientID string, day time.Time, patch models.CheckInPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDate, ok := r.rows[patientID]
	if !ok {
		byDate = map[string]models.CheckInRecord{}
		r.rows[patientID] = byDate
	}
	key := models.DateKey(day)
	now := r.now()
	rec, ok := byDate[key]
	if !ok {
		rec = models.CheckInRecord{PatientID: patientID, CheckInDate: models.CivilDate(day, time.UTC), CreatedAt: now}
	}
	if patch.Mood != nil {
		v := *patch.Mood
		rec.Mood = &v
	}
	if patch.Medication != nil {
		v := *patch.Medication
		rec.Medication = &v
	}
	if patch.Symptoms != nil {
		v := *patch.Symptoms
		rec.Symptoms = &v
	}
	if patch.Glucose != nil {
		v := *patch.Glucose
		rec.Glucose = &v
	}
	rec.UpdatedAt = now
	byDate[key] = rec
	return nil
}

func (r *MemoryCheckInsRepo) ListCheckInsSince(_ context.Context, patientID string, since time.Time) ([]*models.CheckInRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinceKey := models.DateKey(since)
	var out []*models.CheckInRecord
	for key, rec := range r.rows[patientID] {
		if key >= sinceKey {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInDate.After(out[j].CheckInDate) })
	return out, nil
}

func (r *MemoryCheckInsRepo) ListCheckInDates(_ context.Context, patientID string, limit int) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]time.Time, 0, len(r.rows[patientID]))
	for _, rec := range r.rows[patientID] {
		out = append(out, rec.CheckInDate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryCheckInsRepo) has(patientID string, day time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rows[patientID][models.DateKey(day)]
	return ok
}

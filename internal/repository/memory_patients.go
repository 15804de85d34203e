package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hanna-engine/internal/models"
)

// MemoryPatientsRepo serves patients when DB is disabled.
type MemoryPatientsRepo struct {
	mu       sync.RWMutex
	patients map[string]models.Patient
	checkIns *MemoryCheckInsRepo
}

// NewMemoryPatientsRepo checkIns may be nil; ListActiveWithoutCheckIn then
// treats every active patient as missing.
func NewMemoryPatientsRepo(checkIns *MemoryCheckInsRepo) *MemoryPatientsRepo {
	return &MemoryPatientsRepo{patients: map[string]models.Patient{}, checkIns: checkIns}
}

var _ PatientsRepository = (*MemoryPatientsRepo)(nil)

// Put inserts or replaces a patient.
func (r *MemoryPatientsRepo) Put(p models.Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CurrentCheckInState == "" {
		p.CurrentCheckInState = models.StateNone
	}
	r.patients[p.PatientID] = p
}

func (r *MemoryPatientsRepo) GetPatient(_ context.Context, patientID string) (*models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[patientID]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}
	return &p, nil
}

func (r *MemoryPatientsRepo) GetPatientByChannelUser(_ context.Context, channelUserID string) (*models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.ChannelUserID == channelUserID {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("patient %s: %w", channelUserID, ErrNotFound)
}

func (r *MemoryPatientsRepo) update(patientID string, fn func(p *models.Patient)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[patientID]
	if !ok {
		return fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}
	fn(&p)
	r.patients[patientID] = p
	return nil
}

func (r *MemoryPatientsRepo) UpdateCheckInState(_ context.Context, patientID string, state models.CheckInState) error {
	return r.update(patientID, func(p *models.Patient) { p.CurrentCheckInState = state })
}

func (r *MemoryPatientsRepo) MarkResponded(_ context.Context, patientID string, at time.Time) error {
	return r.update(patientID, func(p *models.Patient) {
		p.LastResponseDate = &at
		p.ConsecutiveMissedDays = 0
	})
}

// ApplyCheckInStep holds the patient lock across the check-in merge so the
// step is all-or-nothing.
func (r *MemoryPatientsRepo) ApplyCheckInStep(ctx context.Context, patientID string, day time.Time, patch models.CheckInPatch, state models.CheckInState, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[patientID]
	if !ok {
		return fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}
	if !patch.IsEmpty() {
		if r.checkIns == nil {
			return fmt.Errorf("no check-in store for patient %s", patientID)
		}
		if err := r.checkIns.MergeCheckIn(ctx, patientID, day, patch); err != nil {
			return err
		}
	}
	p.CurrentCheckInState = state
	p.LastResponseDate = &at
	p.ConsecutiveMissedDays = 0
	r.patients[patientID] = p
	return nil
}

func (r *MemoryPatientsRepo) UpdateMissedDays(_ context.Context, patientID string, days int) error {
	return r.update(patientID, func(p *models.Patient) { p.ConsecutiveMissedDays = days })
}

func (r *MemoryPatientsRepo) ListSilentActive(_ context.Context, cutoff time.Time) ([]*models.Patient, error) {
	return r.filter(func(p models.Patient) bool {
		return p.EnrollmentStatus == models.EnrollmentActive &&
			(p.LastResponseDate == nil || p.LastResponseDate.Before(cutoff))
	}), nil
}

func (r *MemoryPatientsRepo) ListActiveWithoutCheckIn(_ context.Context, day time.Time) ([]*models.Patient, error) {
	return r.filter(func(p models.Patient) bool {
		if p.EnrollmentStatus != models.EnrollmentActive {
			return false
		}
		return r.checkIns == nil || !r.checkIns.has(p.PatientID, day)
	}), nil
}

func (r *MemoryPatientsRepo) filter(keep func(p models.Patient) bool) []*models.Patient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Patient
	for _, p := range r.patients {
		if keep(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}

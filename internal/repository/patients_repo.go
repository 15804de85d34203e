package repository

import (
	"context"
	"time"

	"hanna-engine/internal/models"
)

// PatientsRepository patient profile and conversation state.
type PatientsRepository interface {
	GetPatient(ctx context.Context, patientID string) (*models.Patient, error)
	GetPatientByChannelUser(ctx context.Context, channelUserID string) (*models.Patient, error)
	UpdateCheckInState(ctx context.Context, patientID string, state models.CheckInState) error
	// MarkResponded sets last_response_date and resets consecutive_missed_days.
	MarkResponded(ctx context.Context, patientID string, at time.Time) error
	// ApplyCheckInStep atomically merges patch into the day's check-in row
	// (skipped when the patch is empty), moves the patient to state and marks
	// them responded at.
	ApplyCheckInStep(ctx context.Context, patientID string, day time.Time, patch models.CheckInPatch, state models.CheckInState, at time.Time) error
	UpdateMissedDays(ctx context.Context, patientID string, days int) error
	// ListSilentActive active patients whose last response is before cutoff or missing.
	ListSilentActive(ctx context.Context, cutoff time.Time) ([]*models.Patient, error)
	// ListActiveWithoutCheckIn active patients with no check-in row on day.
	ListActiveWithoutCheckIn(ctx context.Context, day time.Time) ([]*models.Patient, error)
}

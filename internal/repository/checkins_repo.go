package repository

import (
	"context"
	"time"

	"hanna-engine/internal/models"
)

// CheckInsRepository daily check-in rows.
type CheckInsRepository interface {
	// MergeCheckIn upserts the (patient, day) row; nil patch fields keep stored values.
	MergeCheckIn(ctx context.Context, patientID string, day time.Time, patch models.CheckInPatch) error
	// ListCheckInsSince rows with check_in_date >= since, most recent first.
	ListCheckInsSince(ctx context.Context, patientID string, since time.Time) ([]*models.CheckInRecord, error)
	// ListCheckInDates distinct check-in dates, most recent first.
	ListCheckInDates(ctx context.Context, patientID string, limit int) ([]time.Time, error)
}

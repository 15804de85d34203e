package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hanna-engine/internal/models"
)

// PostgresCheckInsRepository check_ins table.
type PostgresCheckInsRepository struct {
	db *sql.DB
}

// NewPostgresCheckInsRepository creates the check-ins repository.
func NewPostgresCheckInsRepository(db *sql.DB) *PostgresCheckInsRepository {
	return &PostgresCheckInsRepository{db: db}
}

var _ CheckInsRepository = (*PostgresCheckInsRepository)(nil)

// MergeCheckIn upserts the day's row; COALESCE keeps stored values for nil fields.
func (r *PostgresCheckInsRepository) MergeCheckIn(ctx context.Context, patientID string, day time.Time, patch models.CheckInPatch) error {
	return mergeCheckIn(ctx, r.db, patientID, day, patch)
}

func mergeCheckIn(ctx context.Context, q execer, patientID string, day time.Time, patch models.CheckInPatch) error {
	if patientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	query := `
		INSERT INTO check_ins (patient_id, check_in_date, mood, medication, symptoms, glucose, created_at, updated_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, now(), now())
		ON CONFLICT (patient_id, check_in_date) DO UPDATE SET
			mood       = COALESCE(EXCLUDED.mood, check_ins.mood),
			medication = COALESCE(EXCLUDED.medication, check_ins.medication),
			symptoms   = COALESCE(EXCLUDED.symptoms, check_ins.symptoms),
			glucose    = COALESCE(EXCLUDED.glucose, check_ins.glucose),
			updated_at = now()
	`

	var mood, medication, symptoms sql.NullString
	var glucose sql.NullFloat64
	if patch.Mood != nil {
		mood = sql.NullString{String: string(*patch.Mood), Valid: true}
	}
	if patch.Medication != nil {
		medication = sql.NullString{String: string(*patch.Medication), Valid: true}
	}
	if patch.Symptoms != nil {
		symptoms = sql.NullString{String: *patch.Symptoms, Valid: true}
	}
	if patch.Glucose != nil {
		glucose = sql.NullFloat64{Float64: *patch.Glucose, Valid: true}
	}

	if _, err := q.ExecContext(ctx, query, patientID, models.DateKey(day), mood, medication, symptoms, glucose); err != nil {
		return fmt.Errorf("failed to merge check-in: %w", err)
	}
	return nil
}

// ListCheckInsSince rows on or after since, most recent first.
func (r *PostgresCheckInsRepository) ListCheckInsSince(ctx context.Context, patientID string, since time.Time) ([]*models.CheckInRecord, error) {
	query := `
		SELECT patient_id, check_in_date, mood, medication, symptoms, glucose, created_at, updated_at
		FROM check_ins
		WHERE patient_id = $1 AND check_in_date >= $2::date
		ORDER BY check_in_date DESC
	`
	rows, err := r.db.QueryContext(ctx, query, patientID, models.DateKey(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	var out []*models.CheckInRecord
	for rows.Next() {
		var rec models.CheckInRecord
		var mood, medication, symptoms sql.NullString
		var glucose sql.NullFloat64
		if err := rows.Scan(
			&rec.PatientID,
			&rec.CheckInDate,
			&mood,
			&medication,
			&symptoms,
			&glucose,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		rec.CheckInDate = models.CivilDate(rec.CheckInDate, time.UTC)
		if mood.Valid {
			m := models.Mood(mood.String)
			rec.Mood = &m
		}
		if medication.Valid {
			m := models.MedicationStatus(medication.String)
			rec.Medication = &m
		}
		if symptoms.Valid {
			s := symptoms.String
			rec.Symptoms = &s
		}
		if glucose.Valid {
			g := glucose.Float64
			rec.Glucose = &g
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ListCheckInDates distinct dates, most recent first.
func (r *PostgresCheckInsRepository) ListCheckInDates(ctx context.Context, patientID string, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 400
	}
	query := `
		SELECT DISTINCT check_in_date
		FROM check_ins
		WHERE patient_id = $1
		ORDER BY check_in_date DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-in dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan check-in date: %w", err)
		}
		out = append(out, models.CivilDate(d, time.UTC))
	}
	return out, rows.Err()
}

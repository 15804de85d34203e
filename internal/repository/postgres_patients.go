package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hanna-engine/common/database"
	"hanna-engine/internal/models"
)

// PostgresPatientsRepository patients table.
type PostgresPatientsRepository struct {
	db *sql.DB
}

// NewPostgresPatientsRepository creates the patients repository.
func NewPostgresPatientsRepository(db *sql.DB) *PostgresPatientsRepository {
	return &PostgresPatientsRepository{db: db}
}

var _ PatientsRepository = (*PostgresPatientsRepository)(nil)

const patientColumns = `
	patient_id,
	channel_user_id,
	display_name,
	enrollment_status,
	current_checkin_state,
	last_response_date,
	consecutive_missed_days,
	age,
	condition,
	enrolled_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var p models.Patient
	var status string
	var state sql.NullString
	var lastResponse sql.NullTime

	if err := row.Scan(
		&p.PatientID,
		&p.ChannelUserID,
		&p.DisplayName,
		&status,
		&state,
		&lastResponse,
		&p.ConsecutiveMissedDays,
		&p.Age,
		&p.Condition,
		&p.EnrolledAt,
	); err != nil {
		return nil, err
	}

	p.EnrollmentStatus = models.EnrollmentStatus(status)
	cs, err := models.ParseCheckInState(state.String)
	if err != nil {
		return nil, err
	}
	p.CurrentCheckInState = cs
	if lastResponse.Valid {
		t := lastResponse.Time
		p.LastResponseDate = &t
	}
	return &p, nil
}

func (r *PostgresPatientsRepository) getOne(ctx context.Context, where string, arg string) (*models.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE ` + where
	p, err := scanPatient(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("patient %s: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// GetPatient by patient_id.
func (r *PostgresPatientsRepository) GetPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	return r.getOne(ctx, `patient_id = $1`, patientID)
}

// GetPatientByChannelUser by the chat channel user id.
func (r *PostgresPatientsRepository) GetPatientByChannelUser(ctx context.Context, channelUserID string) (*models.Patient, error) {
	if channelUserID == "" {
		return nil, fmt.Errorf("channel_user_id is required")
	}
	return r.getOne(ctx, `channel_user_id = $1`, channelUserID)
}

// stateValue maps StateNone to NULL.
func stateValue(state models.CheckInState) interface{} {
	if state == models.StateNone {
		return nil
	}
	return string(state)
}

// UpdateCheckInState stores NULL for StateNone.
func (r *PostgresPatientsRepository) UpdateCheckInState(ctx context.Context, patientID string, state models.CheckInState) error {
	return r.execOne(ctx, `UPDATE patients SET current_checkin_state = $2 WHERE patient_id = $1`, patientID, stateValue(state))
}

// MarkResponded records a patient response.
func (r *PostgresPatientsRepository) MarkResponded(ctx context.Context, patientID string, at time.Time) error {
	return r.execOne(ctx,
		`UPDATE patients SET last_response_date = $2, consecutive_missed_days = 0 WHERE patient_id = $1`,
		patientID, at)
}

// ApplyCheckInStep runs the patient update and the check-in upsert in one
// transaction. The patient row goes first so an unknown id fails with
// ErrNotFound before anything is inserted.
func (r *PostgresPatientsRepository) ApplyCheckInStep(ctx context.Context, patientID string, day time.Time, patch models.CheckInPatch, state models.CheckInState, at time.Time) error {
	if patientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := execOne(ctx, tx, `
			UPDATE patients
			SET current_checkin_state = $2, last_response_date = $3, consecutive_missed_days = 0
			WHERE patient_id = $1`,
			patientID, stateValue(state), at); err != nil {
			return err
		}
		if patch.IsEmpty() {
			return nil
		}
		return mergeCheckIn(ctx, tx, patientID, day, patch)
	})
}

// UpdateMissedDays stores the sweep's day counter.
func (r *PostgresPatientsRepository) UpdateMissedDays(ctx context.Context, patientID string, days int) error {
	return r.execOne(ctx,
		`UPDATE patients SET consecutive_missed_days = $2 WHERE patient_id = $1`,
		patientID, days)
}

func (r *PostgresPatientsRepository) execOne(ctx context.Context, query string, patientID string, args ...interface{}) error {
	return execOne(ctx, r.db, query, patientID, args...)
}

// execOne runs a single-patient update; zero affected rows is ErrNotFound.
func execOne(ctx context.Context, q execer, query string, patientID string, args ...interface{}) error {
	res, err := q.ExecContext(ctx, query, append([]interface{}{patientID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}
	return nil
}

// ListSilentActive active patients not heard from since cutoff.
func (r *PostgresPatientsRepository) ListSilentActive(ctx context.Context, cutoff time.Time) ([]*models.Patient, error) {
	query := `SELECT ` + patientColumns + `
		FROM patients
		WHERE enrollment_status = 'active'
		  AND (last_response_date IS NULL OR last_response_date < $1)
		ORDER BY patient_id`
	return r.list(ctx, query, cutoff)
}

// ListActiveWithoutCheckIn active patients with no check-in row for day.
func (r *PostgresPatientsRepository) ListActiveWithoutCheckIn(ctx context.Context, day time.Time) ([]*models.Patient, error) {
	query := `SELECT ` + patientColumns + `
		FROM patients p
		WHERE p.enrollment_status = 'active'
		  AND NOT EXISTS (
			SELECT 1 FROM check_ins c
			WHERE c.patient_id = p.patient_id AND c.check_in_date = $1::date
		  )
		ORDER BY p.patient_id`
	return r.list(ctx, query, models.DateKey(day))
}

func (r *PostgresPatientsRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Patient, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var out []*models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

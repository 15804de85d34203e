package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hanna-engine/internal/models"
)

func TestUpsertSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRiskSnapshotsRepository(db)

	now := time.Now()
	mock.ExpectExec(`INSERT INTO risk_snapshots .* ON CONFLICT \(patient_id\)`).
		WithArgs("p1", 7, "high", sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpsertSnapshot(context.Background(), &models.RiskSnapshot{
		PatientID: "p1",
		Score:     7,
		Level:     models.RiskHigh,
		Reasons:   []string{"low adherence"},
		UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSnapshot_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRiskSnapshotsRepository(db)

	rows := sqlmock.NewRows([]string{"patient_id", "score", "level", "reasons", "positive_signals", "updated_at"}).
		AddRow("p1", 9, "critical", `{"emergency keyword: chest pain"}`, `{}`, time.Now())
	mock.ExpectQuery(`FROM risk_snapshots`).WithArgs("p1").WillReturnRows(rows)

	s, err := repo.GetSnapshot(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 9, s.Score)
	assert.Equal(t, models.RiskCritical, s.Level)
	assert.Equal(t, []string{"emergency keyword: chest pain"}, s.Reasons)
	assert.Empty(t, s.PositiveSignals)
}

func TestGetSnapshot_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRiskSnapshotsRepository(db)

	mock.ExpectQuery(`FROM risk_snapshots`).WithArgs("p1").WillReturnError(sql.ErrNoRows)

	_, err = repo.GetSnapshot(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

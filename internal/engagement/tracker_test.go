package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hanna-engine/internal/dispatcher"
	"hanna-engine/internal/models"
	"hanna-engine/internal/repository"
)

type sentMessage struct {
	patientID, userID, text string
}

type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) Send(_ context.Context, patientID, userID string, msg *models.Message) error {
	f.sent = append(f.sent, sentMessage{patientID, userID, msg.Text})
	return nil
}

type fakeRecurring struct {
	calls []string
}

func (f *fakeRecurring) DispatchRecurringSymptom(_ context.Context, patientID, symptom string, days int) (*dispatcher.Result, error) {
	f.calls = append(f.calls, patientID+":"+symptom)
	return &dispatcher.Result{Outcome: dispatcher.OutcomeCreated}, nil
}

type trackerFixture struct {
	tracker   *Tracker
	checkIns  *repository.MemoryCheckInsRepo
	audit     *repository.MemoryAuditRepo
	messenger *fakeMessenger
	recurring *fakeRecurring
	now       time.Time
}

func setupTracker(t *testing.T) *trackerFixture {
	checkIns := repository.NewMemoryCheckInsRepo()
	patients := repository.NewMemoryPatientsRepo(checkIns)
	patients.Put(models.Patient{PatientID: "p1", ChannelUserID: "U1", EnrollmentStatus: models.EnrollmentActive})
	audit := repository.NewMemoryAuditRepo()

	f := &trackerFixture{
		checkIns:  checkIns,
		audit:     audit,
		messenger: &fakeMessenger{},
		recurring: &fakeRecurring{},
		now:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.tracker = NewTracker(patients, checkIns, audit, f.messenger, f.recurring, time.UTC, zap.NewNop())
	f.tracker.now = func() time.Time { return f.now }
	return f
}

func (f *trackerFixture) checkIn(t *testing.T, daysAgo int, symptoms string) {
	patch := models.CheckInPatch{}
	if symptoms != "" {
		patch.Symptoms = &symptoms
	} else {
		mood := models.MoodGood
		patch.Mood = &mood
	}
	d := models.CivilDate(f.now, time.UTC).AddDate(0, 0, -daysAgo)
	require.NoError(t, f.checkIns.MergeCheckIn(context.Background(), "p1", d, patch))
}

func TestCalculateStreak(t *testing.T) {
	f := setupTracker(t)
	for i := 0; i < 3; i++ {
		f.checkIn(t, i, "")
	}
	streak, err := f.tracker.CalculateStreak(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, streak)
}

func TestCheckAndCelebrate_OncePerMilestonePerDay(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		f.checkIn(t, i, "")
	}

	fired, err := f.tracker.CheckAndCelebrate(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = f.tracker.CheckAndCelebrate(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, fired)

	require.Len(t, f.messenger.sent, 1)
	assert.Equal(t, "U1", f.messenger.sent[0].userID)
	assert.Equal(t, Milestones[7], f.messenger.sent[0].text)
	assert.Equal(t, 1, f.audit.Count(models.ActionStreakCelebration, "p1"))
}

func TestCheckAndCelebrate_NotAMilestone(t *testing.T) {
	f := setupTracker(t)
	for i := 0; i < 5; i++ {
		f.checkIn(t, i, "")
	}
	fired, err := f.tracker.CheckAndCelebrate(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Empty(t, f.messenger.sent)
}

func TestTrackRecurringSymptom_ThreeDaysDispatches(t *testing.T) {
	f := setupTracker(t)
	f.checkIn(t, 2, "Fever and chills")
	f.checkIn(t, 1, "fever")
	f.checkIn(t, 0, "fever")

	count, err := f.tracker.TrackRecurringSymptom(context.Background(), "p1", "fever")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"p1:fever"}, f.recurring.calls)
}

func TestTrackRecurringSymptom_GapStopsCount(t *testing.T) {
	f := setupTracker(t)
	f.checkIn(t, 2, "fever")
	f.checkIn(t, 1, "headache")
	f.checkIn(t, 0, "fever")

	count, err := f.tracker.TrackRecurringSymptom(context.Background(), "p1", "fever")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, f.recurring.calls)
}

func TestTrackRecurringSymptom_MissingDayStopsCount(t *testing.T) {
	f := setupTracker(t)
	f.checkIn(t, 2, "fever")
	f.checkIn(t, 0, "fever")

	count, err := f.tracker.TrackRecurringSymptom(context.Background(), "p1", "fever")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

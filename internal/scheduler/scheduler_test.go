package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hanna-engine/internal/models"
	"hanna-engine/internal/repository"
	"hanna-engine/internal/store"
)

var bangkok = time.FixedZone("ICT", 7*3600)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"08:00", Clock{8, 0}, false},
		{" 19:30 ", Clock{19, 30}, false},
		{"23:59", Clock{23, 59}, false},
		{"24:00", Clock{}, true},
		{"10:60", Clock{}, true},
		{"10", Clock{}, true},
		{"ab:cd", Clock{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func countingJob(name string, at Clock, n *int) Job {
	return Job{Name: name, At: at, Run: func(context.Context) error { *n++; return nil }}
}

func TestRunDue_OncePerDay(t *testing.T) {
	kv := store.NewMemoryKV()
	var sweeps, evenings int
	s := NewScheduler(kv, bangkok, "node-a", zap.NewNop(),
		countingJob("sweep", Clock{10, 0}, &sweeps),
		countingJob("evening", Clock{19, 0}, &evenings),
	)

	s.now = func() time.Time { return time.Date(2026, 3, 2, 9, 59, 0, 0, bangkok) }
	assert.Empty(t, s.RunDue(context.Background()))

	s.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, bangkok) }
	assert.Equal(t, []string{"sweep"}, s.RunDue(context.Background()))
	assert.Empty(t, s.RunDue(context.Background()))

	s.now = func() time.Time { return time.Date(2026, 3, 2, 20, 0, 0, 0, bangkok) }
	assert.Equal(t, []string{"evening"}, s.RunDue(context.Background()))

	s.now = func() time.Time { return time.Date(2026, 3, 3, 10, 5, 0, 0, bangkok) }
	assert.Equal(t, []string{"sweep"}, s.RunDue(context.Background()))

	assert.Equal(t, 2, sweeps)
	assert.Equal(t, 1, evenings)
}

func TestRunDue_SharedLeaseAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kv := store.NewRedisKV(rdb)

	now := func() time.Time { return time.Date(2026, 3, 2, 10, 1, 0, 0, bangkok) }
	var runs int
	a := NewScheduler(kv, bangkok, "node-a", zap.NewNop(), countingJob("sweep", Clock{10, 0}, &runs))
	b := NewScheduler(kv, bangkok, "node-b", zap.NewNop(), countingJob("sweep", Clock{10, 0}, &runs))
	a.now, b.now = now, now

	assert.Equal(t, []string{"sweep"}, a.RunDue(context.Background()))
	assert.Empty(t, b.RunDue(context.Background()))
	assert.Equal(t, 1, runs)

	owner, err := rdb.Get(context.Background(), "hanna:job:sweep:2026-03-02").Result()
	require.NoError(t, err)
	assert.Equal(t, "node-a", owner)
	assert.True(t, mr.TTL("hanna:job:sweep:2026-03-02") > 24*time.Hour)
}

func TestRunDue_FailedJobIsRetried(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	panics, fails := 0, 0
	s := NewScheduler(store.NewRedisKV(rdb), bangkok, "node-a", zap.NewNop(),
		Job{Name: "boom", At: Clock{0, 0}, Run: func(context.Context) error {
			panics++
			if panics == 1 {
				panic("nil map")
			}
			return nil
		}},
		Job{Name: "err", At: Clock{0, 0}, Run: func(context.Context) error {
			fails++
			return errors.New("db down")
		}},
	)
	s.now = func() time.Time { return time.Date(2026, 3, 2, 1, 0, 0, 0, bangkok) }
	ctx := context.Background()

	assert.Equal(t, []string{"boom", "err"}, s.RunDue(ctx))
	assert.True(t, mr.TTL("hanna:job:err:2026-03-02") <= retryAfter)

	// the next poll inside the retry window does nothing
	assert.Empty(t, s.RunDue(ctx))

	mr.FastForward(retryAfter + time.Second)
	assert.Equal(t, []string{"boom", "err"}, s.RunDue(ctx))
	assert.Equal(t, 2, panics)
	assert.Equal(t, 2, fails)

	// boom succeeded on retry and now holds the full-day lease
	assert.True(t, mr.TTL("hanna:job:boom:2026-03-02") > 24*time.Hour)
	mr.FastForward(retryAfter + time.Second)
	assert.Equal(t, []string{"err"}, s.RunDue(ctx))
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := NewScheduler(store.NewMemoryKV(), bangkok, "node-a", zap.NewNop())
	s.interval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type fakeStarter struct{ started []string }

func (f *fakeStarter) Start(_ context.Context, patientID, _ string) (*models.Message, error) {
	if patientID == "p-broken" {
		return nil, errors.New("push failed")
	}
	f.started = append(f.started, patientID)
	return models.TextMessage("hi"), nil
}

type fakeMessenger struct{ sent map[string]string }

func (f *fakeMessenger) Send(_ context.Context, patientID, _ string, msg *models.Message) error {
	f.sent[patientID] = msg.Text
	return nil
}

func seedPatients(t *testing.T) *repository.MemoryPatientsRepo {
	t.Helper()
	checkIns := repository.NewMemoryCheckInsRepo()
	patients := repository.NewMemoryPatientsRepo(checkIns)
	patients.Put(models.Patient{PatientID: "p-1", ChannelUserID: "U1", DisplayName: "Somchai", EnrollmentStatus: models.EnrollmentActive})
	patients.Put(models.Patient{PatientID: "p-2", ChannelUserID: "U2", DisplayName: "Malee", EnrollmentStatus: models.EnrollmentActive})
	patients.Put(models.Patient{PatientID: "p-3", ChannelUserID: "U3", EnrollmentStatus: models.EnrollmentExpired})
	patients.Put(models.Patient{PatientID: "p-broken", ChannelUserID: "U4", EnrollmentStatus: models.EnrollmentActive})

	good := models.MoodGood
	today := models.CivilDate(time.Now(), bangkok)
	require.NoError(t, checkIns.MergeCheckIn(context.Background(), "p-2", today, models.CheckInPatch{Mood: &good}))
	return patients
}

func TestMorningCheckInJob(t *testing.T) {
	patients := seedPatients(t)
	starter := &fakeStarter{}

	job := MorningCheckInJob(Clock{8, 0}, patients, starter, bangkok, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, JobMorningCheckIn, job.Name)
	assert.Equal(t, []string{"p-1"}, starter.started)
}

func TestEveningReminderJob(t *testing.T) {
	patients := seedPatients(t)
	messenger := &fakeMessenger{sent: map[string]string{}}

	job := EveningReminderJob(Clock{19, 0}, patients, messenger, bangkok, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, messenger.sent, 2)
	assert.Contains(t, messenger.sent["p-1"], "Somchai")
	assert.Contains(t, messenger.sent["p-broken"], "Hi there")
}

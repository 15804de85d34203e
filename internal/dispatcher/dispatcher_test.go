package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hanna-engine/internal/models"
	"hanna-engine/internal/repository"
)

type recordingSupervisor struct {
	mu     sync.Mutex
	alerts []string
}

func (r *recordingSupervisor) Alert(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, text)
}

func setupDispatcher(t *testing.T) (*Dispatcher, *repository.MemoryTasksRepo, *repository.MemoryAuditRepo, *recordingSupervisor) {
	audit := repository.NewMemoryAuditRepo()
	tasks := repository.NewMemoryTasksRepo(audit)
	sup := &recordingSupervisor{}
	d := NewDispatcher(tasks, sup, 15, 4*time.Hour, zap.NewNop())
	return d, tasks, audit, sup
}

func risk(level models.RiskLevel, reasons ...string) *models.RiskResult {
	score := map[models.RiskLevel]int{models.RiskLow: 2, models.RiskHigh: 6, models.RiskCritical: 10}[level]
	return &models.RiskResult{Score: score, Level: level, Reasons: reasons}
}

func pending(t *testing.T, tasks *repository.MemoryTasksRepo) []*models.Task {
	out, err := tasks.ListTasks(context.Background(), repository.TaskFilters{Status: models.TaskPending})
	require.NoError(t, err)
	return out
}

func TestDispatch_LowIsSkipped(t *testing.T) {
	d, tasks, _, _ := setupDispatcher(t)

	res, err := d.Dispatch(context.Background(), "p1", risk(models.RiskLow))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, pending(t, tasks))
}

func TestDispatch_CreatesTaskByLevel(t *testing.T) {
	d, tasks, audit, _ := setupDispatcher(t)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "p1", risk(models.RiskHigh, "low medication adherence", "elevated glucose"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, models.TaskTypeRiskReview, res.Task.Type)
	assert.Equal(t, models.PriorityHigh, res.Task.Priority)
	assert.Equal(t, "low medication adherence, elevated glucose", res.Task.Reason)

	res, err = d.Dispatch(ctx, "p2", risk(models.RiskCritical, "SOS trigger: chest pain"))
	require.NoError(t, err)
	assert.Equal(t, models.TaskTypeEmergencyAlert, res.Task.Type)
	assert.Equal(t, models.PriorityCritical, res.Task.Priority)

	assert.Len(t, pending(t, tasks), 2)
	assert.Equal(t, 2, audit.Count(models.ActionTaskCreated, ""))
}

func TestDispatch_CapSuppressesSixteenth(t *testing.T) {
	d, tasks, audit, sup := setupDispatcher(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, tasks.CreateTask(ctx, &models.Task{
			PatientID: fmt.Sprintf("seed-%d", i),
			Type:      models.TaskTypeEmergencyAlert,
			Priority:  models.PriorityCritical,
		}))
	}

	res, err := d.Dispatch(ctx, "p16", risk(models.RiskCritical, "SOS trigger: faint"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressedCap, res.Outcome)
	assert.Nil(t, res.Task)

	assert.Len(t, pending(t, tasks), 15)
	assert.Equal(t, 1, audit.Count(models.ActionTaskSuppressedCap, "p16"))
	assert.Len(t, sup.alerts, 1)
}

func TestDispatch_DedupWithinWindow(t *testing.T) {
	d, tasks, audit, _ := setupDispatcher(t)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "p1", risk(models.RiskHigh, "a"))
	require.NoError(t, err)
	res, err := d.Dispatch(ctx, "p1", risk(models.RiskHigh, "b"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuppressedDedup, res.Outcome)
	assert.Len(t, pending(t, tasks), 1)
	assert.Equal(t, 1, audit.Count(models.ActionTaskSuppressedDedup, "p1"))
}

func TestDispatch_EscalationOverridesDedup(t *testing.T) {
	d, tasks, _, _ := setupDispatcher(t)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "p1", risk(models.RiskHigh, "a"))
	require.NoError(t, err)
	res, err := d.Dispatch(ctx, "p1", risk(models.RiskCritical, "SOS trigger: breathing"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)

	res, err = d.Dispatch(ctx, "p1", risk(models.RiskCritical, "SOS trigger: breathing"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressedDedup, res.Outcome)

	assert.Len(t, pending(t, tasks), 2)
}

func TestDispatch_WindowExpiry(t *testing.T) {
	d, tasks, _, _ := setupDispatcher(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	first, err := d.Dispatch(ctx, "p1", risk(models.RiskHigh, "a"))
	require.NoError(t, err)
	_, err = tasks.CompleteTask(ctx, first.Task.TaskID, "nurse", now.Add(time.Hour))
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	res, err := d.Dispatch(ctx, "p1", risk(models.RiskHigh, "b"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressedDedup, res.Outcome)

	now = now.Add(2 * time.Hour)
	res, err = d.Dispatch(ctx, "p1", risk(models.RiskHigh, "c"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
}

func TestDispatch_ConcurrentCriticalNeverExceedsCap(t *testing.T) {
	d, tasks, audit, _ := setupDispatcher(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Dispatch(ctx, fmt.Sprintf("p%d", i), risk(models.RiskCritical, "SOS trigger: chest pain"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, pending(t, tasks), 15)
	assert.Equal(t, 25, audit.Count(models.ActionTaskSuppressedCap, ""))
}

func TestDispatchRecurringSymptom_Idempotent(t *testing.T) {
	d, tasks, audit, _ := setupDispatcher(t)
	ctx := context.Background()

	res, err := d.DispatchRecurringSymptom(ctx, "p1", "fever", 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, models.PriorityCritical, res.Task.Priority)
	assert.Contains(t, res.Task.Reason, "fever")

	res, err = d.DispatchRecurringSymptom(ctx, "p1", "fever", 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressedDuplicate, res.Outcome)

	assert.Len(t, pending(t, tasks), 1)
	assert.Equal(t, 1, audit.Count(models.ActionTaskSuppressedDedup, "p1"))
}

func TestDispatchRecurringSymptom_RespectsCap(t *testing.T) {
	d, tasks, audit, _ := setupDispatcher(t)
	ctx := context.Background()
	d.criticalCap = 1

	require.NoError(t, tasks.CreateTask(ctx, &models.Task{PatientID: "x", Priority: models.PriorityCritical}))

	res, err := d.DispatchRecurringSymptom(ctx, "p1", "cough", 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressedCap, res.Outcome)
	assert.Equal(t, 1, audit.Count(models.ActionTaskSuppressedCap, "p1"))
}

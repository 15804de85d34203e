package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"hanna-engine/internal/checkin"
	"hanna-engine/internal/evaluator"
	"hanna-engine/internal/models"
	"hanna-engine/internal/monitor"
	"hanna-engine/internal/repository"
)

type fakeRisk struct{ triggers []models.Trigger }

func (f *fakeRisk) Analyze(_ context.Context, patientID string, trigger models.Trigger) (*models.RiskResult, error) {
	if patientID == "missing" {
		return nil, repository.ErrNotFound
	}
	f.triggers = append(f.triggers, trigger)
	res := &models.RiskResult{Score: 7, Level: models.RiskHigh}
	if trigger != nil {
		res.Reasons = []string{"trigger: " + trigger.String()}
	}
	return res, nil
}

type fakeFlow struct {
	inputs  []string
	glucose []float64
}

func (f *fakeFlow) RecordGlucose(_ context.Context, patientID string, value float64) error {
	if patientID == "missing" {
		return repository.ErrNotFound
	}
	if value < checkin.MinGlucose || value > checkin.MaxGlucose {
		return checkin.ErrGlucoseOutOfRange
	}
	f.glucose = append(f.glucose, value)
	return nil
}

func (f *fakeFlow) Start(_ context.Context, _, name string) (*models.Message, error) {
	return models.TextMessage("Good morning, " + name), nil
}

func (f *fakeFlow) HandleInput(_ context.Context, _ string, state models.CheckInState, action, value string) checkin.Reply {
	f.inputs = append(f.inputs, string(state)+"/"+action+"/"+value)
	return checkin.Reply{Message: models.TextMessage("next"), State: models.StateMedication, Handled: true}
}

type fakeStreaks struct{}

func (fakeStreaks) CalculateStreak(context.Context, string) (int, error) { return 9, nil }

type fakeOutreach struct{ help []string }

func (f *fakeOutreach) RunSweep(context.Context) (*monitor.SweepReport, error) {
	return &monitor.SweepReport{Checked: 3, Sent: 2, ByStage: map[int]int{3: 2}}, nil
}

func (f *fakeOutreach) RequestHelp(_ context.Context, _ string, action string) (*models.Message, error) {
	f.help = append(f.help, action)
	return models.TextMessage("ok"), nil
}

type fakeHistory struct{}

func (fakeHistory) History(_ context.Context, _ string, n int) ([]models.LoggedMessage, error) {
	out := []models.LoggedMessage{
		{Direction: models.DirectionOutbound, Text: "hello"},
		{Direction: models.DirectionInbound, Text: "bad"},
	}
	if n < len(out) {
		out = out[:n]
	}
	return out, nil
}

type apiFixture struct {
	router    *Router
	risk      *fakeRisk
	flow      *fakeFlow
	outreach  *fakeOutreach
	snapshots *repository.MemoryRiskSnapshotsRepo
	tasks     *repository.MemoryTasksRepo
	audit     *repository.MemoryAuditRepo
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		risk:      &fakeRisk{},
		flow:      &fakeFlow{},
		outreach:  &fakeOutreach{},
		snapshots: repository.NewMemoryRiskSnapshotsRepo(),
		audit:     repository.NewMemoryAuditRepo(),
	}
	f.tasks = repository.NewMemoryTasksRepo(f.audit)
	h := NewEngineHandler(f.risk, f.flow, fakeStreaks{}, f.outreach, fakeHistory{}, f.snapshots, f.tasks, f.audit, zap.NewNop())
	h.now = func() time.Time { return time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC) }
	f.router = NewRouter(zap.NewNop())
	f.router.RegisterEngineRoutes(h)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var res Result[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func TestHealth(t *testing.T) {
	f := setupAPI(t)
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":2000`)
}

func TestAnalyze(t *testing.T) {
	f := setupAPI(t)

	w := f.do(t, http.MethodPost, "/api/v1/patients/p-1/analyze", `{"trigger":"symptom:fever"}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.RiskResult](t, w)
	assert.Equal(t, 7, res.Result.Score)
	assert.Equal(t, []models.Trigger{models.Symptom{Name: "fever"}}, f.risk.triggers)

	w = f.do(t, http.MethodPost, "/api/v1/patients/missing/analyze", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":-1`)

	w = f.do(t, http.MethodPost, "/api/v1/patients/p-1/analyze", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/patients/p-1/analyze", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGetRisk(t *testing.T) {
	f := setupAPI(t)

	w := f.do(t, http.MethodGet, "/api/v1/patients/p-1/risk", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, f.snapshots.UpsertSnapshot(context.Background(), &models.RiskSnapshot{
		PatientID: "p-1", Score: 4, Level: models.RiskLow, Reasons: []string{"adherence 40%"},
	}))
	w = f.do(t, http.MethodGet, "/api/v1/patients/p-1/risk", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decode[models.RiskSnapshot](t, w).Result.Score)
}

func TestCheckInEndpoints(t *testing.T) {
	f := setupAPI(t)

	w := f.do(t, http.MethodPost, "/api/v1/patients/p-1/checkin/start", `{"display_name":"Somchai"}`)
	require.Equal(t, http.StatusOK, w.Code)
	start := decode[checkin.Reply](t, w)
	assert.Equal(t, models.StateGreeting, start.Result.State)
	assert.Contains(t, start.Result.Message.Text, "Somchai")

	w = f.do(t, http.MethodPost, "/api/v1/patients/p-1/checkin/input", `{"state":"greeting","action":"mood","value":"bad"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[checkin.Reply](t, w).Result.Handled)

	data := checkin.Postback(models.StateMedication, checkin.ActionMedication, "forgot")
	body, _ := json.Marshal(map[string]string{"data": data})
	w = f.do(t, http.MethodPost, "/api/v1/patients/p-1/checkin/input", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"greeting/mood/bad", "medication/medication/forgot"}, f.flow.inputs)

	w = f.do(t, http.MethodPost, "/api/v1/patients/p-1/checkin/input", `{"state":"none","action":"escalate_nurse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{monitor.ActionEscalateNurse}, f.outreach.help)

	w = f.do(t, http.MethodPost, "/api/v1/patients/p-1/checkin/input", `{"state":"lunch","action":"mood"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreakMessagesAndSweep(t *testing.T) {
	f := setupAPI(t)

	w := f.do(t, http.MethodGet, "/api/v1/patients/p-1/streak", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"streak_days":9`)

	w = f.do(t, http.MethodGet, "/api/v1/patients/p-1/messages?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.LoggedMessage](t, w).Result, 1)

	w = f.do(t, http.MethodPost, "/api/v1/sweeps/non-responder", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[monitor.SweepReport](t, w).Result.Sent)
}

func TestTasks_ListCompleteAndAudit(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()
	require.NoError(t, f.tasks.CreateTask(ctx, &models.Task{PatientID: "p-1", Type: models.TaskTypeRiskReview, Priority: models.PriorityHigh, Reason: "glucose 190"}))
	require.NoError(t, f.tasks.CreateTask(ctx, &models.Task{PatientID: "p-2", Type: models.TaskTypeEmergencyAlert, Priority: models.PriorityCritical, Reason: "SOS trigger: chest pain"}))

	w := f.do(t, http.MethodGet, "/api/v1/tasks?status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode[[]models.Task](t, w).Result
	require.Len(t, tasks, 2)
	assert.Equal(t, models.PriorityCritical, tasks[0].Priority)

	w = f.do(t, http.MethodGet, "/api/v1/tasks?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/tasks/"+tasks[1].TaskID+"/complete", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/tasks/"+tasks[1].TaskID+"/complete", `{"completed_by":"nurse-ann"}`)
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[models.Task](t, w).Result
	assert.Equal(t, models.TaskCompleted, done.Status)
	require.NotNil(t, done.CompletedBy)
	assert.Equal(t, "nurse-ann", *done.CompletedBy)

	w = f.do(t, http.MethodPut, "/api/v1/tasks/"+tasks[1].TaskID+"/complete", `{"completed_by":"nurse-ann"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/patients/p-1/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]models.AuditEntry](t, w).Result
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionTaskCompleted, entries[0].Action)
	assert.Equal(t, "nurse-ann", entries[0].Actor)
}

func TestExportTasks(t *testing.T) {
	f := setupAPI(t)
	require.NoError(t, f.tasks.CreateTask(context.Background(), &models.Task{
		PatientID: "p-1", Type: models.TaskTypeNonResponder, Priority: models.PriorityHigh, Reason: "silent 9 days",
	}))

	w := f.do(t, http.MethodGet, "/api/v1/tasks/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "tasks-export.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(taskSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, TaskExportHeader, rows[0])
	assert.Equal(t, "p-1", rows[1][1])
	assert.Equal(t, "non_responder", rows[1][2])
	assert.Equal(t, "silent 9 days", rows[1][4])
}

func TestRecordGlucose(t *testing.T) {
	f := setupAPI(t)

	w := f.do(t, http.MethodPost, "/api/v1/patients/p-1/glucose", `{"value": 432}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 7, decode[models.RiskResult](t, w).Result.Score)
	assert.Equal(t, []float64{432}, f.flow.glucose)
	assert.Equal(t, []models.Trigger{nil}, f.risk.triggers)

	for _, body := range []string{`{}`, `{"value": "high"}`, `{"value": 5}`} {
		w = f.do(t, http.MethodPost, "/api/v1/patients/p-1/glucose", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w = f.do(t, http.MethodPost, "/api/v1/patients/missing/glucose", `{"value": 120}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, f.risk.triggers, 1)
}

func TestRecordGlucose_HighReadingRaisesScore(t *testing.T) {
	checkIns := repository.NewMemoryCheckInsRepo()
	patients := repository.NewMemoryPatientsRepo(checkIns)
	patients.Put(models.Patient{PatientID: "p-1", ChannelUserID: "U1", EnrollmentStatus: models.EnrollmentActive, Age: 60})
	snapshots := repository.NewMemoryRiskSnapshotsRepo()
	audit := repository.NewMemoryAuditRepo()
	tasks := repository.NewMemoryTasksRepo(audit)

	eval := evaluator.NewEvaluator(patients, checkIns, snapshots, audit, nil, time.UTC, zap.NewNop())
	flow := checkin.NewFlow(patients, checkIns, audit, eval, nil, nil, time.UTC, zap.NewNop())
	h := NewEngineHandler(eval, flow, fakeStreaks{}, &fakeOutreach{}, fakeHistory{}, snapshots, tasks, audit, zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterEngineRoutes(h)
	post := func(path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return w
	}

	w := post("/api/v1/patients/p-1/analyze", `{}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	before := decode[models.RiskResult](t, w).Result

	w = post("/api/v1/patients/p-1/glucose", `{"value": 452}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	after := decode[models.RiskResult](t, w).Result

	assert.Greater(t, after.Score, before.Score)
	assert.Contains(t, strings.Join(after.Reasons, ";"), "glucose out of safe range")

	snap, err := snapshots.GetSnapshot(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, after.Score, snap.Score)
}

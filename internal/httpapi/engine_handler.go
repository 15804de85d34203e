package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/checkin"
	"hanna-engine/internal/models"
	"hanna-engine/internal/monitor"
	"hanna-engine/internal/repository"
)

type RiskAnalyzer interface {
	Analyze(ctx context.Context, patientID string, trigger models.Trigger) (*models.RiskResult, error)
}

type CheckInFlow interface {
	Start(ctx context.Context, patientID, displayName string) (*models.Message, error)
	HandleInput(ctx context.Context, patientID string, currentState models.CheckInState, action, value string) checkin.Reply
	RecordGlucose(ctx context.Context, patientID string, value float64) error
}

type StreakCalculator interface {
	CalculateStreak(ctx context.Context, patientID string) (int, error)
}

type Outreach interface {
	RunSweep(ctx context.Context) (*monitor.SweepReport, error)
	RequestHelp(ctx context.Context, patientID, action string) (*models.Message, error)
}

type MessageHistory interface {
	History(ctx context.Context, patientID string, n int) ([]models.LoggedMessage, error)
}

// EngineHandler operator and integration endpoints.
type EngineHandler struct {
	risk      RiskAnalyzer
	flow      CheckInFlow
	streaks   StreakCalculator
	outreach  Outreach
	history   MessageHistory
	snapshots repository.RiskSnapshotsRepository
	tasks     repository.TasksRepository
	audit     repository.AuditRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngineHandler(
	risk RiskAnalyzer,
	flow CheckInFlow,
	streaks StreakCalculator,
	outreach Outreach,
	history MessageHistory,
	snapshots repository.RiskSnapshotsRepository,
	tasks repository.TasksRepository,
	audit repository.AuditRepository,
	logger *zap.Logger,
) *EngineHandler {
	return &EngineHandler{
		risk:      risk,
		flow:      flow,
		streaks:   streaks,
		outreach:  outreach,
		history:   history,
		snapshots: snapshots,
		tasks:     tasks,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *EngineHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

// Analyze body {"trigger": "symptom:fever"}; an empty trigger runs the plain weekly model.
func (h *EngineHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	var body struct {
		Trigger string `json:"trigger"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	res, err := h.risk.Analyze(r.Context(), patientID, models.ParseTrigger(body.Trigger))
	if err != nil {
		h.logger.Error("analyze failed", zap.String("patient_id", patientID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func (h *EngineHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.GetSnapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}

func (h *EngineHandler) StartCheckIn(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	msg, err := h.flow.Start(r.Context(), patientID, body.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(checkin.Reply{Message: msg, State: models.StateGreeting, Handled: true}))
}

// CheckInInput accepts either {"state","action","value"} or the raw postback
// {"data": "action=..&state=..&value=.."}. Outreach actions go to the monitor.
func (h *EngineHandler) CheckInInput(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	var body struct {
		State  string `json:"state"`
		Action string `json:"action"`
		Value  string `json:"value"`
		Data   string `json:"data"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	var (
		state  models.CheckInState
		action = strings.TrimSpace(body.Action)
		value  = body.Value
		err    error
	)
	if body.Data != "" {
		state, action, value, err = checkin.ParsePostback(body.Data)
	} else {
		state, err = models.ParseCheckInState(body.State)
	}
	if err != nil || action == "" {
		writeJSON(w, http.StatusBadRequest, Fail("invalid check-in input"))
		return
	}

	switch action {
	case monitor.ActionImOkay, monitor.ActionRequestHelp, monitor.ActionEscalateNurse:
		msg, err := h.outreach.RequestHelp(r.Context(), patientID, action)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(checkin.Reply{Message: msg, State: models.StateNone, Handled: true}))
		return
	}

	writeJSON(w, http.StatusOK, Ok(h.flow.HandleInput(r.Context(), patientID, state, action, value)))
}

// RecordGlucose body {"value": 132}. The reading is merged into today's
// check-in and the patient is re-scored; the response is the new risk.
func (h *EngineHandler) RecordGlucose(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil || body.Value == nil {
		writeJSON(w, http.StatusBadRequest, Fail("value is required"))
		return
	}

	if err := h.flow.RecordGlucose(r.Context(), patientID, *body.Value); err != nil {
		if errors.Is(err, checkin.ErrGlucoseOutOfRange) {
			writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
			return
		}
		writeError(w, err)
		return
	}

	res, err := h.risk.Analyze(r.Context(), patientID, nil)
	if err != nil {
		h.logger.Error("analyze after glucose failed", zap.String("patient_id", patientID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func (h *EngineHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	days, err := h.streaks.CalculateStreak(r.Context(), patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"patient_id": patientID, "streak_days": days}))
}

func (h *EngineHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 20)
	msgs, err := h.history.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.LoggedMessage{}
	}
	writeJSON(w, http.StatusOK, Ok(msgs))
}

func (h *EngineHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	entries, err := h.audit.ListAudit(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, Ok(entries))
}

func (h *EngineHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.outreach.RunSweep(r.Context())
	if err != nil {
		h.logger.Error("manual sweep failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(report))
}

func (h *EngineHandler) taskFilters(r *http.Request) (repository.TaskFilters, bool) {
	q := r.URL.Query()
	f := repository.TaskFilters{
		PatientID: q.Get("patient_id"),
		Limit:     parseInt(q.Get("limit"), 0),
	}
	switch s := models.TaskStatus(q.Get("status")); s {
	case "", models.TaskPending, models.TaskCompleted:
		f.Status = s
	default:
		return f, false
	}
	return f, true
}

func (h *EngineHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.taskFilters(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Fail("status must be pending or completed"))
		return
	}
	tasks, err := h.tasks.ListTasks(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, Ok(tasks))
}

func (h *EngineHandler) ExportTasks(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.taskFilters(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Fail("status must be pending or completed"))
		return
	}
	tasks, err := h.tasks.ListTasks(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := GenerateTaskExport(tasks)
	if err != nil {
		h.logger.Error("task export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=tasks-export.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// CompleteTask body {"completed_by": "<responder>"}.
func (h *EngineHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompletedBy string `json:"completed_by"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil || strings.TrimSpace(body.CompletedBy) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("completed_by is required"))
		return
	}
	task, err := h.tasks.CompleteTask(r.Context(), r.PathValue("id"), strings.TrimSpace(body.CompletedBy), h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(task))
}

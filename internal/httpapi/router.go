package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Router stdlib http.ServeMux with method patterns.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(sw, req)
	r.logger.Debug("http request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", sw.status),
		zap.Duration("duration", time.Since(start)),
	)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (r *Router) RegisterEngineRoutes(h *EngineHandler) {
	r.Handle("GET /healthz", h.Health)

	r.Handle("POST /api/v1/patients/{id}/analyze", h.Analyze)
	r.Handle("GET /api/v1/patients/{id}/risk", h.GetRisk)
	r.Handle("POST /api/v1/patients/{id}/checkin/start", h.StartCheckIn)
	r.Handle("POST /api/v1/patients/{id}/checkin/input", h.CheckInInput)
	r.Handle("POST /api/v1/patients/{id}/glucose", h.RecordGlucose)
	r.Handle("GET /api/v1/patients/{id}/streak", h.GetStreak)
	r.Handle("GET /api/v1/patients/{id}/messages", h.GetMessages)
	r.Handle("GET /api/v1/patients/{id}/audit", h.GetAudit)

	r.Handle("POST /api/v1/sweeps/non-responder", h.RunSweep)

	r.Handle("GET /api/v1/tasks", h.ListTasks)
	r.Handle("GET /api/v1/tasks/export", h.ExportTasks)
	r.Handle("PUT /api/v1/tasks/{id}/complete", h.CompleteTask)
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter 注册设备本地 API（/api/v1）和 /metrics
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Use(h.metrics.HTTPMiddleware)

	r.Get("/health", h.Health)
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/patients", h.SearchPatients)
		r.Post("/patients", h.CreatePatient)
		r.Post("/patients/{id}/select", h.SelectPatient)

		r.Route("/workflow", func(r chi.Router) {
			r.Get("/state", h.GetState)
			r.Put("/contact", h.UpdateContact)
			r.Post("/visit", h.StartVisit)
			r.Post("/symptoms", h.AddSymptom)
			r.Delete("/symptoms/{name}", h.RemoveSymptom)
			r.Put("/vitals", h.SetVitals)
			r.Put("/notes", h.SetNotes)
			r.Put("/rdt", h.RecordRDT)
			r.Get("/danger-check", h.CheckDangerSigns)
			r.Post("/danger-signs", h.ConfirmDangerSign)
			r.Post("/transcript", h.CaptureTranscript)
			r.Post("/suggestions", h.RequestSuggestions)
			r.Post("/suggestions/{id}/accept", h.AcceptSuggestion)
			r.Post("/suggestions/{id}/reject", h.RejectSuggestion)
			r.Post("/referral", h.CreateReferral)
			r.Post("/complete", h.CompleteVisit)
			r.Post("/reset", h.Reset)
		})

		r.Post("/sync", h.TriggerSync)
		r.Get("/sync/status", h.SyncStatus)
		r.Post("/reminders/run", h.RunReminders)
		r.Get("/reports/visits", h.ExportVisitRegister)
	})
	return r
}

// requestLogger 访问日志（只记录路径模板，不记录参数）
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

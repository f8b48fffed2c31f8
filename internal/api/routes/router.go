package routes

import (
	"net/http"

	"github.com/urgentcareq/backend/internal/api/handlers"
	"github.com/urgentcareq/backend/internal/api/middleware"
	"github.com/urgentcareq/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	patientHandler *handlers.PatientHandler
	staffHandler   *handlers.StaffHandler

	metrics *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	patientHandler *handlers.PatientHandler,
	staffHandler *handlers.StaffHandler,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		patientHandler: patientHandler,
		staffHandler:   staffHandler,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Service banner and health check
	r.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"msg":"UrgentCareQ Backend"}`)); err != nil {
			return
		}
	})
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Patient endpoints
	r.mux.HandleFunc("POST /api/patient/joinqueue", r.patientHandler.JoinQueue)
	r.mux.HandleFunc("POST /api/patient/checkin", r.patientHandler.CheckIn)

	// Staff endpoints
	r.mux.HandleFunc("GET /api/staff/queue", r.staffHandler.GetQueue)
	r.mux.HandleFunc("POST /api/staff/reset", r.staffHandler.Reset)
	r.mux.HandleFunc("POST /api/staff/admit", r.staffHandler.Admit)
	r.mux.HandleFunc("POST /api/staff/checkout", r.staffHandler.Checkout)

	// Apply middleware in reverse order (last middleware wraps first).
	// CORS is outermost so every response gets its headers.
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}

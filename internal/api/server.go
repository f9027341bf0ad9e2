// Package api exposes the workflow engine over HTTP: workflow and
// credential management, execution inspection, manual and webhook
// triggering, health and metrics. JSON in, JSON out, no authentication.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/engine"
	"github.com/user/verdandi/internal/events"
	"github.com/user/verdandi/internal/notification"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/idempotency"
)

type Server struct {
	storage    storage.Storage
	validator  *engine.Validator
	dispatcher *engine.Dispatcher
	scheduler  *engine.Scheduler
	events     *events.Hub
	deliveries *idempotency.Store
	notifier   *notification.Notifier
	logger     verdandi.Logger
}

func NewServer(store storage.Storage, validator *engine.Validator, dispatcher *engine.Dispatcher, scheduler *engine.Scheduler, logger verdandi.Logger) *Server {
	if logger == nil {
		logger = verdandi.NopLogger{}
	}
	return &Server{
		storage:    store,
		validator:  validator,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// SetEvents enables the live execution stream endpoint.
func (s *Server) SetEvents(hub *events.Hub) {
	s.events = hub
}

// SetDeliveries enables X-Idempotency-Key deduplication on webhook triggers.
func (s *Server) SetDeliveries(store *idempotency.Store) {
	s.deliveries = store
}

// SetNotifier enables the notification test endpoint.
func (s *Server) SetNotifier(n *notification.Notifier) {
	s.notifier = n
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.registerWorkflowRoutes(mux)
	s.registerExecutionRoutes(mux)
	s.registerCredentialRoutes(mux)

	mux.HandleFunc("POST /hooks/{id}", s.triggerWebhook)
	mux.HandleFunc("GET /api/ws/executions", s.streamExecutions)
	mux.HandleFunc("POST /api/notifications/test", s.testNotifications)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Idempotency-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.storage.ListWorkflows(r.Context(), storage.WorkflowFilter{Limit: 1}); err != nil {
		s.jsonError(w, "storage unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

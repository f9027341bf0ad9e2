package api

import (
	"errors"
	"net/http"

	"github.com/user/verdandi/internal/engine"
	"github.com/user/verdandi/internal/storage"
)

func (s *Server) registerExecutionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executions", s.listExecutions)
	mux.HandleFunc("GET /api/executions/{id}", s.getExecution)
	mux.HandleFunc("POST /api/executions/{id}/retry", s.retryExecution)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.storage.ListExecutions(r.Context(), s.parseExecutionFilter(r))
	if err != nil {
		s.jsonError(w, "Failed to list executions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if execs == nil {
		execs = []*storage.Execution{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  execs,
		"total": len(execs),
	})
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.storage.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		s.notFoundOr(w, err, "Execution not found", "Failed to get execution")
		return
	}
	s.writeJSON(w, http.StatusOK, exec)
}

func (s *Server) retryExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.scheduler.RetryFailedExecution(r.Context(), id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"retried": true})
	case errors.Is(err, storage.ErrNotFound):
		s.jsonError(w, "Execution not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrNotFailed),
		errors.Is(err, engine.ErrRetryDisabled),
		errors.Is(err, engine.ErrRetriesExhausted):
		s.jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.jsonError(w, "Failed to retry execution: "+err.Error(), http.StatusInternalServerError)
	}
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/user/verdandi/internal/storage"
)

func (s *Server) registerWorkflowRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/workflows", s.listWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.getWorkflow)
	mux.HandleFunc("POST /api/workflows", s.createWorkflow)
	mux.HandleFunc("PUT /api/workflows/{id}", s.updateWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.deleteWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/validate", s.validateWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/run", s.runWorkflow)
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs, err := s.storage.ListWorkflows(r.Context(), s.parseWorkflowFilter(r))
	if err != nil {
		s.jsonError(w, "Failed to list workflows: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if wfs == nil {
		wfs = []*storage.Workflow{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  wfs,
		"total": len(wfs),
	})
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.storage.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.notFoundOr(w, err, "Workflow not found", "Failed to get workflow")
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf storage.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if wf.Name == "" {
		s.jsonError(w, "Workflow name is mandatory", http.StatusBadRequest)
		return
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Status == "" {
		wf.Status = storage.WorkflowDraft
	}
	if wf.TriggerType == "" {
		wf.TriggerType = storage.TriggerManual
	}

	if err := s.storage.SaveWorkflow(r.Context(), &wf); err != nil {
		s.jsonError(w, "Failed to create workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("workflow created", "workflow_id", wf.ID, "name", wf.Name)
	s.writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.storage.GetWorkflow(r.Context(), id); err != nil {
		s.notFoundOr(w, err, "Workflow not found", "Failed to get workflow")
		return
	}

	var wf storage.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	wf.ID = id
	if wf.Name == "" {
		s.jsonError(w, "Workflow name is mandatory", http.StatusBadRequest)
		return
	}

	if err := s.storage.SaveWorkflow(r.Context(), &wf); err != nil {
		s.jsonError(w, "Failed to update workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("workflow updated", "workflow_id", wf.ID)
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.storage.DeleteWorkflow(r.Context(), id); err != nil {
		s.notFoundOr(w, err, "Workflow not found", "Failed to delete workflow")
		return
	}
	s.logger.Info("workflow deleted", "workflow_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) validateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.storage.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.notFoundOr(w, err, "Workflow not found", "Failed to get workflow")
		return
	}
	problems := s.validator.Validate(wf)
	if problems == nil {
		problems = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.storage.GetWorkflow(r.Context(), id); err != nil {
		s.notFoundOr(w, err, "Workflow not found", "Failed to get workflow")
		return
	}

	input, err := decodeInput(r)
	if err != nil {
		s.jsonError(w, "Invalid input payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	executionID, err := s.dispatcher.RunAsync(r.Context(), id, input, "api", storage.TriggerManual)
	if err != nil {
		s.jsonError(w, "Failed to queue run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID})
}

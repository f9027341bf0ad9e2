package api

import (
	"net/http"

	"github.com/user/verdandi/internal/storage"
)

// triggerWebhook starts a run of a webhook-triggered workflow with the
// request body as the workflow input.
func (s *Server) triggerWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, err := s.storage.GetWorkflow(r.Context(), id)
	if err != nil {
		WebhookRequests.WithLabelValues("not_found").Inc()
		s.notFoundOr(w, err, "Workflow not found", "Failed to get workflow")
		return
	}
	if wf.TriggerType != storage.TriggerWebhook {
		WebhookRequests.WithLabelValues("rejected").Inc()
		s.jsonError(w, "Workflow does not accept webhooks", http.StatusConflict)
		return
	}
	if wf.Status != storage.WorkflowActive {
		WebhookRequests.WithLabelValues("rejected").Inc()
		s.jsonError(w, "Workflow is not active", http.StatusConflict)
		return
	}

	input, err := decodeInput(r)
	if err != nil {
		WebhookRequests.WithLabelValues("bad_payload").Inc()
		s.jsonError(w, "Invalid webhook payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	key := r.Header.Get("X-Idempotency-Key")
	if key != "" && s.deliveries != nil {
		claimed, err := s.deliveries.Claim(r.Context(), wf.ID, key)
		if err != nil {
			WebhookRequests.WithLabelValues("error").Inc()
			s.jsonError(w, "Failed to record delivery: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if !claimed {
			prior, err := s.deliveries.Lookup(r.Context(), wf.ID, key)
			if err != nil {
				WebhookRequests.WithLabelValues("error").Inc()
				s.jsonError(w, "Failed to look up delivery: "+err.Error(), http.StatusInternalServerError)
				return
			}
			if prior == "" {
				// Claimed by a request still in flight.
				WebhookRequests.WithLabelValues("duplicate").Inc()
				s.jsonError(w, "Delivery already in progress", http.StatusConflict)
				return
			}
			WebhookRequests.WithLabelValues("duplicate").Inc()
			s.logger.Info("webhook replayed", "workflow_id", wf.ID, "execution_id", prior, "key", key)
			s.writeJSON(w, http.StatusOK, map[string]string{"execution_id": prior, "duplicate": "true"})
			return
		}
	}

	executionID, err := s.dispatcher.RunAsync(r.Context(), wf.ID, input, "webhook", storage.TriggerWebhook)
	if err != nil {
		if key != "" && s.deliveries != nil {
			// The run never queued; free the key so the sender can retry.
			_ = s.deliveries.Release(r.Context(), wf.ID, key)
		}
		WebhookRequests.WithLabelValues("error").Inc()
		s.jsonError(w, "Failed to queue run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if key != "" && s.deliveries != nil {
		if err := s.deliveries.Bind(r.Context(), wf.ID, key, executionID); err != nil {
			s.logger.Error("failed to bind delivery key", "workflow_id", wf.ID, "key", key, "error", err)
		}
	}
	WebhookRequests.WithLabelValues("accepted").Inc()
	s.logger.Info("webhook accepted", "workflow_id", wf.ID, "execution_id", executionID)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID})
}

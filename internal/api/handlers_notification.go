package api

import (
	"net/http"
)

// testNotifications pushes a synthetic failure through every configured
// notification channel and reports what each one did with it.
func (s *Server) testNotifications(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		s.jsonError(w, "Notifications are not configured", http.StatusNotFound)
		return
	}
	results := s.notifier.Test(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  results,
		"total": len(results),
	})
}

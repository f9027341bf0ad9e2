package api

import (
	"encoding/json"
	"net/http"

	"github.com/user/verdandi/internal/storage"
)

func (s *Server) registerCredentialRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/credentials", s.listCredentials)
	mux.HandleFunc("POST /api/credentials", s.saveCredential)
	mux.HandleFunc("DELETE /api/credentials/{id}", s.deleteCredential)
}

// sanitize strips the secret values; the API never echoes credential data.
func sanitize(c *storage.Credential) *storage.Credential {
	keys := make(map[string]string, len(c.Data))
	for k := range c.Data {
		keys[k] = ""
	}
	out := *c
	out.Data = keys
	return &out
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.storage.ListCredentials(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		s.jsonError(w, "Failed to list credentials: "+err.Error(), http.StatusInternalServerError)
		return
	}
	sanitized := make([]*storage.Credential, 0, len(creds))
	for _, c := range creds {
		sanitized = append(sanitized, sanitize(c))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  sanitized,
		"total": len(sanitized),
	})
}

func (s *Server) saveCredential(w http.ResponseWriter, r *http.Request) {
	var c storage.Credential
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.Provider == "" || c.Name == "" {
		s.jsonError(w, "Credential provider and name are mandatory", http.StatusBadRequest)
		return
	}
	if c.Owner == "" {
		c.Owner = "default"
	}

	if err := s.storage.SaveCredential(r.Context(), &c); err != nil {
		s.jsonError(w, "Failed to save credential: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("credential saved", "credential_id", c.ID, "provider", c.Provider, "name", c.Name)
	s.writeJSON(w, http.StatusCreated, sanitize(&c))
}

func (s *Server) deleteCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.storage.DeleteCredential(r.Context(), id); err != nil {
		s.notFoundOr(w, err, "Credential not found", "Failed to delete credential")
		return
	}
	s.logger.Info("credential deleted", "credential_id", id)
	w.WriteHeader(http.StatusNoContent)
}

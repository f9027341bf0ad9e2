package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/user/verdandi/internal/storage"
)

func (s *Server) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// notFoundOr maps storage.ErrNotFound to 404 and everything else to 500.
func (s *Server) notFoundOr(w http.ResponseWriter, err error, notFoundMsg, failMsg string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.jsonError(w, notFoundMsg, http.StatusNotFound)
		return
	}
	s.jsonError(w, failMsg+": "+err.Error(), http.StatusInternalServerError)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *Server) parseWorkflowFilter(r *http.Request) storage.WorkflowFilter {
	q := r.URL.Query()
	return storage.WorkflowFilter{
		Owner:       q.Get("owner"),
		Status:      q.Get("status"),
		TriggerType: q.Get("trigger_type"),
		Search:      q.Get("search"),
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	}
}

func (s *Server) parseExecutionFilter(r *http.Request) storage.ExecutionFilter {
	q := r.URL.Query()
	return storage.ExecutionFilter{
		WorkflowID:  q.Get("workflow_id"),
		Status:      q.Get("status"),
		TriggerType: q.Get("trigger_type"),
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	}
}

// decodeInput reads an optional JSON object body. An empty body is an empty
// input, anything else must be a JSON object.
func decodeInput(r *http.Request) (map[string]interface{}, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}

package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// The REST surface is wide open to any origin, so the websocket endpoint
// follows the same stance.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamExecutions upgrades to a websocket and pushes execution events as
// JSON, one message per event, until the client goes away. An optional
// workflow_id query parameter narrows the stream to one workflow.
func (s *Server) streamExecutions(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.jsonError(w, "Event stream is not enabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	StreamClients.Inc()
	defer StreamClients.Dec()

	workflowID := r.URL.Query().Get("workflow_id")

	ch, unsub := s.events.Subscribe(64)
	defer unsub()

	// The read pump only notices the peer closing; inbound frames carry
	// nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if workflowID != "" && ev.WorkflowID != workflowID {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/version"
)

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := protocol.DaemonStatus{
		Version:        version.String(),
		ActiveSessions: s.store.Len(),
		Connections:    s.registry.Connections(),
	}
	if s.runtime != nil {
		status.StartedAt = s.runtime.StartTime()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("[APIServer] failed to encode status response: %v", err)
	}
}

func (s *APIServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

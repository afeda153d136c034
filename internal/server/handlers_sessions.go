package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/session"
	"github.com/lenscast/lenscast/internal/validate"
)

func (s *APIServer) handleSessionsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSessionsList(w, r)
	case http.MethodPost:
		s.handleSessionCreate(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	base := s.joinBaseURL(r)
	sessions := s.store.List()
	views := make([]protocol.Session, 0, len(sessions))
	for _, sess := range sessions {
		view := sess.Snapshot()
		view.JoinURL = protocol.BuildJoinURL(base, view.ID)
		views = append(views, view)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.Printf("[APIServer] failed to encode sessions response: %v", err)
	}
}

func (s *APIServer) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create session: %v", err))
		return
	}

	view := sess.Snapshot()
	view.JoinURL = protocol.BuildJoinURL(s.joinBaseURL(r), view.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.Printf("[APIServer] failed to encode session response: %v", err)
	}
}

func (s *APIServer) handleSessionSubroutes(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if trimmed == "" || trimmed == "/" {
		s.handleSessionsRoot(w, r)
		return
	}

	parts := strings.Split(trimmed, "/")
	sessionID := strings.TrimSpace(parts[0])
	if len(parts) > 1 || !validate.SessionID(sessionID) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleSessionGet(w, r, sessionID)
	case http.MethodDelete:
		s.handleSessionDelete(w, r, sessionID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleSessionGet(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, protocol.ErrorSessionNotFound)
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	view := sess.Snapshot()
	view.JoinURL = protocol.BuildJoinURL(s.joinBaseURL(r), view.ID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.Printf("[APIServer] failed to encode session response: %v", err)
	}
}

func (s *APIServer) handleSessionDelete(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.store.Close(sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, protocol.ErrorSessionNotFound)
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lenscast/lenscast/internal/protocol"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare host gets http scheme", input: "localhost:8787", want: "http://localhost:8787"},
		{name: "trailing slash stripped", input: "http://localhost:8787/", want: "http://localhost:8787"},
		{name: "https preserved", input: " https://cam.example.com ", want: "https://cam.example.com"},
		{name: "empty", input: "", wantErr: true},
		{name: "scheme without host", input: "http://", wantErr: true},
		{name: "non-http scheme rejected", input: "ftp://cam.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NormalizeBaseURL(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeBaseURL(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeBaseURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCreateSession(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(protocol.Session{
			ID:        "ab12cd34",
			JoinURL:   "http://127.0.0.1:8787/join/ab12cd34",
			CreatedAt: now,
			ExpiresAt: now.Add(10 * time.Minute),
		})
	}))
	defer server.Close()

	api, err := NewAPI(server.URL)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	sess, err := api.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID != "ab12cd34" {
		t.Fatalf("expected session id ab12cd34, got %q", sess.ID)
	}
	if sess.JoinURL == "" {
		t.Fatal("expected join URL in response")
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Fatalf("expected expiry after creation, got %v / %v", sess.CreatedAt, sess.ExpiresAt)
	}
}

func TestGetSessionMapsErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": protocol.ErrorSessionNotFound})
	}))
	defer server.Close()

	api, err := NewAPI(server.URL)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	if _, err := api.GetSession("deadbeef"); err == nil {
		t.Fatal("expected error for missing session")
	} else if !strings.Contains(err.Error(), protocol.ErrorSessionNotFound) {
		t.Fatalf("expected %q in error, got %q", protocol.ErrorSessionNotFound, err.Error())
	}
}

func TestAPIErrorFallsBackToRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	api, err := NewAPI(server.URL)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	if _, err := api.DaemonStatus(); err == nil {
		t.Fatal("expected error for 502 response")
	} else if !strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("expected raw body in error, got %q", err.Error())
	}
}

func TestListSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]protocol.Session{
			{ID: "ab12cd34"},
			{ID: "ef56ab78", PhoneJoined: true},
		})
	}))
	defer server.Close()

	api, err := NewAPI(server.URL)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	sessions, err := api.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if !sessions[1].PhoneJoined {
		t.Fatal("expected phoneJoined to survive decoding")
	}
}

func TestDeleteSession(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	api, err := NewAPI(server.URL)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	if err := api.DeleteSession("ab12cd34"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if gotPath != "DELETE /api/sessions/ab12cd34" {
		t.Fatalf("unexpected request: %s", gotPath)
	}
}

func TestDaemonStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.DaemonStatus{
			Version:        "1.2.3",
			StartedAt:      time.Now().UTC(),
			ActiveSessions: 3,
			Connections:    5,
		})
	}))
	defer server.Close()

	api, err := NewAPI(server.URL)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}

	status, err := api.DaemonStatus()
	if err != nil {
		t.Fatalf("DaemonStatus: %v", err)
	}
	if status.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %q", status.Version)
	}
	if status.ActiveSessions != 3 || status.Connections != 5 {
		t.Fatalf("unexpected counters: %+v", status)
	}
}

// Package client implements the relay-facing side of the phone and desktop
// agents: a REST client for session management and a self-healing websocket
// connection for the event stream.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lenscast/lenscast/internal/constants"
	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/validate"
)

const maxErrorBody = 8 << 10

// API wraps HTTP interactions with the relay daemon.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI builds a REST client for the given base URL. A missing scheme
// defaults to http, matching how join URLs are printed.
func NewAPI(baseURL string) (*API, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &API{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: constants.APIRequestTimeout},
	}, nil
}

// NormalizeBaseURL fills in a missing scheme and strips trailing slashes.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("client: relay URL is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("client: parse relay URL: %w", err)
	}
	normalized := strings.TrimRight(u.String(), "/")
	if err := validate.HTTPURL(normalized); err != nil {
		return "", fmt.Errorf("client: relay URL: %w", err)
	}
	return normalized, nil
}

// BaseURL returns the base HTTP URL the client is configured to use.
func (a *API) BaseURL() string {
	return a.baseURL
}

// CreateSession asks the relay for a fresh session.
func (a *API) CreateSession() (*protocol.Session, error) {
	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/api/sessions", http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create session: %w", readAPIError(resp))
	}

	var sess protocol.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	return &sess, nil
}

// GetSession fetches one session by id.
func (a *API) GetSession(sessionID string) (*protocol.Session, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/sessions/%s", a.baseURL, sessionID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get session: %w", readAPIError(resp))
	}

	var sess protocol.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	return &sess, nil
}

// ListSessions returns all live sessions.
func (a *API) ListSessions() ([]protocol.Session, error) {
	req, err := http.NewRequest(http.MethodGet, a.baseURL+"/api/sessions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list sessions: %w", readAPIError(resp))
	}

	var sessions []protocol.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode sessions response: %w", err)
	}
	return sessions, nil
}

// DeleteSession closes a session on the relay.
func (a *API) DeleteSession(sessionID string) error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/sessions/%s", a.baseURL, sessionID), nil)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete session: %w", readAPIError(resp))
	}
	return nil
}

// DaemonStatus fetches relay daemon metadata.
func (a *API) DaemonStatus() (*protocol.DaemonStatus, error) {
	req, err := http.NewRequest(http.MethodGet, a.baseURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon status: %w", readAPIError(resp))
	}

	var status protocol.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &status, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) == 0 {
		return errors.New(resp.Status)
	}
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			if msg := strings.TrimSpace(payload.Error); msg != "" {
				return errors.New(msg)
			}
		}
	}
	return errors.New(trimmed)
}

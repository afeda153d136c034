package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	configstore "github.com/lenscast/lenscast/internal/config/store"
	"github.com/lenscast/lenscast/internal/relay"
	"github.com/lenscast/lenscast/internal/session"
)

// RuntimeInfoProvider defines methods required to expose runtime metadata.
type RuntimeInfoProvider interface {
	StartTime() time.Time
}

// transportConfig groups network transport settings protected by a single
// read-write mutex.
type transportConfig struct {
	transportMu    sync.RWMutex
	port           int
	binding        string
	advertisedURL  string
	allowedOrigins []string
}

// APIServer serves the relay REST API and the websocket endpoint the phone
// and desktop agents attach to.
type APIServer struct {
	// Service dependencies (immutable after init)
	store    *session.Store
	registry *relay.Registry
	config   *configstore.Store
	runtime  RuntimeInfoProvider

	httpServer *http.Server
	upgrader   websocket.Upgrader

	metricsMu      sync.RWMutex
	metricsHandler http.Handler

	clientsMu sync.RWMutex
	clients   map[*Client]struct{}

	// nowFunc returns the current time. Overridden in tests.
	nowFunc func() time.Time

	// Grouped state (embedded — fields promoted)
	transportConfig
}

// NewAPIServer creates a new API server. The config store may be nil, in
// which case the fallback port and loopback binding apply.
func NewAPIServer(store *session.Store, registry *relay.Registry, config *configstore.Store, runtime RuntimeInfoProvider, port int) (*APIServer, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("relay registry is required")
	}

	s := &APIServer{
		store:    store,
		registry: registry,
		config:   config,
		runtime:  runtime,
		clients:  make(map[*Client]struct{}),
		nowFunc:  time.Now,
	}
	s.port = port
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return s.originAllowed(origin)
		},
	}

	return s, nil
}

// SetMetricsHandler wires the Prometheus exposition handler mounted at
// /metrics. Must be called before Start.
func (s *APIServer) SetMetricsHandler(handler http.Handler) {
	s.metricsMu.Lock()
	s.metricsHandler = handler
	s.metricsMu.Unlock()
}

// Store exposes the session store for components outside the server package.
func (s *APIServer) Store() *session.Store {
	return s.store
}

// Registry exposes the relay registry for components outside the server package.
func (s *APIServer) Registry() *relay.Registry {
	return s.registry
}

// GetClientCount returns the number of connected websocket clients.
func (s *APIServer) GetClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *APIServer) registerClient(c *Client) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
}

func (s *APIServer) unregisterClient(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}

// PreparedHTTPServer holds metadata about a prepared HTTP server instance.
type PreparedHTTPServer struct {
	Server  *http.Server
	Scheme  string
	Binding string
}

// Prepare initialises the HTTP server without starting to serve, allowing
// the caller to manage the listener lifecycle.
func (s *APIServer) Prepare(ctx context.Context) (*PreparedHTTPServer, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.transportMu.RLock()
	fallbackPort := s.port
	s.transportMu.RUnlock()

	cfg := configstore.TransportConfig{
		Binding: "loopback",
		Port:    fallbackPort,
	}
	if s.config != nil {
		storedCfg, err := s.config.GetTransportConfig(ctx)
		if err != nil {
			return nil, err
		}
		cfg = storedCfg
		if cfg.Port == 0 {
			cfg.Port = fallbackPort
		}
	}

	binding := normalizeBinding(cfg.Binding)
	host, err := resolveBindingHost(binding)
	if err != nil {
		return nil, err
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid HTTP port %d", cfg.Port)
	}

	advertised := strings.TrimRight(strings.TrimSpace(cfg.AdvertisedURL), "/")
	if advertised != "" {
		if _, err := url.Parse(advertised); err != nil {
			return nil, fmt.Errorf("invalid advertised URL %q: %w", cfg.AdvertisedURL, err)
		}
	}

	address := net.JoinHostPort(host, strconv.Itoa(cfg.Port))

	s.transportMu.Lock()
	s.port = cfg.Port
	s.binding = binding
	s.advertisedURL = advertised
	s.allowedOrigins = sanitizeOrigins(cfg.AllowedOrigins)
	s.transportMu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/api/sessions", s.handleSessionsRoot)
	mux.HandleFunc("/api/sessions/", s.handleSessionSubroutes)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)

	server := &http.Server{
		Addr:    address,
		Handler: s.wrapWithCORS(mux),
	}
	s.httpServer = server

	return &PreparedHTTPServer{
		Server:  server,
		Scheme:  "http",
		Binding: binding,
	}, nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *APIServer) Start() error {
	prepared, err := s.Prepare(context.Background())
	if err != nil {
		return err
	}
	return prepared.Server.ListenAndServe()
}

// Shutdown closes any attached websocket connections and gracefully shuts
// down the HTTP server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// UpdateActualPort persists the effective HTTP port back into the
// configuration store. Used when the configured port is 0 and the listener
// picked a free one.
func (s *APIServer) UpdateActualPort(ctx context.Context, port int) {
	if s.config == nil || port <= 0 {
		return
	}

	cfg, err := s.config.GetTransportConfig(ctx)
	if err != nil {
		log.Printf("[APIServer] Failed to load transport config: %v", err)
		return
	}
	if cfg.Port == port {
		return
	}
	cfg.Port = port
	if saveErr := s.config.SaveTransportConfig(ctx, cfg); saveErr != nil {
		log.Printf("[APIServer] Failed to persist transport port: %v", saveErr)
	} else {
		s.transportMu.Lock()
		s.port = port
		s.transportMu.Unlock()
	}
}

// joinBaseURL picks the base URL embedded into join links: the configured
// advertised URL when present, otherwise the address the request came in on.
func (s *APIServer) joinBaseURL(r *http.Request) string {
	s.transportMu.RLock()
	advertised := s.advertisedURL
	s.transportMu.RUnlock()

	if advertised != "" {
		return advertised
	}
	return fmt.Sprintf("%s://%s", requestScheme(r), r.Host)
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// wrapWithCORS adds CORS headers for browser-hosted viewers on configured
// origins.
func (s *APIServer) wrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.metricsMu.RLock()
	handler := s.metricsHandler
	s.metricsMu.RUnlock()

	if handler == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not configured")
		return
	}
	handler.ServeHTTP(w, r)
}

func normalizeBinding(binding string) string {
	b := strings.TrimSpace(strings.ToLower(binding))
	if b == "" {
		return "loopback"
	}
	return b
}

func resolveBindingHost(binding string) (string, error) {
	switch binding {
	case "loopback":
		return "127.0.0.1", nil
	case "lan", "public":
		return "0.0.0.0", nil
	default:
		return "", fmt.Errorf("unknown binding %q", binding)
	}
}

func sanitizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return nil
	}

	result := make([]string, 0, len(origins))
	seen := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

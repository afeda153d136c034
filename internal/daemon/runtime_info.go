package daemon

import (
	"sync"
	"time"
)

// RuntimeInfo stores runtime metadata exposed to clients.
type RuntimeInfo struct {
	mu        sync.RWMutex
	httpPort  int
	startTime time.Time
}

// SetHTTPPort updates the active HTTP port.
func (r *RuntimeInfo) SetHTTPPort(port int) {
	r.mu.Lock()
	r.httpPort = port
	r.mu.Unlock()
}

// HTTPPort returns the current HTTP port.
func (r *RuntimeInfo) HTTPPort() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.httpPort
}

// SetStartTime records the daemon start time.
func (r *RuntimeInfo) SetStartTime(t time.Time) {
	r.mu.Lock()
	r.startTime = t
	r.mu.Unlock()
}

// StartTime returns the daemon start time.
func (r *RuntimeInfo) StartTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startTime
}

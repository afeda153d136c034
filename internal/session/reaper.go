package session

import (
	"context"
	"sync"
	"time"

	"github.com/lenscast/lenscast/internal/constants"
)

// AttachmentCounter reports how many live relay connections a session has.
// The reaper keeps expired sessions alive while either peer is attached.
type AttachmentCounter interface {
	Attached(sessionID string) int
}

// Reaper periodically purges expired sessions from the store. It runs as a
// daemon service under the service host.
type Reaper struct {
	store       *Store
	connections AttachmentCounter
	interval    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a reaper for the given store. The counter may be nil,
// in which case expiry alone decides.
func NewReaper(store *Store, connections AttachmentCounter) *Reaper {
	return &Reaper{
		store:       store,
		connections: connections,
		interval:    constants.SessionReapInterval,
	}
}

// Start launches the reap loop.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil // Already running
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.store.ReapExpired(r.connections)
			}
		}
	}()

	return nil
}

// Shutdown stops the reap loop and waits for it to exit.
func (r *Reaper) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	return nil
}

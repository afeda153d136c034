package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lenscast/lenscast/internal/eventbus"
)

// fixedCounter reports a fixed attachment count per session id.
type fixedCounter struct {
	counts map[string]int
}

func (f *fixedCounter) Attached(id string) int {
	return f.counts[id]
}

func TestReapExpiredPurgesOnlyExpired(t *testing.T) {
	store := NewStore(nil)
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return current }

	expired, err := store.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	current = current.Add(store.ttl + time.Second)

	fresh, err := store.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if removed := store.ReapExpired(nil); removed != 1 {
		t.Fatalf("reaped %d sessions, want 1", removed)
	}
	if _, err := store.Get(expired.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session gone, got %v", err)
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Fatalf("fresh session was reaped: %v", err)
	}
}

func TestReapKeepsSessionsWithAttachedConnections(t *testing.T) {
	store := NewStore(nil)
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return current }

	attached, err := store.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	abandoned, err := store.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	current = current.Add(store.ttl + time.Second)

	counter := &fixedCounter{counts: map[string]int{attached.ID: 1}}
	if removed := store.ReapExpired(counter); removed != 1 {
		t.Fatalf("reaped %d sessions, want 1", removed)
	}
	if _, err := store.Get(attached.ID); err != nil {
		t.Fatalf("session with live connection was reaped: %v", err)
	}
	if _, err := store.Get(abandoned.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected abandoned session gone, got %v", err)
	}
}

func TestReapPublishesExpiredEvent(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	store := NewStore(bus)
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return current }

	sess, err := store.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Subscribe after Create so the created event is not in the queue.
	sub := eventbus.SubscribeTo(bus, eventbus.Sessions.Lifecycle, eventbus.WithSubscriptionBuffer(4))
	defer sub.Close()

	current = current.Add(store.ttl + time.Second)
	if removed := store.ReapExpired(nil); removed != 1 {
		t.Fatalf("reaped %d sessions, want 1", removed)
	}

	select {
	case env := <-sub.C():
		if env.Payload.SessionID != sess.ID {
			t.Fatalf("expired event for %q, want %q", env.Payload.SessionID, sess.ID)
		}
		if env.Payload.State != eventbus.SessionStateExpired {
			t.Fatalf("event state %q, want expired", env.Payload.State)
		}
		if env.Payload.Reason != eventbus.SessionReasonExpired {
			t.Fatalf("event reason %q, want %q", env.Payload.Reason, eventbus.SessionReasonExpired)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expired event")
	}
}

func TestReaperServicePurgesInBackground(t *testing.T) {
	store := NewStore(nil)
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return current }

	if _, err := store.Create(); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	current = current.Add(store.ttl + time.Second)

	reaper := NewReaper(store, nil)
	reaper.interval = 10 * time.Millisecond

	if err := reaper.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("reaper did not purge expired session")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := reaper.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestReaperShutdownWithoutStart(t *testing.T) {
	reaper := NewReaper(NewStore(nil), nil)
	if err := reaper.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

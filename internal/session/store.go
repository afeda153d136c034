package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lenscast/lenscast/internal/constants"
	"github.com/lenscast/lenscast/internal/eventbus"
	"github.com/lenscast/lenscast/internal/protocol"
)

// ErrNotFound is returned when a session id is unknown or already removed.
var ErrNotFound = errors.New("session not found")

// maxIDAttempts bounds id generation retries on collision. With 8 hex chars
// of id space a handful of retries is already absurd headroom.
const maxIDAttempts = 16

// Session is one pairing window between a phone and a desktop. The exported
// fields are immutable after creation; everything else changes under the
// session's own lock so readers never block the whole registry.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu            sync.RWMutex
	expiresAt     time.Time
	phoneJoined   bool
	desktopJoined bool
	mode          protocol.FrameMode
	calibration   *protocol.CalibrationGrid
}

// ExpiresAt returns the current expiry deadline.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.After(s.expiresAt)
}

// Joined reports whether the given role currently has a peer attached.
func (s *Session) Joined(role protocol.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch role {
	case protocol.RolePhone:
		return s.phoneJoined
	case protocol.RoleDesktop:
		return s.desktopJoined
	}
	return false
}

// Mode returns the last frame mode commanded for this session.
func (s *Session) Mode() protocol.FrameMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Calibration returns a copy of the last calibration pushed for this session,
// or nil if none is set.
func (s *Session) Calibration() *protocol.CalibrationGrid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.calibration == nil {
		return nil
	}
	grid := *s.calibration
	grid.ColumnDividers = append([]float64(nil), s.calibration.ColumnDividers...)
	return &grid
}

// Snapshot returns a point-in-time copy of the session state in its REST
// representation. JoinURL is left empty; the server fills it in.
func (s *Session) Snapshot() protocol.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.Session{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.expiresAt,
		PhoneJoined:   s.phoneJoined,
		DesktopJoined: s.desktopJoined,
	}
}

func (s *Session) setExpiry(deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresAt = deadline
}

// setJoined flips the peer flag for a role and reports whether it changed.
func (s *Session) setJoined(role protocol.Role, joined bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch role {
	case protocol.RolePhone:
		if s.phoneJoined == joined {
			return false
		}
		s.phoneJoined = joined
	case protocol.RoleDesktop:
		if s.desktopJoined == joined {
			return false
		}
		s.desktopJoined = joined
	default:
		return false
	}
	return true
}

func (s *Session) setMode(mode protocol.FrameMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *Session) setCalibration(grid *protocol.CalibrationGrid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if grid == nil {
		s.calibration = nil
		return
	}
	copied := *grid
	copied.ColumnDividers = append([]float64(nil), grid.ColumnDividers...)
	s.calibration = &copied
	// Receiving calibration implies cropped mode.
	s.mode = protocol.FrameModeCropped
}

// Store is the in-memory session registry. Sessions expire after a TTL that
// is refreshed on activity; the reaper removes expired ones.
type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	bus      *eventbus.Bus
	ttl      time.Duration

	// nowFunc returns the current time. Overridden in tests.
	nowFunc func() time.Time
}

// NewStore creates a session registry publishing lifecycle events on the
// given bus. A nil bus disables publishing.
func NewStore(bus *eventbus.Bus) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		bus:      bus,
		ttl:      constants.SessionTTL,
		nowFunc:  time.Now,
	}
}

// Create allocates a fresh session with a unique 8-character id and a full
// TTL. It fails only if the id space is saturated, which in practice
// indicates a leak elsewhere.
func (s *Store) Create() (*Session, error) {
	now := s.nowFunc()

	s.mu.Lock()
	var sess *Session
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := uuid.New().String()[:8]
		if _, taken := s.sessions[id]; taken {
			continue
		}
		sess = &Session{
			ID:        id,
			CreatedAt: now,
			expiresAt: now.Add(s.ttl),
			mode:      protocol.FrameModeRaw,
		}
		s.sessions[id] = sess
		break
	}
	s.mu.Unlock()

	if sess == nil {
		return nil, fmt.Errorf("failed to allocate session id after %d attempts", maxIDAttempts)
	}

	log.Printf("[SessionStore] Created session %s, expires %s", sess.ID, sess.ExpiresAt().Format(time.RFC3339))
	s.publishLifecycle(sess.ID, eventbus.SessionStateCreated, "", "session_created")

	return sess, nil
}

// Get returns a session by id. Expired sessions are still returned until the
// reaper removes them; callers gate on Expired where it matters.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	return sess, nil
}

// Touch refreshes the session's expiry to a full TTL from now. Called on
// join and on every relayed frame.
func (s *Store) Touch(id string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	sess.setExpiry(s.nowFunc().Add(s.ttl))
	return nil
}

// SetJoined records that a role attached to or detached from the session and
// publishes the corresponding lifecycle event. Repeated calls with the same
// value are no-ops, so a replacement join does not republish.
func (s *Store) SetJoined(id string, role protocol.Role, joined bool) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	if !sess.setJoined(role, joined) {
		return nil
	}

	state := eventbus.SessionStateJoined
	reason := "peer_joined"
	if !joined {
		state = eventbus.SessionStateLeft
		reason = "peer_left"
	}
	s.publishLifecycle(id, state, role, reason)

	return nil
}

// SetMode records the last frame mode commanded for the session.
func (s *Store) SetMode(id string, mode protocol.FrameMode) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	sess.setMode(mode)
	return nil
}

// SetCalibration records the last calibration pushed for the session. A nil
// grid clears it. Storing a grid also switches the recorded mode to cropped,
// mirroring what the phone does on receipt.
func (s *Store) SetCalibration(id string, grid *protocol.CalibrationGrid) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	sess.setCalibration(grid)
	return nil
}

// Close removes the session. Subsequent Get calls return ErrNotFound.
func (s *Store) Close(id string) error {
	s.mu.Lock()
	_, exists := s.sessions[id]
	if exists {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	log.Printf("[SessionStore] Closed session %s", id)
	s.publishLifecycle(id, eventbus.SessionStateClosed, "", "session_closed")

	return nil
}

// List returns all sessions in no particular order.
func (s *Store) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}

	return sessions
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ReapExpired removes sessions whose TTL elapsed and which have no attached
// relay connection, publishing an expired lifecycle event for each. Returns
// the number removed. A nil counter means no connection check.
func (s *Store) ReapExpired(connections AttachmentCounter) int {
	now := s.nowFunc()

	s.mu.Lock()
	var purged []string
	for id, sess := range s.sessions {
		if !sess.Expired(now) {
			continue
		}
		if connections != nil && connections.Attached(id) > 0 {
			continue
		}
		delete(s.sessions, id)
		purged = append(purged, id)
	}
	s.mu.Unlock()

	for _, id := range purged {
		log.Printf("[SessionStore] Reaped expired session %s", id)
		s.publishLifecycle(id, eventbus.SessionStateExpired, "", eventbus.SessionReasonExpired)
	}

	return len(purged)
}

func (s *Store) publishLifecycle(id string, state eventbus.SessionState, role protocol.Role, reason string) {
	eventbus.Publish(context.Background(), s.bus, eventbus.Sessions.Lifecycle, eventbus.SourceSessionStore, eventbus.SessionLifecycleEvent{
		SessionID: id,
		State:     state,
		Role:      string(role),
		Reason:    reason,
	})
}

// Package desktop implements the receiving side of a relay session: it
// creates and subscribes to sessions, holds the latest frame from the phone
// and issues fire-and-forget commands back to it.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lenscast/lenscast/internal/client"
	"github.com/lenscast/lenscast/internal/config/store"
	"github.com/lenscast/lenscast/internal/protocol"
)

// ErrSavedSessionExpired is returned by Resume when the persisted session's
// expiry has passed. The caller creates a fresh session instead.
var ErrSavedSessionExpired = errors.New("desktop: saved session expired")

// Channel is the relay connection the agent talks over. *client.Conn
// satisfies it.
type Channel interface {
	Send(msg protocol.Message) error
	Connected() bool
	SetOnReconnect(fn func())
}

// SessionStore persists the current session between runs. *store.Store
// satisfies it.
type SessionStore interface {
	SaveSession(ctx context.Context, sess store.SavedSession) error
	LoadSession(ctx context.Context) (store.SavedSession, error)
	ClearSession(ctx context.Context) error
}

// Frame is the most recent frame received from the phone. Dimensions is nil
// for cropped frames.
type Frame struct {
	SessionID  string
	ImageData  string
	Timestamp  time.Time
	Mode       protocol.FrameMode
	Dimensions *protocol.Dimensions
	ReceivedAt time.Time
}

// Config wires the agent's collaborators. API is required for CreateSession;
// Store may be nil to run without persistence.
type Config struct {
	API   *client.API
	Store SessionStore
}

// Agent is the desktop-side session endpoint. It never queues frames: each
// arrival replaces the previous one.
type Agent struct {
	api   *client.API
	store SessionStore

	// nowFunc returns the current time. Overridden in tests.
	nowFunc func() time.Time

	mu        sync.Mutex
	ch        Channel
	sessionID string
	latest    *Frame
	torch     *protocol.TorchStatePayload
	lastError string
	onFrame   func(Frame)
	onTorch   func(protocol.TorchStatePayload)
	onError   func(reason string)
	autocal   *AutoCalibrator
}

// New builds an agent. Bind a channel before subscribing.
func New(cfg Config) *Agent {
	return &Agent{
		api:     cfg.API,
		store:   cfg.Store,
		nowFunc: time.Now,
	}
}

// Bind attaches the relay channel and registers the resubscribe hook.
// Received messages must be routed to HandleMessage by the caller.
func (a *Agent) Bind(ch Channel) {
	a.mu.Lock()
	a.ch = ch
	a.mu.Unlock()
	if ch != nil {
		ch.SetOnReconnect(a.resubscribe)
	}
}

// CreateSession asks the daemon for a fresh session and persists it so a
// later Resume can pick it up. Persistence failures are logged, not fatal:
// the session already exists on the relay.
func (a *Agent) CreateSession(ctx context.Context) (*protocol.Session, error) {
	if a.api == nil {
		return nil, errors.New("desktop: REST API not configured")
	}

	sess, err := a.api.CreateSession()
	if err != nil {
		return nil, err
	}

	if a.store != nil {
		saved := store.SavedSession{
			SessionID: sess.ID,
			RelayURL:  a.api.BaseURL(),
			JoinURL:   sess.JoinURL,
			CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339),
			ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
		}
		if err := a.store.SaveSession(ctx, saved); err != nil {
			log.Printf("[DesktopAgent] persist session %s: %v", sess.ID, err)
		}
	}
	return sess, nil
}

// Subscribe joins the session with the desktop role. Later channel
// reconnects resubscribe automatically.
func (a *Agent) Subscribe(sessionID string) error {
	if sessionID == "" {
		return errors.New("desktop: session id is empty")
	}

	a.mu.Lock()
	ch := a.ch
	if ch == nil || !ch.Connected() {
		a.mu.Unlock()
		return client.ErrNotConnected
	}
	a.mu.Unlock()

	msg, err := protocol.NewMessage(protocol.EventJoin, sessionID, protocol.JoinPayload{SessionID: sessionID})
	if err != nil {
		return err
	}
	if err := ch.Send(msg); err != nil {
		return err
	}

	a.mu.Lock()
	a.sessionID = sessionID
	a.lastError = ""
	a.mu.Unlock()
	log.Printf("[DesktopAgent] subscribed to session %s", sessionID)
	return nil
}

// Resume subscribes using the persisted session. Returns the session id on
// success, store.NotFoundError when nothing is persisted and
// ErrSavedSessionExpired when the record has outlived its expiry.
func (a *Agent) Resume(ctx context.Context) (string, error) {
	if a.store == nil {
		return "", errors.New("desktop: no session store configured")
	}

	saved, err := a.store.LoadSession(ctx)
	if err != nil {
		return "", err
	}
	if saved.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, saved.ExpiresAt)
		if err == nil && expiresAt.Before(a.nowFunc()) {
			return "", ErrSavedSessionExpired
		}
	}

	if err := a.Subscribe(saved.SessionID); err != nil {
		return "", err
	}
	return saved.SessionID, nil
}

// Unsubscribe leaves the relay channel. The persisted session survives for
// a later Resume.
func (a *Agent) Unsubscribe() {
	a.mu.Lock()
	ch := a.ch
	sessionID := a.sessionID
	a.sessionID = ""
	a.latest = nil
	a.torch = nil
	a.mu.Unlock()

	if ch == nil || sessionID == "" {
		return
	}
	msg, err := protocol.NewMessage(protocol.EventLeave, sessionID, protocol.LeavePayload{SessionID: sessionID})
	if err != nil {
		return
	}
	if err := ch.Send(msg); err != nil && !errors.Is(err, client.ErrNotConnected) {
		log.Printf("[DesktopAgent] leave session %s: %v", sessionID, err)
	}
}

// ClearSession unsubscribes and wipes the persisted record, forcing a fresh
// token next time.
func (a *Agent) ClearSession(ctx context.Context) error {
	a.Unsubscribe()
	if a.store == nil {
		return nil
	}
	return a.store.ClearSession(ctx)
}

// SetPhoneFrameMode asks the phone to switch capture modes.
func (a *Agent) SetPhoneFrameMode(mode protocol.FrameMode) error {
	if !mode.Valid() {
		return fmt.Errorf("desktop: unknown frame mode %q", mode)
	}
	return a.send(protocol.EventSetMode, protocol.SetModePayload{Mode: mode})
}

// PushCalibration sends crop corners to the phone. The phone switches to
// cropped mode on receipt.
func (a *Agent) PushCalibration(corners protocol.QuadCorners) error {
	return a.send(protocol.EventSetCalibration, protocol.SetCalibrationPayload{Corners: corners})
}

// ClearCalibration drops the phone's stored calibration.
func (a *Agent) ClearCalibration() error {
	return a.send(protocol.EventClearCalibration, protocol.ClearCalibrationPayload{})
}

// RequestTorch asks the phone to toggle its torch. The phone's torch-state
// message is the only acknowledgement.
func (a *Agent) RequestTorch(on bool) error {
	return a.send(protocol.EventSetTorch, protocol.SetTorchPayload{On: on})
}

// send fires one command at the phone. No reply is awaited.
func (a *Agent) send(event string, payload any) error {
	a.mu.Lock()
	ch := a.ch
	sessionID := a.sessionID
	a.mu.Unlock()
	if ch == nil || sessionID == "" {
		return client.ErrNotConnected
	}

	msg, err := protocol.NewMessage(event, sessionID, payload)
	if err != nil {
		return err
	}
	return ch.Send(msg)
}

// SessionID returns the subscribed session id, empty when unsubscribed.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Connected reports whether the relay channel is up.
func (a *Agent) Connected() bool {
	a.mu.Lock()
	ch := a.ch
	a.mu.Unlock()
	return ch != nil && ch.Connected()
}

// LatestFrame returns a copy of the newest frame, nil before the first
// arrival.
func (a *Agent) LatestFrame() *Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil {
		return nil
	}
	frame := *a.latest
	return &frame
}

// TorchState returns the last reported torch state, nil before the first
// report.
func (a *Agent) TorchState() *protocol.TorchStatePayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.torch == nil {
		return nil
	}
	state := *a.torch
	return &state
}

// LastError returns the most recent relay error, empty when none arrived
// since the last subscribe.
func (a *Agent) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// SetOnFrame registers a hook invoked for every received frame, after the
// latest-frame slot was replaced. It runs on the channel's read goroutine.
func (a *Agent) SetOnFrame(fn func(Frame)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onFrame = fn
}

// SetTorchStateCallback registers a hook for torch-state reports.
func (a *Agent) SetTorchStateCallback(fn func(protocol.TorchStatePayload)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTorch = fn
}

// SetErrorCallback registers a hook for relay error events.
func (a *Agent) SetErrorCallback(fn func(reason string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onError = fn
}

// EnableAutoCalibration starts scanning raw frames with the detector and
// keeps the phone's calibration in sync with what it finds.
func (a *Agent) EnableAutoCalibration(calibrator *AutoCalibrator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autocal = calibrator
}

// DisableAutoCalibration stops the frame scanning. Any pushed calibration
// stays on the phone.
func (a *Agent) DisableAutoCalibration() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autocal = nil
}

// resubscribe re-emits join after the channel reconnects. Runs on the
// client's reconnect goroutine, once per re-establishment.
func (a *Agent) resubscribe() {
	a.mu.Lock()
	ch := a.ch
	sessionID := a.sessionID
	a.mu.Unlock()
	if ch == nil || sessionID == "" {
		return
	}

	msg, err := protocol.NewMessage(protocol.EventJoin, sessionID, protocol.JoinPayload{SessionID: sessionID})
	if err != nil {
		return
	}
	if err := ch.Send(msg); err != nil {
		log.Printf("[DesktopAgent] resubscribe session %s: %v", sessionID, err)
		return
	}
	log.Printf("[DesktopAgent] resubscribed to session %s", sessionID)
}

// HandleMessage processes one relay message. Wire it as the channel's
// receive handler.
func (a *Agent) HandleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.EventFrame:
		var payload protocol.FramePayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("[DesktopAgent] bad frame payload: %v", err)
			return
		}
		frame := Frame{
			SessionID:  payload.SessionID,
			ImageData:  payload.ImageData,
			Timestamp:  payload.Timestamp,
			Mode:       payload.Mode,
			Dimensions: payload.VideoDimensions,
			ReceivedAt: a.nowFunc(),
		}
		a.mu.Lock()
		a.latest = &frame
		onFrame := a.onFrame
		autocal := a.autocal
		a.mu.Unlock()
		if onFrame != nil {
			onFrame(frame)
		}
		if autocal != nil {
			autocal.Observe(frame)
		}

	case protocol.EventTorchState:
		var payload protocol.TorchStatePayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("[DesktopAgent] bad torch-state payload: %v", err)
			return
		}
		a.mu.Lock()
		a.torch = &payload
		onTorch := a.onTorch
		a.mu.Unlock()
		if onTorch != nil {
			onTorch(payload)
		}

	case protocol.EventError:
		var payload protocol.ErrorPayload
		if err := msg.Decode(&payload); err != nil {
			return
		}
		log.Printf("[DesktopAgent] relay error: %s", payload.Error)
		a.mu.Lock()
		a.lastError = payload.Error
		onError := a.onError
		a.mu.Unlock()
		if onError != nil {
			onError(payload.Error)
		}
	}
}

// Package phone implements the capture side of a relay session: it joins
// with the phone role, runs the throttled capture loop and reacts to desktop
// commands (mode switch, calibration push, torch).
package phone

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lenscast/lenscast/internal/client"
	"github.com/lenscast/lenscast/internal/media"
	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/vision"
)

// DefaultTargetFPS caps how many frames per second the capture loop accepts.
const DefaultTargetFPS = 10

// State describes where the agent is in its session lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
	StateCapturing    State = "capturing"
	StateDisconnected State = "disconnected"
)

// Channel is the relay connection the agent talks over. *client.Conn
// satisfies it.
type Channel interface {
	Send(msg protocol.Message) error
	Connected() bool
	SetOnReconnect(fn func())
}

// ticker abstracts time.Ticker so tests can drive the capture loop with a
// hand-fed channel.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Config tunes the capture pipeline. Zero values select the defaults.
type Config struct {
	Rectifier    vision.Rectifier
	TargetFPS    int
	RawWidth     int
	CroppedWidth int
	JPEGQuality  int
}

// Agent is the phone-side session endpoint. Commands received from the
// desktop update its fields; the capture loop reads them on the next tick,
// so a command never interrupts an in-flight capture.
type Agent struct {
	rectifier    vision.Rectifier
	targetFPS    int
	rawWidth     int
	croppedWidth int
	quality      int

	// newTicker builds the capture tick source. Overridden in tests.
	newTicker func(d time.Duration) ticker

	mu            sync.Mutex
	ch            Channel
	sessionID     string
	mode          protocol.FrameMode
	calibration   *protocol.CalibrationGrid
	connecting    bool
	sending       bool
	cancelCapture context.CancelFunc
	captureGen    int
	torchFn       func(on bool)
	errorFn       func(reason string)

	inFlight atomic.Bool
}

// New builds an agent with the given tuning. Bind a channel before calling
// Connect.
func New(cfg Config) *Agent {
	if cfg.Rectifier == nil {
		cfg.Rectifier = vision.CropRectifier{}
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = DefaultTargetFPS
	}
	if cfg.RawWidth <= 0 {
		cfg.RawWidth = media.DefaultRawWidth
	}
	if cfg.CroppedWidth <= 0 {
		cfg.CroppedWidth = media.DefaultCroppedWidth
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = media.DefaultJPEGQuality
	}

	return &Agent{
		rectifier:    cfg.Rectifier,
		targetFPS:    cfg.TargetFPS,
		rawWidth:     cfg.RawWidth,
		croppedWidth: cfg.CroppedWidth,
		quality:      cfg.JPEGQuality,
		mode:         protocol.FrameModeRaw,
		newTicker: func(d time.Duration) ticker {
			return realTicker{t: time.NewTicker(d)}
		},
	}
}

// Bind attaches the relay channel and registers the rejoin hook. Received
// messages must be routed to HandleMessage by the caller.
func (a *Agent) Bind(ch Channel) {
	a.mu.Lock()
	a.ch = ch
	a.mu.Unlock()
	if ch != nil {
		ch.SetOnReconnect(a.rejoin)
	}
}

// State derives the lifecycle state from the agent's fields. A set session
// id with a down channel reads as disconnected until the rejoin lands.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.connecting:
		return StateConnecting
	case a.sessionID == "":
		return StateIdle
	case a.ch == nil || !a.ch.Connected():
		return StateDisconnected
	case a.sending:
		return StateCapturing
	default:
		return StateJoined
	}
}

// SessionID returns the joined session id, empty when idle.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Mode returns the current frame mode.
func (a *Agent) Mode() protocol.FrameMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Calibration returns a copy of the stored grid, nil when uncalibrated.
func (a *Agent) Calibration() *protocol.CalibrationGrid {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calibration == nil {
		return nil
	}
	grid := *a.calibration
	return &grid
}

// IsSending reports whether the capture loop is running. A channel drop
// does not change it; capturing resumes when the rejoin lands.
func (a *Agent) IsSending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sending
}

// SetTorchCallback registers the hardware hook invoked on set-torch
// commands. The hook reports the outcome via EmitTorchState.
func (a *Agent) SetTorchCallback(fn func(on bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.torchFn = fn
}

// SetErrorCallback registers a hook for relay error events, such as joining
// an expired session.
func (a *Agent) SetErrorCallback(fn func(reason string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errorFn = fn
}

// Connect joins the session over the bound channel. Fails with
// client.ErrNotConnected while the channel is down; the caller repeats the
// call once connectivity returns. After a successful join, later channel
// reconnects rejoin automatically.
func (a *Agent) Connect(sessionID string) error {
	if sessionID == "" {
		return errors.New("phone: session id is empty")
	}

	a.mu.Lock()
	ch := a.ch
	if ch == nil || !ch.Connected() {
		a.mu.Unlock()
		return client.ErrNotConnected
	}
	a.connecting = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.connecting = false
		a.mu.Unlock()
	}()

	msg, err := protocol.NewMessage(protocol.EventJoin, sessionID, protocol.JoinPayload{SessionID: sessionID})
	if err != nil {
		return err
	}
	if err := ch.Send(msg); err != nil {
		return err
	}

	a.mu.Lock()
	a.sessionID = sessionID
	a.mu.Unlock()
	log.Printf("[PhoneAgent] joined session %s", sessionID)
	return nil
}

// StartSending begins the capture loop. A non-nil calibration seeds the
// stored grid and switches to cropped mode before the first tick.
func (a *Agent) StartSending(ctx context.Context, src media.Source, calibration *protocol.CalibrationGrid) error {
	if src == nil {
		return errors.New("phone: video source is required")
	}
	if calibration != nil {
		if err := calibration.Validate(); err != nil {
			return err
		}
	}

	a.mu.Lock()
	if a.sessionID == "" || a.ch == nil || !a.ch.Connected() {
		a.mu.Unlock()
		return client.ErrNotConnected
	}
	if a.sending {
		a.mu.Unlock()
		return errors.New("phone: capture loop already running")
	}
	if calibration != nil {
		grid := *calibration
		a.calibration = &grid
		a.mode = protocol.FrameModeCropped
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.sending = true
	a.cancelCapture = cancel
	a.captureGen++
	gen := a.captureGen
	a.mu.Unlock()

	go a.captureLoop(loopCtx, src, gen)
	return nil
}

// StopSending halts the capture loop without leaving the session. No tick
// fires after it returns.
func (a *Agent) StopSending() {
	a.mu.Lock()
	cancel := a.cancelCapture
	a.cancelCapture = nil
	a.sending = false
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Disconnect stops capturing, emits leave and returns to idle. Session id
// and calibration are cleared; a fresh Connect starts over in raw mode.
func (a *Agent) Disconnect() {
	a.StopSending()

	a.mu.Lock()
	ch := a.ch
	sessionID := a.sessionID
	a.sessionID = ""
	a.calibration = nil
	a.mode = protocol.FrameModeRaw
	a.mu.Unlock()

	if ch == nil || sessionID == "" {
		return
	}
	msg, err := protocol.NewMessage(protocol.EventLeave, sessionID, protocol.LeavePayload{SessionID: sessionID})
	if err != nil {
		return
	}
	if err := ch.Send(msg); err != nil && !errors.Is(err, client.ErrNotConnected) {
		log.Printf("[PhoneAgent] leave session %s: %v", sessionID, err)
	}
}

// EmitTorchState reports torch hardware status to the desktop.
func (a *Agent) EmitTorchState(on, available bool) error {
	a.mu.Lock()
	ch := a.ch
	sessionID := a.sessionID
	a.mu.Unlock()
	if ch == nil || sessionID == "" {
		return client.ErrNotConnected
	}

	msg, err := protocol.NewMessage(protocol.EventTorchState, sessionID,
		protocol.TorchStatePayload{IsTorchOn: on, IsTorchAvailable: available})
	if err != nil {
		return err
	}
	return ch.Send(msg)
}

// rejoin re-emits join after the channel reconnects. Runs on the client's
// reconnect goroutine, once per re-establishment. Without a session id it
// does nothing.
func (a *Agent) rejoin() {
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
		log.Printf("[PhoneAgent] rejoin session %s: %v", sessionID, err)
		return
	}
	log.Printf("[PhoneAgent] rejoined session %s", sessionID)
}

// HandleMessage processes one relay message. Wire it as the channel's
// receive handler; it only assigns state and must not block.
func (a *Agent) HandleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.EventSetMode:
		var payload protocol.SetModePayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("[PhoneAgent] bad set-mode payload: %v", err)
			return
		}
		if err := payload.Validate(); err != nil {
			log.Printf("[PhoneAgent] bad set-mode payload: %v", err)
			return
		}
		a.mu.Lock()
		a.mode = payload.Mode
		a.mu.Unlock()
		log.Printf("[PhoneAgent] frame mode set to %s", payload.Mode)

	case protocol.EventSetCalibration:
		var payload protocol.SetCalibrationPayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("[PhoneAgent] bad set-calibration payload: %v", err)
			return
		}
		grid := protocol.GridFromCorners(payload.Corners)
		a.mu.Lock()
		a.calibration = &grid
		a.mode = protocol.FrameModeCropped // calibration implies cropped
		a.mu.Unlock()

	case protocol.EventClearCalibration:
		a.mu.Lock()
		a.calibration = nil // mode stays, cropped ticks skip until recalibrated
		a.mu.Unlock()

	case protocol.EventSetTorch:
		var payload protocol.SetTorchPayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("[PhoneAgent] bad set-torch payload: %v", err)
			return
		}
		a.mu.Lock()
		torchFn := a.torchFn
		a.mu.Unlock()
		if torchFn == nil {
			a.EmitTorchState(false, false)
			return
		}
		torchFn(payload.On)

	case protocol.EventError:
		var payload protocol.ErrorPayload
		if err := msg.Decode(&payload); err != nil {
			return
		}
		log.Printf("[PhoneAgent] relay error: %s", payload.Error)
		a.mu.Lock()
		errorFn := a.errorFn
		a.mu.Unlock()
		if errorFn != nil {
			errorFn(payload.Error)
		}
	}
}

// captureLoop accepts ticks at most once per frame interval and never
// overlaps two captures. Tick timestamps drive the throttle so tests can
// feed a simulated clock through the ticker.
func (a *Agent) captureLoop(ctx context.Context, src media.Source, gen int) {
	interval := time.Second / time.Duration(a.targetFPS)
	tick := a.newTicker(interval)
	defer tick.Stop()
	defer func() {
		a.mu.Lock()
		if a.captureGen == gen {
			a.sending = false
			a.cancelCapture = nil
		}
		a.mu.Unlock()
	}()

	var last time.Time
	for {
		var now time.Time
		select {
		case <-ctx.Done():
			return
		case now = <-tick.C():
		}

		if !last.IsZero() && now.Sub(last) < interval {
			continue
		}

		a.mu.Lock()
		mode := a.mode
		calibrated := a.calibration != nil
		a.mu.Unlock()
		if mode == protocol.FrameModeCropped && !calibrated {
			continue // waiting for calibration
		}

		if !a.inFlight.CompareAndSwap(false, true) {
			continue
		}
		last = now
		go func() {
			defer a.inFlight.Store(false)
			a.captureFrame(ctx, src)
		}()
	}
}

// captureFrame grabs, encodes and sends one frame. Frames that fail to
// encode or that race a disconnect are dropped.
func (a *Agent) captureFrame(ctx context.Context, src media.Source) {
	frame, err := src.NextFrame(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[PhoneAgent] capture failed: %v", err)
		}
		return
	}

	a.mu.Lock()
	ch := a.ch
	sessionID := a.sessionID
	mode := a.mode
	grid := a.calibration
	a.mu.Unlock()
	if ch == nil || sessionID == "" {
		return
	}

	payload := protocol.FramePayload{
		SessionID: sessionID,
		Timestamp: frame.Timestamp,
		Mode:      mode,
	}
	switch mode {
	case protocol.FrameModeCropped:
		if grid == nil {
			return // calibration cleared after the tick was accepted
		}
		data, err := media.ProcessCropped(frame, a.rectifier, *grid, a.croppedWidth, a.quality)
		if err != nil {
			log.Printf("[PhoneAgent] rectify failed: %v", err)
			return
		}
		payload.ImageData = data
	default:
		data, dims, err := media.ProcessRaw(frame, a.rawWidth, a.quality)
		if err != nil {
			log.Printf("[PhoneAgent] encode failed: %v", err)
			return
		}
		payload.ImageData = data
		payload.VideoDimensions = &dims
	}

	if ctx.Err() != nil {
		return
	}

	msg, err := protocol.NewMessage(protocol.EventFrame, sessionID, payload)
	if err != nil {
		log.Printf("[PhoneAgent] build frame message: %v", err)
		return
	}
	if err := ch.Send(msg); err != nil && !errors.Is(err, client.ErrNotConnected) {
		// ErrNotConnected drops are expected mid-reconnect.
		log.Printf("[PhoneAgent] send frame: %v", err)
	}
}

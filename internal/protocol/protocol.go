package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies which end of a session a connection speaks for.
type Role string

const (
	RolePhone   Role = "phone"
	RoleDesktop Role = "desktop"
)

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RolePhone || r == RoleDesktop
}

// Other returns the opposite role. Unknown roles map to themselves.
func (r Role) Other() Role {
	switch r {
	case RolePhone:
		return RoleDesktop
	case RoleDesktop:
		return RolePhone
	}
	return r
}

// Relay event names. Directionality per event:
// join/leave go from either endpoint to the relay, frame and torch-state go
// phone → desktop, the set-* commands go desktop → phone, and error is sent
// by the relay to either endpoint.
const (
	EventJoin             = "join"
	EventLeave            = "leave"
	EventFrame            = "frame"
	EventSetMode          = "set-mode"
	EventSetCalibration   = "set-calibration"
	EventClearCalibration = "clear-calibration"
	EventSetTorch         = "set-torch"
	EventTorchState       = "torch-state"
	EventError            = "error"
)

// Relay error strings carried in the error event payload.
const (
	ErrorSessionNotFound = "session not found"
	ErrorSessionExpired  = "session expired"
	ErrorSessionClosed   = "session closed"
	ErrorInvalidPayload  = "invalid payload"
)

// Message is the wire envelope for every relay event. Payload holds the
// event-specific JSON object.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// NewMessage builds an envelope for the given event, marshalling payload.
// A nil payload produces an envelope without a payload object.
func NewMessage(event, sessionID string, payload any) (Message, error) {
	msg := Message{
		Type:      event,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: marshal %s payload: %w", event, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("protocol: %s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// JoinPayload asks the relay to attach the connection to a session under the
// connection's declared role.
type JoinPayload struct {
	SessionID string `json:"sessionId"`
}

// LeavePayload detaches the connection from a session.
type LeavePayload struct {
	SessionID string `json:"sessionId"`
}

// FramePayload carries one encoded camera frame. VideoDimensions is present
// only for raw frames; cropped frames omit it because their geometry is
// implied by the calibration.
type FramePayload struct {
	SessionID       string      `json:"sessionId"`
	ImageData       string      `json:"imageData"`
	Timestamp       time.Time   `json:"timestamp"`
	Mode            FrameMode   `json:"mode"`
	VideoDimensions *Dimensions `json:"videoDimensions,omitempty"`
}

// SetModePayload switches the phone's frame mode.
type SetModePayload struct {
	Mode FrameMode `json:"mode"`
}

// Validate rejects unknown modes.
func (p SetModePayload) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("protocol: unknown frame mode %q", p.Mode)
	}
	return nil
}

// SetCalibrationPayload pushes crop geometry to the phone. Receiving it also
// switches the phone to cropped mode.
type SetCalibrationPayload struct {
	Corners QuadCorners `json:"corners"`
}

// ClearCalibrationPayload drops the phone's stored calibration.
type ClearCalibrationPayload struct{}

// SetTorchPayload requests the phone toggle its torch.
type SetTorchPayload struct {
	On bool `json:"on"`
}

// TorchStatePayload reports the phone's torch hardware state.
type TorchStatePayload struct {
	IsTorchOn        bool `json:"isTorchOn"`
	IsTorchAvailable bool `json:"isTorchAvailable"`
}

// ErrorPayload carries a relay-surfaced error string.
type ErrorPayload struct {
	Error string `json:"error"`
}

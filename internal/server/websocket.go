package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lenscast/lenscast/internal/constants"
	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/relay"
	"github.com/lenscast/lenscast/internal/validate"
)

// sendQueueSize bounds the per-connection outbound queue. Frames arrive at
// capture rate; the relay drops on overflow rather than blocking the sender.
const sendQueueSize = 64

// Client represents one websocket peer. The declared role is fixed for the
// connection's lifetime; the session it speaks for changes via join/leave.
type Client struct {
	id     string
	role   protocol.Role
	conn   *websocket.Conn
	send   chan protocol.Message
	server *APIServer

	mu         sync.Mutex
	attachment *relay.Attachment
}

// handleWebsocket validates the declared role and upgrades the connection.
func (s *APIServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	role := protocol.Role(r.URL.Query().Get("role"))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid role %q", r.URL.Query().Get("role")))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] upgrade error: %v", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		role:   role,
		conn:   conn,
		send:   make(chan protocol.Message, sendQueueSize),
		server: s,
	}
	s.registerClient(client)

	go client.writePump()
	go client.readPump()
}

// Deliver implements relay.Endpoint. It hands the message to the write pump
// without blocking; a full queue drops the message.
func (c *Client) Deliver(msg protocol.Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump reads messages from the websocket connection.
func (c *Client) readPump() {
	defer func() {
		c.detach()
		c.server.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.WebsocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebsocketPongTimeout))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] read error: %v", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			// Currently we ignore non-text messages from clients
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WebSocket] error parsing message: %v", err)
			c.sendError("", protocol.ErrorInvalidPayload)
			continue
		}

		c.handleMessage(msg)
	}
}

// writePump writes queued messages and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebsocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebsocketWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebsocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.EventJoin:
		c.handleJoin(msg)
	case protocol.EventLeave:
		c.detach()
	case protocol.EventFrame:
		c.handleFrame(msg)
	case protocol.EventSetMode:
		c.handleSetMode(msg)
	case protocol.EventSetCalibration:
		c.handleSetCalibration(msg)
	case protocol.EventClearCalibration:
		c.handleClearCalibration(msg)
	case protocol.EventSetTorch:
		c.relayFrom(protocol.RoleDesktop, msg)
	case protocol.EventTorchState:
		c.relayFrom(protocol.RolePhone, msg)
	default:
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
	}
}

// handleJoin attaches the connection's role to the requested session. A
// failed join answers with an error event and leaves the connection open so
// the client can retry with a fresh id.
func (c *Client) handleJoin(msg protocol.Message) {
	sessionID := strings.TrimSpace(msg.SessionID)
	if sessionID == "" {
		var payload protocol.JoinPayload
		if err := msg.Decode(&payload); err == nil {
			sessionID = strings.TrimSpace(payload.SessionID)
		}
	}
	if sessionID == "" {
		c.sendError("", protocol.ErrorInvalidPayload)
		return
	}
	// Malformed ids cannot name a session; reject them without touching
	// the store.
	if !validate.SessionID(sessionID) {
		c.sendError(sessionID, protocol.ErrorSessionNotFound)
		return
	}

	sess, err := c.server.store.Get(sessionID)
	if err != nil {
		c.sendError(sessionID, protocol.ErrorSessionNotFound)
		return
	}
	// Expired sessions stay visible to the REST API until the reaper runs,
	// but they are not joinable.
	if sess.Expired(c.server.nowFunc()) {
		c.sendError(sessionID, protocol.ErrorSessionExpired)
		return
	}

	att, err := c.server.registry.Join(sessionID, c.role, c)
	if err != nil {
		log.Printf("[WebSocket] join session %s as %s: %v", sessionID, c.role, err)
		c.sendError(sessionID, protocol.ErrorInvalidPayload)
		return
	}

	c.mu.Lock()
	previous := c.attachment
	c.attachment = att
	c.mu.Unlock()

	if previous != nil && previous.SessionID != sessionID {
		if c.server.registry.Leave(previous) {
			c.server.store.SetJoined(previous.SessionID, c.role, false)
		}
	}

	c.server.store.Touch(sessionID)
	c.server.store.SetJoined(sessionID, c.role, true)
	log.Printf("[WebSocket] %s joined session %s", c.role, sessionID)
}

// detach drops the current attachment, if any. The joined flag is cleared
// only when this connection was still the live one for its role, so a
// superseded connection's late leave never detaches its replacement.
func (c *Client) detach() {
	c.mu.Lock()
	att := c.attachment
	c.attachment = nil
	c.mu.Unlock()

	if att == nil {
		return
	}
	if c.server.registry.Leave(att) {
		c.server.store.SetJoined(att.SessionID, c.role, false)
		log.Printf("[WebSocket] %s left session %s", c.role, att.SessionID)
	}
}

func (c *Client) handleFrame(msg protocol.Message) {
	if c.role != protocol.RolePhone {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	att := c.currentAttachment()
	if att == nil {
		return
	}

	// A phone that keeps sending keeps its session alive.
	c.server.store.Touch(att.SessionID)
	c.server.registry.Send(att, msg)
}

func (c *Client) handleSetMode(msg protocol.Message) {
	if c.role != protocol.RoleDesktop {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	var payload protocol.SetModePayload
	if err := msg.Decode(&payload); err != nil {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	if err := payload.Validate(); err != nil {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	att := c.currentAttachment()
	if att == nil {
		return
	}

	c.server.store.SetMode(att.SessionID, payload.Mode)
	c.server.registry.Send(att, msg)
}

func (c *Client) handleSetCalibration(msg protocol.Message) {
	if c.role != protocol.RoleDesktop {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	var payload protocol.SetCalibrationPayload
	if err := msg.Decode(&payload); err != nil {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	att := c.currentAttachment()
	if att == nil {
		return
	}

	grid := protocol.GridFromCorners(payload.Corners)
	c.server.store.SetCalibration(att.SessionID, &grid)
	c.server.registry.Send(att, msg)
}

func (c *Client) handleClearCalibration(msg protocol.Message) {
	if c.role != protocol.RoleDesktop {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	att := c.currentAttachment()
	if att == nil {
		return
	}

	c.server.store.SetCalibration(att.SessionID, nil)
	c.server.registry.Send(att, msg)
}

// relayFrom forwards msg to the counterpart when it came from the expected
// role, without touching session state.
func (c *Client) relayFrom(expected protocol.Role, msg protocol.Message) {
	if c.role != expected {
		c.sendError(msg.SessionID, protocol.ErrorInvalidPayload)
		return
	}
	if att := c.currentAttachment(); att != nil {
		c.server.registry.Send(att, msg)
	}
}

func (c *Client) currentAttachment() *relay.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// sendError reports a relay error to this connection.
func (c *Client) sendError(sessionID, reason string) {
	msg, err := protocol.NewMessage(protocol.EventError, sessionID, protocol.ErrorPayload{Error: reason})
	if err != nil {
		return
	}
	c.Deliver(msg)
}

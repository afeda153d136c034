package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lenscast/lenscast/internal/constants"
	"github.com/lenscast/lenscast/internal/protocol"
)

// ErrNotConnected is returned by Send while the websocket is down.
var ErrNotConnected = errors.New("client: not connected to relay")

// jitterFactor spreads reconnect attempts by up to ±25% so agents that
// lost the same daemon do not redial in lockstep.
const jitterFactor = 0.25

// Handler receives every message the relay delivers on the connection.
// It runs on the read-loop goroutine and must not block.
type Handler func(msg protocol.Message)

// Conn is a websocket connection to the relay that redials with
// exponential backoff after the first successful dial. Messages sent
// while disconnected are rejected with ErrNotConnected rather than
// queued; agents rejoin and resume on the reconnect callback.
type Conn struct {
	wsURL   string
	role    protocol.Role
	dialer  *websocket.Dialer
	handler Handler

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	closed      bool
	onReconnect func()

	writeMu sync.Mutex

	done chan struct{}
}

// Dial connects to the relay's websocket endpoint as the given role.
// The initial dial is synchronous; once it succeeds the connection
// maintains itself until Close is called.
func Dial(baseURL string, role protocol.Role, handler Handler) (*Conn, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("client: invalid role %q", role)
	}
	if handler == nil {
		return nil, fmt.Errorf("client: handler is required")
	}

	wsURL, err := makeWebsocketURL(baseURL, role)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		wsURL: wsURL,
		role:  role,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.WebsocketHandshakeTimeout,
		},
		handler: handler,
		done:    make(chan struct{}),
	}

	conn, _, err := c.dialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: connect to relay: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.run(conn)
	return c, nil
}

// makeWebsocketURL derives the websocket endpoint from the HTTP base URL.
func makeWebsocketURL(baseURL string, role protocol.Role) (string, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("client: parse relay URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("role", string(role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// run owns the connection lifecycle: read until the socket drops, then
// redial until Close or success.
func (c *Conn) run(conn *websocket.Conn) {
	for {
		c.readLoop(conn)

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		conn = c.redial()
		if conn == nil {
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		callback := c.onReconnect
		c.mu.Unlock()

		if callback != nil {
			callback()
		}
	}
}

// redial retries with exponential backoff until it gets a connection or
// the client is closed.
func (c *Conn) redial() *websocket.Conn {
	delay := constants.ReconnectMinBackoff
	for {
		select {
		case <-c.done:
			return nil
		case <-time.After(withJitter(delay)):
		}

		conn, _, err := c.dialer.Dial(c.wsURL, nil)
		if err == nil {
			log.Printf("[RelayConn] reconnected as %s", c.role)
			return conn
		}
		log.Printf("[RelayConn] reconnect failed (retrying in %s): %v", delay, err)

		delay *= 2
		if delay > constants.ReconnectMaxBackoff {
			delay = constants.ReconnectMaxBackoff
		}
	}
}

func withJitter(d time.Duration) time.Duration {
	factor := 1 + (rand.Float64()*2-1)*jitterFactor
	return time.Duration(float64(d) * factor)
}

// readLoop pumps messages to the handler until the connection drops.
func (c *Conn) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(constants.WebsocketPongTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(constants.WebsocketPongTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(constants.WebsocketWriteTimeout))
	})

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !c.isClosed() && !isNormalClose(err) {
				log.Printf("[RelayConn] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(constants.WebsocketPongTimeout))
		c.handler(msg)
	}
}

// Send writes one message to the relay.
func (c *Conn) Send(msg protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(constants.WebsocketWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("client: write %s: %w", msg.Type, err)
	}
	return nil
}

// Connected reports whether the websocket is currently up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetOnReconnect registers a callback fired after each successful
// redial. Agents use it to rejoin their session.
func (c *Conn) SetOnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = fn
}

// Close stops the reconnect loop and shuts the socket down. Safe to
// call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		deadline := time.Now().Add(constants.WebsocketWriteTimeout)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return conn.Close()
	}
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, io.EOF)
}

package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lenscast/lenscast/internal/protocol"
)

// newStubRelay runs a bare websocket endpoint that hands each upgraded
// connection to onConn. It stands in for the daemon so these tests
// exercise only the client side.
func newStubRelay(t *testing.T, onConn func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		onConn(conn, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMakeWebsocketURL(t *testing.T) {
	tests := []struct {
		input string
		role  protocol.Role
		want  string
	}{
		{input: "http://localhost:8787", role: protocol.RolePhone, want: "ws://localhost:8787/ws?role=phone"},
		{input: "https://cam.example.com/", role: protocol.RoleDesktop, want: "wss://cam.example.com/ws?role=desktop"},
		{input: "localhost:8787", role: protocol.RoleDesktop, want: "ws://localhost:8787/ws?role=desktop"},
	}

	for _, tt := range tests {
		got, err := makeWebsocketURL(tt.input, tt.role)
		if err != nil {
			t.Fatalf("makeWebsocketURL(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("makeWebsocketURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDialRejectsBadArguments(t *testing.T) {
	if _, err := Dial("http://localhost:0", "toaster", func(protocol.Message) {}); err == nil {
		t.Fatal("expected error for invalid role")
	}
	if _, err := Dial("http://localhost:0", protocol.RolePhone, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestDialFailsWhenRelayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	if _, err := Dial(server.URL, protocol.RolePhone, func(protocol.Message) {}); err == nil {
		t.Fatal("expected initial dial to fail when relay is unreachable")
	}
}

func TestDialSendsRoleAndReceivesMessages(t *testing.T) {
	roles := make(chan string, 1)
	server := newStubRelay(t, func(conn *websocket.Conn, r *http.Request) {
		roles <- r.URL.Query().Get("role")
		msg, err := protocol.NewMessage(protocol.EventTorchState, "ab12cd34",
			protocol.TorchStatePayload{IsTorchOn: true, IsTorchAvailable: true})
		if err != nil {
			t.Errorf("build message: %v", err)
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			t.Errorf("write message: %v", err)
		}
	})

	received := make(chan protocol.Message, 4)
	conn, err := Dial(server.URL, protocol.RoleDesktop, func(msg protocol.Message) {
		received <- msg
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case role := <-roles:
		if role != "desktop" {
			t.Fatalf("expected role query desktop, got %q", role)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upgrade")
	}

	select {
	case msg := <-received:
		if msg.Type != protocol.EventTorchState {
			t.Fatalf("expected torch-state, got %q", msg.Type)
		}
		if msg.SessionID != "ab12cd34" {
			t.Fatalf("expected session ab12cd34, got %q", msg.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}

func TestSendDeliversToRelay(t *testing.T) {
	received := make(chan protocol.Message, 4)
	server := newStubRelay(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			var msg protocol.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	})

	conn, err := Dial(server.URL, protocol.RolePhone, func(protocol.Message) {})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg, err := protocol.NewMessage(protocol.EventJoin, "ab12cd34", protocol.JoinPayload{SessionID: "ab12cd34"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := conn.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != protocol.EventJoin || got.SessionID != "ab12cd34" {
			t.Fatalf("unexpected message on relay side: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message on relay side")
	}
}

func TestSendAfterCloseReturnsErrNotConnected(t *testing.T) {
	server := newStubRelay(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn, err := Dial(server.URL, protocol.RolePhone, func(protocol.Message) {})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if !conn.Connected() {
		t.Fatal("expected Connected after dial")
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if conn.Connected() {
		t.Fatal("expected disconnected state after Close")
	}

	msg, err := protocol.NewMessage(protocol.EventLeave, "ab12cd34", nil)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := conn.Send(msg); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReconnectRedialsAndFiresCallback(t *testing.T) {
	var dials atomic.Int32
	server := newStubRelay(t, func(conn *websocket.Conn, r *http.Request) {
		if dials.Add(1) == 1 {
			conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn, err := Dial(server.URL, protocol.RolePhone, func(protocol.Message) {})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var reconnects atomic.Int32
	conn.SetOnReconnect(func() {
		reconnects.Add(1)
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if reconnects.Load() > 0 && conn.Connected() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if reconnects.Load() == 0 {
		t.Fatal("expected reconnect callback to fire after relay dropped the connection")
	}
	if !conn.Connected() {
		t.Fatal("expected connection to be re-established")
	}
	if dials.Load() < 2 {
		t.Fatalf("expected at least 2 dials, got %d", dials.Load())
	}

	msg, err := protocol.NewMessage(protocol.EventJoin, "ab12cd34", protocol.JoinPayload{SessionID: "ab12cd34"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := conn.Send(msg); err != nil {
		t.Fatalf("Send after reconnect: %v", err)
	}
}

func TestCloseDuringBackoffStopsRedialing(t *testing.T) {
	var dials atomic.Int32
	server := newStubRelay(t, func(conn *websocket.Conn, r *http.Request) {
		dials.Add(1)
		conn.Close()
	})

	conn, err := Dial(server.URL, protocol.RolePhone, func(protocol.Message) {})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Let the first drop land, then close while the redial timer runs.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && conn.Connected() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	settled := dials.Load()
	time.Sleep(800 * time.Millisecond)
	if got := dials.Load(); got > settled+1 {
		t.Fatalf("expected redialing to stop after Close, saw %d dials grow to %d", settled, got)
	}
}

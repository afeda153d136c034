package eventbus

import "time"

// Topic identifies a logical channel on the bus.
type Topic string

// Standard topics emitted by the daemon.
const (
	TopicSessionsLifecycle Topic = "sessions.lifecycle"
	TopicRelayTraffic      Topic = "relay.traffic"
	TopicRelayClients      Topic = "relay.clients"
)

// Source describes which component produced an event.
type Source string

const (
	SourceSessionStore Source = "session_store"
	SourceRelay        Source = "relay"
	SourceServer       Source = "server"
	SourceUnknown      Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// SessionState summarises lifecycle changes.
type SessionState string

const (
	SessionStateCreated SessionState = "created"
	SessionStateJoined  SessionState = "joined"
	SessionStateLeft    SessionState = "left"
	SessionStateClosed  SessionState = "closed"
	SessionStateExpired SessionState = "expired"
)

// SessionReasonExpired is the Reason value set on lifecycle events published
// by the reaper when a session's TTL elapses. Consumers can use this to
// distinguish expiry from an explicit close.
const SessionReasonExpired = "ttl_elapsed"

// SessionLifecycleEvent notifies consumers about session state transitions.
type SessionLifecycleEvent struct {
	SessionID string
	State     SessionState
	Role      string // party that triggered the transition, when one did
	Reason    string
}

// RelayTrafficEvent records one message routed between session peers.
// Delivered is false when the counterpart was absent or its queue was full.
type RelayTrafficEvent struct {
	SessionID string
	Event     string
	From      string
	Delivered bool
	Bytes     int
}

// RelayClientEvent informs about websocket connections attaching to or
// detaching from the relay.
type RelayClientEvent struct {
	SessionID string
	Role      string
	Connected bool
}

// ---------------------------------------------------------------------------
// Typed topic descriptors
// ---------------------------------------------------------------------------
// Each TopicDef binds a Topic constant to its payload type, enabling
// compile-time enforcement via Publish[T] and SubscribeTo[T].

// Sessions groups session-related topic descriptors.
var Sessions = struct {
	Lifecycle TopicDef[SessionLifecycleEvent]
}{
	Lifecycle: NewTopicDef[SessionLifecycleEvent](TopicSessionsLifecycle),
}

// Relay groups relay topic descriptors.
var Relay = struct {
	Traffic TopicDef[RelayTrafficEvent]
	Clients TopicDef[RelayClientEvent]
}{
	Traffic: NewTopicDef[RelayTrafficEvent](TopicRelayTraffic),
	Clients: NewTopicDef[RelayClientEvent](TopicRelayClients),
}

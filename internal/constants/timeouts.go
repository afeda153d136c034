package constants

import "time"

// Shared duration vocabulary used by timeouts, polling and retry checks.
// Keep these centralized to simplify system-wide timing tuning.
const (
	Duration5Milliseconds   = 5 * time.Millisecond
	Duration10Milliseconds  = 10 * time.Millisecond
	Duration25Milliseconds  = 25 * time.Millisecond
	Duration50Milliseconds  = 50 * time.Millisecond
	Duration100Milliseconds = 100 * time.Millisecond
	Duration200Milliseconds = 200 * time.Millisecond
	Duration250Milliseconds = 250 * time.Millisecond
	Duration500Milliseconds = 500 * time.Millisecond

	Duration1Second   = 1 * time.Second
	Duration2Seconds  = 2 * time.Second
	Duration3Seconds  = 3 * time.Second
	Duration5Seconds  = 5 * time.Second
	Duration10Seconds = 10 * time.Second
	Duration15Seconds = 15 * time.Second
	Duration30Seconds = 30 * time.Second
	Duration54Seconds = 54 * time.Second
	Duration60Seconds = 60 * time.Second

	Duration2Minutes  = 2 * time.Minute
	Duration5Minutes  = 5 * time.Minute
	Duration10Minutes = 10 * time.Minute
)

// Domain-level timeout constants.
const (
	// SessionTTL is how long a session survives without an active phone
	// connection before the reaper may purge it.
	SessionTTL = Duration10Minutes

	// SessionReapInterval is the polling period of the expiry reaper.
	SessionReapInterval = Duration30Seconds

	// WebsocketHandshakeTimeout bounds the client-side websocket dial.
	WebsocketHandshakeTimeout = Duration10Seconds

	// WebsocketWriteTimeout bounds individual websocket writes on both ends.
	WebsocketWriteTimeout = Duration10Seconds

	// WebsocketPongTimeout is the server-side read deadline; a peer that
	// stays silent longer than this is considered gone.
	WebsocketPongTimeout = Duration60Seconds

	// WebsocketPingInterval is how often the server pings attached peers.
	// Must be below WebsocketPongTimeout.
	WebsocketPingInterval = Duration54Seconds

	// ReconnectMinBackoff and ReconnectMaxBackoff bound the client-side
	// reconnect backoff schedule.
	ReconnectMinBackoff = Duration500Milliseconds
	ReconnectMaxBackoff = Duration30Seconds

	// APIRequestTimeout bounds CLI calls against the relay REST API.
	APIRequestTimeout = Duration10Seconds

	// ServiceShutdownTimeout bounds graceful shutdown of daemon services.
	ServiceShutdownTimeout = Duration5Seconds
)

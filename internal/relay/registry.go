package relay

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/lenscast/lenscast/internal/eventbus"
	"github.com/lenscast/lenscast/internal/protocol"
)

// Endpoint is the outbound half of one connection. Deliver hands a message
// to the connection's send queue without blocking; false means the queue was
// full or the connection is going away.
type Endpoint interface {
	Deliver(msg protocol.Message) bool
}

// Attachment is one role's registration on a session channel. Join returns
// it and Send/Leave take it, so the registry can tell a live connection from
// one that a newer join superseded.
type Attachment struct {
	SessionID string
	Role      protocol.Role

	endpoint Endpoint
	gen      uint64
}

// channel pairs at most one phone and one desktop attachment. Fields are
// guarded by the registry lock.
type channel struct {
	nextGen uint64
	phone   *Attachment
	desktop *Attachment
}

func (c *channel) current(role protocol.Role) *Attachment {
	if role == protocol.RolePhone {
		return c.phone
	}
	return c.desktop
}

func (c *channel) set(role protocol.Role, att *Attachment) {
	if role == protocol.RolePhone {
		c.phone = att
	} else {
		c.desktop = att
	}
}

func (c *channel) count() int {
	n := 0
	if c.phone != nil {
		n++
	}
	if c.desktop != nil {
		n++
	}
	return n
}

func (c *channel) attachments() []*Attachment {
	atts := make([]*Attachment, 0, 2)
	if c.phone != nil {
		atts = append(atts, c.phone)
	}
	if c.desktop != nil {
		atts = append(atts, c.desktop)
	}
	return atts
}

// Registry holds the per-session relay channels and routes messages between
// the two roles of each session. It performs no session validation; callers
// check the session store before joining.
type Registry struct {
	bus *eventbus.Bus

	mu       sync.RWMutex
	channels map[string]*channel

	lifecycle    eventbus.ServiceLifecycle
	lifecycleSub *eventbus.TypedSubscription[eventbus.SessionLifecycleEvent]
}

// NewRegistry creates an empty relay registry publishing traffic and client
// events on the given bus. A nil bus disables publishing.
func NewRegistry(bus *eventbus.Bus) *Registry {
	return &Registry{
		bus:      bus,
		channels: make(map[string]*channel),
	}
}

// Join attaches an endpoint to the session's channel under the given role,
// creating the channel on first use. A newer join supersedes any existing
// connection of the same role; the superseded attachment stays valid as a
// handle but its sends and leave become no-ops.
func (r *Registry) Join(sessionID string, role protocol.Role, ep Endpoint) (*Attachment, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("relay: empty session id")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("relay: invalid role %q", role)
	}
	if ep == nil {
		return nil, fmt.Errorf("relay: nil endpoint")
	}

	r.mu.Lock()
	ch, ok := r.channels[sessionID]
	if !ok {
		ch = &channel{}
		r.channels[sessionID] = ch
	}
	replaced := ch.current(role)
	ch.nextGen++
	att := &Attachment{
		SessionID: sessionID,
		Role:      role,
		endpoint:  ep,
		gen:       ch.nextGen,
	}
	ch.set(role, att)
	r.mu.Unlock()

	if replaced != nil {
		log.Printf("[Relay] Session %s: new %s connection supersedes the previous one", sessionID, role)
		r.publishClient(sessionID, role, false)
	}
	r.publishClient(sessionID, role, true)

	return att, nil
}

// Send routes msg to the attachment's counterpart. The result is true only
// when a live counterpart accepted the message; an absent counterpart or a
// full queue drops it. Sends from superseded attachments are ignored and
// report false without publishing traffic.
func (r *Registry) Send(att *Attachment, msg protocol.Message) bool {
	if att == nil {
		return false
	}

	r.mu.RLock()
	ch, ok := r.channels[att.SessionID]
	if !ok {
		r.mu.RUnlock()
		return false
	}
	if cur := ch.current(att.Role); cur == nil || cur.gen != att.gen {
		r.mu.RUnlock()
		return false
	}
	counterpart := ch.current(att.Role.Other())
	r.mu.RUnlock()

	delivered := false
	if counterpart != nil {
		delivered = counterpart.endpoint.Deliver(msg)
	}

	eventbus.Publish(context.Background(), r.bus, eventbus.Relay.Traffic, eventbus.SourceRelay, eventbus.RelayTrafficEvent{
		SessionID: att.SessionID,
		Event:     msg.Type,
		From:      string(att.Role),
		Delivered: delivered,
		Bytes:     len(msg.Payload),
	})

	return delivered
}

// Leave detaches the attachment from its channel and reports whether it was
// still the live connection for its role. When both roles are gone the
// channel is discarded; the session record itself lives until TTL or an
// explicit close. Leaves from superseded attachments are no-ops and return
// false, so a late disconnect never detaches its replacement.
func (r *Registry) Leave(att *Attachment) bool {
	if att == nil {
		return false
	}

	r.mu.Lock()
	ch, ok := r.channels[att.SessionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if cur := ch.current(att.Role); cur == nil || cur.gen != att.gen {
		r.mu.Unlock()
		return false
	}
	ch.set(att.Role, nil)
	empty := ch.count() == 0
	if empty {
		delete(r.channels, att.SessionID)
	}
	r.mu.Unlock()

	r.publishClient(att.SessionID, att.Role, false)
	if empty {
		log.Printf("[Relay] Discarded empty channel for session %s", att.SessionID)
	}
	return true
}

// Attached returns the number of live connections on the session's channel.
// The session reaper uses this to keep expired sessions with open
// connections alive.
func (r *Registry) Attached(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ch, ok := r.channels[sessionID]; ok {
		return ch.count()
	}
	return 0
}

// Connections returns the total number of live connections across all
// channels.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, ch := range r.channels {
		total += ch.count()
	}
	return total
}

// Start subscribes to session lifecycle events so closed and expired
// sessions tear their channels down.
func (r *Registry) Start(ctx context.Context) error {
	r.lifecycle.Start(ctx)

	r.lifecycleSub = eventbus.SubscribeTo(r.bus, eventbus.Sessions.Lifecycle,
		eventbus.WithSubscriptionName("relay_teardown"),
	)

	r.lifecycle.AddSubscriptions(r.lifecycleSub)
	r.lifecycle.Go(r.consumeLifecycleEvents)

	return nil
}

// Shutdown cancels the lifecycle consumer and waits for it to finish.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.lifecycle.Shutdown(ctx)
}

func (r *Registry) consumeLifecycleEvents(ctx context.Context) {
	eventbus.Consume(ctx, r.lifecycleSub, nil, func(event eventbus.SessionLifecycleEvent) {
		switch event.State {
		case eventbus.SessionStateClosed:
			r.teardown(event.SessionID, protocol.ErrorSessionClosed)
		case eventbus.SessionStateExpired:
			r.teardown(event.SessionID, protocol.ErrorSessionExpired)
		}
	})
}

// teardown discards the session's channel and tells each still-attached
// connection why. The connections stay open so clients can rejoin with a
// fresh session.
func (r *Registry) teardown(sessionID, reason string) {
	r.mu.Lock()
	ch, ok := r.channels[sessionID]
	var atts []*Attachment
	if ok {
		atts = ch.attachments()
		delete(r.channels, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	msg, err := protocol.NewMessage(protocol.EventError, sessionID, protocol.ErrorPayload{Error: reason})
	if err != nil {
		log.Printf("[Relay] Failed to build teardown notice for session %s: %v", sessionID, err)
	}
	for _, att := range atts {
		if err == nil {
			att.endpoint.Deliver(msg)
		}
		r.publishClient(sessionID, att.Role, false)
	}

	log.Printf("[Relay] Tore down channel for session %s: %s", sessionID, reason)
}

func (r *Registry) publishClient(sessionID string, role protocol.Role, connected bool) {
	eventbus.Publish(context.Background(), r.bus, eventbus.Relay.Clients, eventbus.SourceRelay, eventbus.RelayClientEvent{
		SessionID: sessionID,
		Role:      string(role),
		Connected: connected,
	})
}

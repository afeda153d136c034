package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lenscast/lenscast/internal/eventbus"
	"github.com/lenscast/lenscast/internal/protocol"
)

const namespace = "lenscast"

// metricsQueue sizes the per-topic subscription buffers. Traffic events
// arrive at frame rate, so give them room.
const metricsQueue = 256

// Metrics owns the daemon's Prometheus registry and keeps the domain
// collectors updated from bus events. It runs as a service under the
// daemon's service host.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsClosed  prometheus.Counter
	sessionsExpired prometheus.Counter

	relayConnections *prometheus.GaugeVec
	relayMessages    *prometheus.CounterVec
	relayDropped     *prometheus.CounterVec
	frameBytes       prometheus.Histogram

	bus       *eventbus.Bus
	lifecycle eventbus.ServiceLifecycle

	lifecycleSub *eventbus.TypedSubscription[eventbus.SessionLifecycleEvent]
	trafficSub   *eventbus.TypedSubscription[eventbus.RelayTrafficEvent]
	clientsSub   *eventbus.TypedSubscription[eventbus.RelayClientEvent]
}

// NewMetrics builds the registry with all lenscast collectors plus the Go
// runtime and process collectors. The event counter may be nil, which
// omits the per-topic bus metrics.
func NewMetrics(bus *eventbus.Bus, counter *EventCounter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bus:      bus,

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions in the store.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of sessions explicitly closed.",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total number of sessions reaped after TTL expiry.",
		}),

		relayConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Number of connections currently attached to relay channels.",
		}, []string{"role"}),
		relayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Total number of messages routed through the relay.",
		}, []string{"event"}),
		relayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Total number of relayed messages dropped for lack of a live counterpart.",
		}, []string{"event"}),
		frameBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_bytes",
			Help:      "Size in bytes of relayed frame payloads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 6), // 1KiB .. 1MiB
		}),
	}

	m.registry.MustRegister(
		m.sessionsActive,
		m.sessionsCreated,
		m.sessionsClosed,
		m.sessionsExpired,
		m.relayConnections,
		m.relayMessages,
		m.relayDropped,
		m.frameBytes,
	)
	m.registry.MustRegister(NewBusCollector(bus, counter))
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler for the daemon's API server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start subscribes to bus topics and begins consuming events.
func (m *Metrics) Start(ctx context.Context) error {
	m.lifecycle.Start(ctx)

	m.lifecycleSub = eventbus.SubscribeTo(m.bus, eventbus.Sessions.Lifecycle,
		eventbus.WithSubscriptionName("metrics_lifecycle"),
		eventbus.WithSubscriptionBuffer(metricsQueue),
	)
	m.trafficSub = eventbus.SubscribeTo(m.bus, eventbus.Relay.Traffic,
		eventbus.WithSubscriptionName("metrics_traffic"),
		eventbus.WithSubscriptionBuffer(metricsQueue),
	)
	m.clientsSub = eventbus.SubscribeTo(m.bus, eventbus.Relay.Clients,
		eventbus.WithSubscriptionName("metrics_clients"),
		eventbus.WithSubscriptionBuffer(metricsQueue),
	)

	m.lifecycle.AddSubscriptions(m.lifecycleSub, m.trafficSub, m.clientsSub)
	m.lifecycle.Go(m.consumeLifecycleEvents)
	m.lifecycle.Go(m.consumeTrafficEvents)
	m.lifecycle.Go(m.consumeClientEvents)

	return nil
}

// Shutdown cancels event consumers and waits for completion.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.lifecycle.Shutdown(ctx)
}

func (m *Metrics) consumeLifecycleEvents(ctx context.Context) {
	eventbus.Consume(ctx, m.lifecycleSub, nil, m.handleLifecycleEvent)
}

func (m *Metrics) consumeTrafficEvents(ctx context.Context) {
	eventbus.Consume(ctx, m.trafficSub, nil, m.handleTrafficEvent)
}

func (m *Metrics) consumeClientEvents(ctx context.Context) {
	eventbus.Consume(ctx, m.clientsSub, nil, m.handleClientEvent)
}

func (m *Metrics) handleLifecycleEvent(event eventbus.SessionLifecycleEvent) {
	switch event.State {
	case eventbus.SessionStateCreated:
		m.sessionsCreated.Inc()
		m.sessionsActive.Inc()
	case eventbus.SessionStateClosed:
		m.sessionsClosed.Inc()
		m.sessionsActive.Dec()
	case eventbus.SessionStateExpired:
		m.sessionsExpired.Inc()
		m.sessionsActive.Dec()
	}
}

func (m *Metrics) handleTrafficEvent(event eventbus.RelayTrafficEvent) {
	m.relayMessages.WithLabelValues(event.Event).Inc()
	if !event.Delivered {
		m.relayDropped.WithLabelValues(event.Event).Inc()
	}
	if event.Event == protocol.EventFrame && event.Bytes > 0 {
		m.frameBytes.Observe(float64(event.Bytes))
	}
}

func (m *Metrics) handleClientEvent(event eventbus.RelayClientEvent) {
	if event.Connected {
		m.relayConnections.WithLabelValues(event.Role).Inc()
	} else {
		m.relayConnections.WithLabelValues(event.Role).Dec()
	}
}

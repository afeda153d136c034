package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lenscast/lenscast/internal/eventbus"
	"github.com/lenscast/lenscast/internal/protocol"
)

func TestEventCounterSnapshot(t *testing.T) {
	counter := NewEventCounter()

	counter.OnPublish(eventbus.Envelope{Topic: eventbus.TopicSessionsLifecycle})
	counter.OnPublish(eventbus.Envelope{Topic: eventbus.TopicSessionsLifecycle})
	counter.OnPublish(eventbus.Envelope{Topic: eventbus.TopicRelayTraffic})

	snapshot := counter.Snapshot()

	if snapshot[eventbus.TopicSessionsLifecycle] != 2 {
		t.Fatalf("expected sessions.lifecycle count 2, got %d", snapshot[eventbus.TopicSessionsLifecycle])
	}
	if snapshot[eventbus.TopicRelayTraffic] != 1 {
		t.Fatalf("expected relay.traffic count 1, got %d", snapshot[eventbus.TopicRelayTraffic])
	}
	if _, exists := snapshot[""]; exists {
		t.Fatalf("expected empty topic to be ignored in snapshot")
	}
}

func TestMetricsExposition(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	counter := NewEventCounter()
	bus.AddObserver(counter)

	m := NewMetrics(bus, counter)

	bus.Publish(context.Background(), eventbus.Envelope{Topic: eventbus.TopicSessionsLifecycle})
	bus.Publish(context.Background(), eventbus.Envelope{Topic: eventbus.TopicRelayTraffic})

	m.frameBytes.Observe(2048)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	metrics := string(body)

	if !strings.Contains(metrics, `lenscast_eventbus_events_total{topic="relay.traffic"} 1`) {
		t.Fatalf("expected relay.traffic counter in metrics output:\n%s", metrics)
	}
	if !strings.Contains(metrics, `lenscast_eventbus_publish_total 2`) {
		t.Fatalf("expected publish_total counter in metrics output:\n%s", metrics)
	}
	if !strings.Contains(metrics, `lenscast_sessions_active 0`) {
		t.Fatalf("expected sessions_active gauge in metrics output:\n%s", metrics)
	}
	if !strings.Contains(metrics, `lenscast_frame_bytes_count 1`) {
		t.Fatalf("expected frame size histogram in metrics output:\n%s", metrics)
	}
	if !strings.Contains(metrics, "go_goroutines") {
		t.Fatalf("expected Go runtime metrics in output:\n%s", metrics)
	}
}

func TestSessionLifecycleMetricsFromEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	m := NewMetrics(bus, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	for _, state := range []eventbus.SessionState{
		eventbus.SessionStateCreated,
		eventbus.SessionStateCreated,
		eventbus.SessionStateClosed,
		eventbus.SessionStateExpired,
	} {
		eventbus.Publish(ctx, bus, eventbus.Sessions.Lifecycle, eventbus.SourceSessionStore, eventbus.SessionLifecycleEvent{
			SessionID: "abc12345",
			State:     state,
		})
	}

	// Events are consumed in order, so the expired counter moving means all
	// four are in.
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.sessionsExpired) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("lifecycle events were not consumed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := testutil.ToFloat64(m.sessionsCreated); got != 2 {
		t.Fatalf("sessions created %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sessionsClosed); got != 1 {
		t.Fatalf("sessions closed %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionsActive); got != 0 {
		t.Fatalf("sessions active %v, want 0", got)
	}
}

func TestRelayTrafficMetricsFromEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	m := NewMetrics(bus, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	eventbus.Publish(ctx, bus, eventbus.Relay.Traffic, eventbus.SourceRelay, eventbus.RelayTrafficEvent{
		SessionID: "abc12345",
		Event:     protocol.EventFrame,
		From:      string(protocol.RolePhone),
		Delivered: true,
		Bytes:     2048,
	})
	eventbus.Publish(ctx, bus, eventbus.Relay.Traffic, eventbus.SourceRelay, eventbus.RelayTrafficEvent{
		SessionID: "abc12345",
		Event:     protocol.EventSetMode,
		From:      string(protocol.RoleDesktop),
		Delivered: false,
	})

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.relayDropped.WithLabelValues(protocol.EventSetMode)) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("traffic events were not consumed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := testutil.ToFloat64(m.relayMessages.WithLabelValues(protocol.EventFrame)); got != 1 {
		t.Fatalf("frame messages %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.relayMessages.WithLabelValues(protocol.EventSetMode)); got != 1 {
		t.Fatalf("set-mode messages %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.relayDropped.WithLabelValues(protocol.EventFrame)); got != 0 {
		t.Fatalf("frame dropped %v, want 0", got)
	}
}

func TestRelayConnectionGaugeFromEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	m := NewMetrics(bus, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	eventbus.Publish(ctx, bus, eventbus.Relay.Clients, eventbus.SourceRelay, eventbus.RelayClientEvent{
		SessionID: "abc12345", Role: string(protocol.RolePhone), Connected: true,
	})
	eventbus.Publish(ctx, bus, eventbus.Relay.Clients, eventbus.SourceRelay, eventbus.RelayClientEvent{
		SessionID: "abc12345", Role: string(protocol.RoleDesktop), Connected: true,
	})

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.relayConnections.WithLabelValues("desktop")) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("client events were not consumed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	eventbus.Publish(ctx, bus, eventbus.Relay.Clients, eventbus.SourceRelay, eventbus.RelayClientEvent{
		SessionID: "abc12345", Role: string(protocol.RolePhone), Connected: false,
	})

	deadline = time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.relayConnections.WithLabelValues("phone")) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("disconnect event was not consumed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := testutil.ToFloat64(m.relayConnections.WithLabelValues("desktop")); got != 1 {
		t.Fatalf("desktop connections %v, want 1", got)
	}
}

func TestScrapeWhilePublishing(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	counter := NewEventCounter()
	bus.AddObserver(counter)

	m := NewMetrics(bus, counter)
	handler := m.Handler()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			bus.Publish(context.Background(), eventbus.Envelope{
				Topic: eventbus.TopicRelayTraffic,
			})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			if rec.Code != 200 {
				t.Errorf("scrape returned %d", rec.Code)
				return
			}
			if rec.Body.Len() == 0 {
				t.Error("expected metrics output to be non-empty")
				return
			}
		}
	}()

	wg.Wait()
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lenscast/lenscast/internal/eventbus"
)

// BusCollector exposes event bus counters to Prometheus at scrape time.
// The bus keeps its own atomic counters and the EventCounter observes
// per-topic publishes; this collector bridges both into the registry.
type BusCollector struct {
	bus     *eventbus.Bus
	counter *EventCounter

	eventsDesc  *prometheus.Desc
	publishDesc *prometheus.Desc
	droppedDesc *prometheus.Desc
}

// NewBusCollector constructs a collector backed by the provided bus and
// event counter. Either may be nil, in which case its metrics are omitted.
func NewBusCollector(bus *eventbus.Bus, counter *EventCounter) *BusCollector {
	return &BusCollector{
		bus:     bus,
		counter: counter,
		eventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "eventbus", "events_total"),
			"Total number of published events per topic.",
			[]string{"topic"}, nil,
		),
		publishDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "eventbus", "publish_total"),
			"Total number of events published on the bus.",
			nil, nil,
		),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "eventbus", "dropped_total"),
			"Total number of events dropped by the bus.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *BusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsDesc
	ch <- c.publishDesc
	ch <- c.droppedDesc
}

// Collect implements prometheus.Collector.
func (c *BusCollector) Collect(ch chan<- prometheus.Metric) {
	if c.counter != nil {
		for topic, count := range c.counter.Snapshot() {
			ch <- prometheus.MustNewConstMetric(c.eventsDesc, prometheus.CounterValue, float64(count), string(topic))
		}
	}
	if c.bus != nil {
		metrics := c.bus.Metrics()
		ch <- prometheus.MustNewConstMetric(c.publishDesc, prometheus.CounterValue, float64(metrics.PublishTotal))
		ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(metrics.DroppedTotal))
	}
}

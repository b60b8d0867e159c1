package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics tracks the live event feed.
type StreamMetrics struct {
	published   *prometheus.CounterVec
	dropped     prometheus.Counter
	subscribers prometheus.Gauge
}

var (
	streamOnce     sync.Once
	streamRegistry *StreamMetrics
)

// Stream returns the metrics registry for the websocket event feed.
func Stream() *StreamMetrics {
	streamOnce.Do(func() {
		streamRegistry = &StreamMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed contract events published to subscribers, by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "events",
				Name:      "subscriber_dropped_total",
				Help:      "Subscribers disconnected because they fell behind.",
			}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "quest",
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Currently connected event subscribers.",
			}),
		}
		prometheus.MustRegister(streamRegistry.published, streamRegistry.dropped, streamRegistry.subscribers)
	})
	return streamRegistry
}

// RecordPublish counts one published event.
func (m *StreamMetrics) RecordPublish(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(eventType).Inc()
}

// RecordDrop counts a subscriber evicted for lagging.
func (m *StreamMetrics) RecordDrop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// SetSubscribers updates the subscriber gauge.
func (m *StreamMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects the engine's counters and latency histograms.
// All methods are safe for concurrent use.
type Recorder struct {
	eventsProcessed   *prometheus.CounterVec
	processingLatency *prometheus.HistogramVec
	notifications     *prometheus.CounterVec
	eventsEnqueued    prometheus.Counter
	eventsDropped     prometheus.Counter
	observers         prometheus.Gauge
	queueUtilization  prometheus.Gauge

	mu         sync.Mutex
	total      int64
	latencySum float64
	byStatus   map[string]int64
}

// NewRecorder registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		eventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_events_processed_total",
			Help: "Total number of events fully processed, labelled by sensor type and status.",
		}, []string{"sensor_type", "status"}),

		processingLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_event_processing_seconds",
			Help:    "End-to-end event processing latency in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"sensor_type"}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_notifications_total",
			Help: "Notification attempts, labelled by channel and result.",
		}, []string{"channel", "result"}),

		eventsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_events_enqueued_total",
			Help: "Total number of events placed on the processing queue.",
		}),

		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_events_dropped_total",
			Help: "Total number of events rejected due to a full queue.",
		}),

		observers: f.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_observers",
			Help: "Live observers currently connected.",
		}),

		queueUtilization: f.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_queue_utilization_ratio",
			Help: "Current event queue utilization (0–1).",
		}),

		byStatus: make(map[string]int64),
	}
}

// ObserveLatency records the processing time of one event.
func (r *Recorder) ObserveLatency(sensorType string, seconds float64) {
	r.processingLatency.WithLabelValues(sensorType).Observe(seconds)
	r.mu.Lock()
	r.latencySum += seconds
	r.mu.Unlock()
}

// Increment counts one processed event.
func (r *Recorder) Increment(sensorType, status string) {
	r.eventsProcessed.WithLabelValues(sensorType, status).Inc()
	r.mu.Lock()
	r.total++
	r.byStatus[status]++
	r.mu.Unlock()
}

// NotificationResult counts one channel attempt. result is "success", "skipped" or "error".
func (r *Recorder) NotificationResult(channel, result string) {
	r.notifications.WithLabelValues(channel, result).Inc()
}

func (r *Recorder) EventEnqueued() { r.eventsEnqueued.Inc() }

func (r *Recorder) EventDropped() { r.eventsDropped.Inc() }

func (r *Recorder) SetObservers(n int) { r.observers.Set(float64(n)) }

func (r *Recorder) SetQueueUtilization(u float64) { r.queueUtilization.Set(u) }

// Summary is the dashboard view of the recorder.
type Summary struct {
	Events       int64            `json:"events_processed"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`
	ByStatus     map[string]int64 `json:"by_status"`
}

// Summary returns totals since process start.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Events: r.total, ByStatus: make(map[string]int64, len(r.byStatus))}
	for k, v := range r.byStatus {
		s.ByStatus[k] = v
	}
	if r.total > 0 {
		s.AvgLatencyMs = r.latencySum / float64(r.total) * 1000
	}
	return s
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Namespace prefixes every metric name.
const Namespace = "realtime"

// States reported by the connection_state gauge, in gauge order.
var connectionStates = []string{"disconnected", "connecting", "transport_open", "ready"}

// Metrics holds the process collectors.
type Metrics struct {
	registry *prometheus.Registry

	connectionState    *prometheus.GaugeVec
	framesReceived     *prometheus.CounterVec
	framesSent         *prometheus.CounterVec
	decodeErrors       prometheus.Counter
	reconnectScheduled prometheus.Counter
	reconnectAttempts  prometheus.Counter
	reconnectExhausted prometheus.Counter
	reconnectDelay     prometheus.Histogram
	eventsDispatched   *prometheus.CounterVec
	subscriberFailures *prometheus.CounterVec
	polls              *prometheus.CounterVec
	pollDuration       *prometheus.HistogramVec
	journalRows        prometheus.Counter
	journalDropped     prometheus.Counter
	journalFlushErrors prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
// If reg is non-nil the collectors are registered there as well.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_received_total",
			Help:      "Decoded inbound frames by kind.",
		}, []string{"kind"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames by kind.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		reconnectScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnect_scheduled_total",
			Help:      "Reconnect timers scheduled.",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect dials started.",
		}),
		reconnectExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Times the reconnect budget ran out.",
		}),
		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay of scheduled reconnects.",
			Buckets:   []float64{1, 2, 4, 8, 10, 30},
		}),
		eventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_dispatched_total",
			Help:      "Server events delivered to the dispatcher.",
		}, []string{"event"}),
		subscriberFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "subscriber_failures_total",
			Help:      "Subscriber errors and panics during dispatch.",
		}, []string{"event"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "polls_total",
			Help:      "Fallback polls by target and result.",
		}, []string{"target", "result"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "poll_duration_seconds",
			Help:      "Fallback poll latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		journalRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "journal_rows_written_total",
			Help:      "Events written to the journal table.",
		}),
		journalDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "journal_dropped_total",
			Help:      "Events dropped because the journal buffer was full.",
		}),
		journalFlushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "journal_flush_errors_total",
			Help:      "Failed journal batch writes.",
		}),
	}

	collectors := m.collectors()
	m.registry.MustRegister(collectors...)
	if reg != nil {
		reg.MustRegister(collectors...)
	}

	for _, s := range connectionStates {
		m.connectionState.WithLabelValues(s).Set(0)
	}
	m.connectionState.WithLabelValues("disconnected").Set(1)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectionState,
		m.framesReceived,
		m.framesSent,
		m.decodeErrors,
		m.reconnectScheduled,
		m.reconnectAttempts,
		m.reconnectExhausted,
		m.reconnectDelay,
		m.eventsDispatched,
		m.subscriberFailures,
		m.polls,
		m.pollDuration,
		m.journalRows,
		m.journalDropped,
		m.journalFlushErrors,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather collects all metric families (for tests and debug output).
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	if m == nil {
		return nil, nil
	}
	return m.registry.Gather()
}

// StateChanged sets the connection_state gauge to the given state.
func (m *Metrics) StateChanged(state string) {
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

// FrameReceived counts one decoded inbound frame.
func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

// FrameSent counts one outbound frame.
func (m *Metrics) FrameSent(kind string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
}

// DecodeError counts one dropped inbound frame.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// ReconnectAttempt counts one reconnect dial.
func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// ReconnectScheduled records a scheduled reconnect and its delay.
func (m *Metrics) ReconnectScheduled(_ int, delay time.Duration) {
	if m == nil {
		return
	}
	m.reconnectScheduled.Inc()
	m.reconnectDelay.Observe(delay.Seconds())
}

// ReconnectExhausted counts one exhausted retry budget.
func (m *Metrics) ReconnectExhausted() {
	if m == nil {
		return
	}
	m.reconnectExhausted.Inc()
}

// EventDispatched counts one dispatched server event.
func (m *Metrics) EventDispatched(name string) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(name).Inc()
}

// SubscriberFailed counts one failed subscriber call.
func (m *Metrics) SubscriberFailed(name string) {
	if m == nil {
		return
	}
	m.subscriberFailures.WithLabelValues(name).Inc()
}

// PollCompleted records one poll of target ("notifications" or "unread_count").
func (m *Metrics) PollCompleted(target string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(target, result).Inc()
	m.pollDuration.WithLabelValues(target).Observe(d.Seconds())
}

// JournalWritten counts rows flushed to the journal.
func (m *Metrics) JournalWritten(rows int) {
	if m == nil {
		return
	}
	m.journalRows.Add(float64(rows))
}

// JournalDropped counts one event the journal could not buffer.
func (m *Metrics) JournalDropped() {
	if m == nil {
		return
	}
	m.journalDropped.Inc()
}

// JournalFlushFailed counts one failed batch write.
func (m *Metrics) JournalFlushFailed() {
	if m == nil {
		return
	}
	m.journalFlushErrors.Inc()
}

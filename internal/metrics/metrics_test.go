package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetricFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StateChanged("ready")
		m.FrameReceived("event")
		m.FrameSent("pong")
		m.DecodeError()
		m.ReconnectAttempt()
		m.ReconnectScheduled(1, time.Second)
		m.ReconnectExhausted()
		m.EventDispatched("notification")
		m.SubscriberFailed("notification")
		m.PollCompleted("notifications", time.Millisecond, nil)
		m.JournalWritten(3)
		m.JournalDropped()
		m.JournalFlushFailed()
		_, _ = m.Gather()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestStateChanged_OneHot(t *testing.T) {
	m := New(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionState.WithLabelValues("disconnected")))

	m.StateChanged("ready")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionState.WithLabelValues("disconnected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionState.WithLabelValues("connecting")))
}

func TestCounters(t *testing.T) {
	m := New(nil)

	m.FrameReceived("event")
	m.FrameReceived("event")
	m.FrameSent("pong")
	m.DecodeError()
	m.ReconnectScheduled(1, 2*time.Second)
	m.ReconnectAttempt()
	m.ReconnectExhausted()
	m.EventDispatched("new_message")
	m.SubscriberFailed("new_message")
	m.PollCompleted("unread_count", 10*time.Millisecond, nil)
	m.PollCompleted("unread_count", 10*time.Millisecond, errors.New("boom"))
	m.JournalWritten(5)
	m.JournalDropped()
	m.JournalFlushFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesReceived.WithLabelValues("event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesSent.WithLabelValues("pong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectScheduled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectExhausted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDispatched.WithLabelValues("new_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscriberFailures.WithLabelValues("new_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("unread_count", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("unread_count", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.journalRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.journalDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.journalFlushErrors))

	families, err := m.Gather()
	require.NoError(t, err)
	delay := findMetricFamily(families, "realtime_reconnect_delay_seconds")
	require.NotNil(t, delay)
	assert.Equal(t, dto.MetricType_HISTOGRAM, delay.GetType())
	assert.Equal(t, uint64(1), delay.Metric[0].GetHistogram().GetSampleCount())
}

func TestNew_RegistersOnExternalRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.DecodeError()

	n, err := testutil.GatherAndCount(reg, "realtime_decode_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.FrameReceived("ping")

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `realtime_frames_received_total{kind="ping"} 1`))
}

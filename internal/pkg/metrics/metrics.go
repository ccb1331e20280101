/*
Package metrics exposes Prometheus collectors for the collaboration engine.

Collectors are registered on an injected prometheus.Registerer so tests can use a
private registry. All recording methods are safe to call on a nil *Metrics.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bpmncollab"

// Drop reasons used as the "reason" label of FramesDropped.
const (
	ReasonUnregistered     = "unregistered"
	ReasonMalformed        = "malformed"
	ReasonInvalidPayload   = "invalid_payload"
	ReasonIdentityMismatch = "identity_mismatch"
)

// Metrics groups the collectors recorded by the registry and the router.
type Metrics struct {
	activeConnections prometheus.Gauge
	activeSessions    prometheus.Gauge
	messagesRouted    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	sendFailures      prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of live collaboration connections",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions with at least one live connection",
		}),
		messagesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Inbound messages relayed to a session, by message type",
		}, []string{"type"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped without relay, by reason",
		}, []string{"reason"}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Deliveries that failed and tore down the target connection",
		}),
	}
}

// Handler serves the metrics gathered by g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SetActive records the current connection and session counts.
func (m *Metrics) SetActive(connections, sessions int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(connections))
	m.activeSessions.Set(float64(sessions))
}

// MessageRouted counts one relayed message of the given type.
func (m *Metrics) MessageRouted(messageType string) {
	if m == nil {
		return
	}
	m.messagesRouted.WithLabelValues(messageType).Inc()
}

// FrameDropped counts one dropped inbound frame.
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// SendFailed counts one failed delivery.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

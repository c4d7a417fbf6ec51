package connectivity

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the monitor's view of connectivity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	online      prometheus.Gauge
	transport   *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connwatch",
			Name:      "source_events_total",
			Help:      "Raw events received from the connectivity source.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connwatch",
			Name:      "transitions_total",
			Help:      "Online/offline transitions delivered to listeners.",
		}, []string{"state"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "connwatch",
			Name:      "online",
			Help:      "1 when the host is online, 0 otherwise.",
		}),
		transport: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "connwatch",
			Name:      "transport",
			Help:      "1 for the active transport, 0 for the others.",
		}, []string{"transport"}),
	}

	for _, t := range []Transport{None, Cellular, WiFi, Ethernet} {
		m.transport.WithLabelValues(t.String()).Set(0)
	}
	m.transport.WithLabelValues(None.String()).Set(1)

	if reg != nil {
		reg.MustRegister(m.events, m.transitions, m.online, m.transport)
	}
	return m
}

func (m *Metrics) observeEvent(kind EventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeReading(t Transport) {
	if m == nil {
		return
	}
	if StateOf(t) == Online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
	for _, candidate := range []Transport{None, Cellular, WiFi, Ethernet} {
		v := 0.0
		if candidate == t {
			v = 1
		}
		m.transport.WithLabelValues(candidate.String()).Set(v)
	}
}

func (m *Metrics) observeTransition(s State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(s.String()).Inc()
}

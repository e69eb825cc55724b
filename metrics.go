package ccs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the traffic going through a job. A nil *Metrics is valid
// and counts nothing.
type Metrics struct {
	requests   *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	unknown    prometheus.Counter
	replies    *prometheus.CounterVec
	merges     prometheus.Counter
}

// NewMetrics creates the job counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccs",
			Name:      "requests_total",
			Help:      "Client requests seen by the router, by route.",
		}, []string{"route"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccs",
			Name:      "dispatch_total",
			Help:      "Requests dispatched to a registered handler.",
		}, []string{"handler"}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ccs",
			Name:      "unknown_handler_total",
			Help:      "Requests naming no registered handler.",
		}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccs",
			Name:      "replies_total",
			Help:      "Replies leaving a PE, by path.",
		}, []string{"path"}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ccs",
			Name:      "merges_total",
			Help:      "Reductions completed on the forwarding PE.",
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.dispatched, m.unknown, m.replies, m.merges} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) request(route string) {
	if m != nil {
		m.requests.WithLabelValues(route).Inc()
	}
}

func (m *Metrics) dispatch(handler string) {
	if m != nil {
		m.dispatched.WithLabelValues(handler).Inc()
	}
}

func (m *Metrics) unknownHandler() {
	if m != nil {
		m.unknown.Inc()
	}
}

func (m *Metrics) reply(path string) {
	if m != nil {
		m.replies.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) merge() {
	if m != nil {
		m.merges.Inc()
	}
}

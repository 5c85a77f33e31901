package client

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects client-side counters.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
}

// NewMetrics creates the client counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantrypal_client_requests_total",
			Help: "Requests sent to the API, by method and response status.",
		}, []string{"method", "status"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantrypal_client_refresh_total",
			Help: "Access token refresh attempts, by result.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantrypal_client_outcomes_total",
			Help: "Terminal state of each Do call.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.requests, m.refreshes, m.outcomes)
	return m
}

func (m *Metrics) recordRequest(method string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, label).Inc()
}

func (m *Metrics) recordRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) recordOutcome(o outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o)).Inc()
}

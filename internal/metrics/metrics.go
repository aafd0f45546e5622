// Package metrics exposes Prometheus collectors for identifier issuance and
// credential verification.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	collisions    *prometheus.CounterVec
	issued        *prometheus.CounterVec
	attempts      *prometheus.HistogramVec
	exhausted     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	clientAuth    *prometheus.CounterVec
}

// New builds a registry with process and Go runtime collectors plus the service collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "identifier_collisions_total",
			Help:      "Candidate identifiers rejected because they were already taken.",
		}, []string{"kind"}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "identifiers_issued_total",
			Help:      "Identifiers successfully issued.",
		}, []string{"kind"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "accountd",
			Name:      "identifier_attempts",
			Help:      "Attempts needed to issue one identifier.",
			Buckets:   []float64{1, 2, 3, 5, 10, 50, 100, 1000},
		}, []string{"kind"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "identifier_exhausted_total",
			Help:      "Issuance requests that ran out of attempts.",
		}, []string{"kind"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "credential_verifications_total",
			Help:      "Basic credential verifications by outcome.",
		}, []string{"outcome"}),
		clientAuth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountd",
			Name:      "client_authorizations_total",
			Help:      "Client credential checks on content routes.",
		}, []string{"result"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.collisions, m.issued, m.attempts, m.exhausted, m.verifications, m.clientAuth,
	)
	return m
}

func (m *Metrics) Collision(kind string) { m.collisions.WithLabelValues(kind).Inc() }

func (m *Metrics) Issued(kind string, attempts int) {
	m.issued.WithLabelValues(kind).Inc()
	m.attempts.WithLabelValues(kind).Observe(float64(attempts))
}

func (m *Metrics) Exhausted(kind string) { m.exhausted.WithLabelValues(kind).Inc() }

// Verification counts one credential verification outcome.
func (m *Metrics) Verification(outcome string) {
	m.verifications.WithLabelValues(outcome).Inc()
}

// ClientAuthorization counts one client credential check.
func (m *Metrics) ClientAuthorization(ok bool) {
	result := "denied"
	if ok {
		result = "allowed"
	}
	m.clientAuth.WithLabelValues(result).Inc()
}

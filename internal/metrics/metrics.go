// Package metrics holds the Prometheus collectors for both apps.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modern360"

// Metrics owns a dedicated registry so each app (and each test) gets a clean
// set of collectors. All methods are safe on a nil receiver.
type Metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	mailSent     *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	logins       *prometheus.CounterVec
	invitations  prometheus.Counter
	deletions    *prometheus.CounterVec
}

// New builds the collectors for the named app ("user" or "admin").
func New(app string) *Metrics {
	constLabels := prometheus.Labels{"app": app}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.", ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency by method and route.", ConstLabels: constLabels,
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		mailSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mail", Name: "messages_total",
			Help: "Outgoing emails by kind and result.", ConstLabels: constLabels,
		}, []string{"kind", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "responses", Name: "submissions_total",
			Help: "Response submissions by type and result.", ConstLabels: constLabels,
		}, []string{"type", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "logins_total",
			Help: "Login attempts by method and result.", ConstLabels: constLabels,
		}, []string{"method", "result"}),
		invitations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "invitations", Name: "created_total",
			Help: "Invitations created.", ConstLabels: constLabels,
		}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "admin", Name: "deletions_total",
			Help: "Cascading deletions by entity and result.", ConstLabels: constLabels,
		}, []string{"entity", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.mailSent, m.submissions, m.logins, m.invitations, m.deletions,
	)
	return m
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) MailSent(kind string, err error) {
	if m == nil {
		return
	}
	m.mailSent.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) Submission(kind string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) Login(method string, err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, result(err)).Inc()
}

func (m *Metrics) InvitationsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invitations.Add(float64(n))
}

func (m *Metrics) Deletion(entity string, err error) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(entity, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

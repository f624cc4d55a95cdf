// Package metrics counts outbound source attempts, retries, and generated
// packages. A run writes its counters to a node-exporter textfile.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/open-verix/timeproof/internal/evidence"
)

const namespace = "timeproof"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
)

// Metrics holds the collectors of one process run on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	sourceAttempts *prometheus.CounterVec
	retries        *prometheus.CounterVec
	packages       *prometheus.CounterVec
	publishChecks  *prometheus.CounterVec
	lastPackage    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sourceAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attempts_total",
			Help:      "Oracle source attempts by chain, source and outcome.",
		}, []string{"chain", "source", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "HTTP retries by host and triggering status.",
		}, []string{"host", "status"}),
		packages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_total",
			Help:      "Evidence packages written, by completeness.",
		}, []string{"outcome"}),
		publishChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_checks_total",
			Help:      "Publication URL probes by outcome.",
		}, []string{"outcome"}),
		lastPackage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_package_timestamp_seconds",
			Help:      "Creation time of the most recent package.",
		}),
	}

	m.reg.MustRegister(m.sourceAttempts, m.retries, m.packages, m.publishChecks, m.lastPackage)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveSource counts one oracle attempt. Its signature matches
// oracle.Observer.
func (m *Metrics) ObserveSource(chain, source string, err error) {
	m.sourceAttempts.WithLabelValues(chain, source, outcome(err == nil)).Inc()
}

// ObserveRetry counts one retry. Its signature matches
// transport.RetryObserver.
func (m *Metrics) ObserveRetry(req *http.Request, status int) {
	host := ""
	if req != nil && req.URL != nil {
		host = req.URL.Host
	}
	m.retries.WithLabelValues(host, strconv.Itoa(status)).Inc()
}

// ObservePackage counts a written package and its publish checks.
func (m *Metrics) ObservePackage(rec *evidence.Record) {
	if rec == nil {
		return
	}
	label := OutcomeComplete
	if !rec.Complete() {
		label = OutcomePartial
	}
	m.packages.WithLabelValues(label).Inc()
	m.lastPackage.Set(float64(rec.CreatedAt.Unix()))

	for _, c := range rec.PublishChecks {
		m.publishChecks.WithLabelValues(outcome(c.OK())).Inc()
	}
}

// WriteTextfile writes every collector to path in the text exposition
// format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

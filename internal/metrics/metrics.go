package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records box office activity. A nil *Metrics is a no-op, so
// components can be built without a registry in tests.
type Metrics struct {
	orders      *prometheus.CounterVec
	tamper      prometheus.Counter
	fulfillment *prometheus.CounterVec
	checkIns    *prometheus.CounterVec
	scans       *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers the box office metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_order_transitions_total",
			Help: "Committed order stage transitions.",
		}, []string{"stage"}),
		tamper: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxoffice_client_total_mismatch_total",
			Help: "Payments where the client-submitted total differed from the computed one.",
		}),
		fulfillment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_fulfillment_total",
			Help: "Fulfillment side effects by channel and outcome.",
		}, []string{"channel", "outcome"}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_check_ins_total",
			Help: "Ticket units written to the check-in ledger.",
		}, []string{"checked_in"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_scans_total",
			Help: "Scanner resolutions by result code.",
		}, []string{"result"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boxoffice_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.orders, m.tamper, m.fulfillment, m.checkIns, m.scans, m.httpLatency)
	return m
}

func (m *Metrics) OrderTransition(stage string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(stage)).Inc()
}

func (m *Metrics) ClientTotalMismatch() {
	if m == nil {
		return
	}
	m.tamper.Inc()
}

// Fulfillment counts one side effect. outcome is delivered, failed or skipped.
func (m *Metrics) Fulfillment(channel, outcome string) {
	if m == nil {
		return
	}
	m.fulfillment.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) CheckIns(checkedIn bool, units int) {
	if m == nil || units <= 0 {
		return
	}
	label := "false"
	if checkedIn {
		label = "true"
	}
	m.checkIns.WithLabelValues(label).Add(float64(units))
}

func (m *Metrics) Scan(result string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, normalizeLabel(route), status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

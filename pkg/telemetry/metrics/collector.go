package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for the governance core.
// Routing metrics are scraped from the router's statistics snapshot at
// collection time (see ObserveRouter); workflow metrics are fed from
// notification events by the Observer; notification delivery failures
// are counted through the dispatcher's failure hook.
type Collector struct {
	registry *prometheus.Registry

	budgetRejections    *prometheus.CounterVec
	budgetWarnings      *prometheus.CounterVec
	approvalTransitions *prometheus.CounterVec
	toggleChanges       prometheus.Counter
	chainAlerts         *prometheus.CounterVec
	notificationsFailed prometheus.Counter
}

// NewCollector creates and registers all metrics under the given
// namespace on a fresh registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		budgetRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "costs",
			Name:      "budget_rejections_total",
			Help:      "Usage recordings rejected by an exhausted budget.",
		}, []string{"scope"}),

		budgetWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "costs",
			Name:      "budget_warnings_total",
			Help:      "Budget warning threshold crossings.",
		}, []string{"scope"}),

		approvalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "transitions_total",
			Help:      "Recommendation workflow transitions by kind.",
		}, []string{"scope", "transition"}),

		toggleChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "toggles",
			Name:      "changes_total",
			Help:      "Feature toggle mutations.",
		}),

		chainAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "chain_alerts_total",
			Help:      "Audit chain verification runs that found a broken chain.",
		}, []string{"scope"}),

		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Webhook notification deliveries that failed.",
		}),
	}

	registry.MustRegister(
		c.budgetRejections,
		c.budgetWarnings,
		c.approvalTransitions,
		c.toggleChanges,
		c.chainAlerts,
		c.notificationsFailed,
	)
	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RouterSnapshot is the router statistics view the routing metrics are
// scraped from.
type RouterSnapshot struct {
	TotalRequests      int64
	CacheHits          int64
	FallbackCount      int64
	ApprovalFlagged    int64
	Errors             int64
	RequestsPerBackend map[string]int64
}

// ObserveRouter registers routing metrics backed by the given snapshot
// function. The snapshot is taken on every scrape.
func (c *Collector) ObserveRouter(namespace string, snapshot func() RouterSnapshot) {
	c.registry.MustRegister(&routerStatsCollector{
		snapshot: snapshot,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "requests_total"),
			"Routing requests processed.", nil, nil),
		cacheHits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "cache_hits_total"),
			"Routing decisions served from the decision cache.", nil, nil),
		fallbacks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "fallbacks_total"),
			"Routing decisions that selected a non-primary backend.", nil, nil),
		flagged: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "approval_flagged_total"),
			"Routing decisions flagged for approval.", nil, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "errors_total"),
			"Routing failures.", nil, nil),
		perBackend: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "backend_requests_total"),
			"Routing decisions per selected backend.", []string{"backend"}, nil),
	})
}

// RecordBudgetRejection counts a usage recording rejected by budget.
func (c *Collector) RecordBudgetRejection(scope string) {
	c.budgetRejections.WithLabelValues(scope).Inc()
}

// RecordBudgetWarning counts a warning threshold crossing.
func (c *Collector) RecordBudgetWarning(scope string) {
	c.budgetWarnings.WithLabelValues(scope).Inc()
}

// RecordApprovalTransition counts one recommendation transition.
func (c *Collector) RecordApprovalTransition(scope, transition string) {
	c.approvalTransitions.WithLabelValues(scope, transition).Inc()
}

// RecordToggleChange counts one toggle mutation.
func (c *Collector) RecordToggleChange() {
	c.toggleChanges.Inc()
}

// RecordChainAlert counts one broken-chain verification result.
func (c *Collector) RecordChainAlert(scope string) {
	c.chainAlerts.WithLabelValues(scope).Inc()
}

// RecordNotificationFailure counts one failed webhook delivery.
func (c *Collector) RecordNotificationFailure() {
	c.notificationsFailed.Inc()
}

// routerStatsCollector scrapes router statistics into Prometheus
// metrics at collection time, keeping the routing hot path free of
// metric updates beyond its own atomic counters.
type routerStatsCollector struct {
	snapshot   func() RouterSnapshot
	requests   *prometheus.Desc
	cacheHits  *prometheus.Desc
	fallbacks  *prometheus.Desc
	flagged    *prometheus.Desc
	errors     *prometheus.Desc
	perBackend *prometheus.Desc
}

// Describe implements prometheus.Collector.
func (r *routerStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.requests
	ch <- r.cacheHits
	ch <- r.fallbacks
	ch <- r.flagged
	ch <- r.errors
	ch <- r.perBackend
}

// Collect implements prometheus.Collector.
func (r *routerStatsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := r.snapshot()

	ch <- prometheus.MustNewConstMetric(r.requests, prometheus.CounterValue, float64(snap.TotalRequests))
	ch <- prometheus.MustNewConstMetric(r.cacheHits, prometheus.CounterValue, float64(snap.CacheHits))
	ch <- prometheus.MustNewConstMetric(r.fallbacks, prometheus.CounterValue, float64(snap.FallbackCount))
	ch <- prometheus.MustNewConstMetric(r.flagged, prometheus.CounterValue, float64(snap.ApprovalFlagged))
	ch <- prometheus.MustNewConstMetric(r.errors, prometheus.CounterValue, float64(snap.Errors))

	for backend, count := range snap.RequestsPerBackend {
		ch <- prometheus.MustNewConstMetric(r.perBackend, prometheus.CounterValue, float64(count), backend)
	}
}

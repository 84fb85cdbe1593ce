package metrics

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/opscart/site-optimizer/pkg/fsutil"
	"github.com/opscart/site-optimizer/pkg/models"
)

const namespace = "site_optimizer"

// Metrics holds the collectors for one process on a private registry
type Metrics struct {
	registry *prometheus.Registry

	deployActions      *prometheus.CounterVec
	deploymentDuration prometheus.Histogram
	lastDeployment     prometheus.Gauge
	sites              *prometheus.GaugeVec
	servers            *prometheus.GaugeVec
	ramUtilization     *prometheus.GaugeVec
	classified         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deployActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploy_actions_total",
			Help:      "Per-site deployment actions by target tier and outcome.",
		}, []string{"tier", "outcome"}),
		deploymentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Wall time of batch deployments.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		lastDeployment: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_deployment_timestamp_seconds",
			Help:      "Completion time of the last batch deployment.",
		}),
		sites: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sites",
			Help:      "Inventory sites by assigned tier.",
		}, []string{"tier"}),
		servers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "servers",
			Help:      "Inventory servers by capacity status.",
		}, []string{"status"}),
		ramUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_ram_utilization_percent",
			Help:      "Estimated tier RAM demand over available RAM.",
		}, []string{"server"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classified_sites_total",
			Help:      "Sites assigned a tier by automatic classification.",
		}, []string{"tier"}),
	}

	m.registry.MustRegister(
		m.deployActions,
		m.deploymentDuration,
		m.lastDeployment,
		m.sites,
		m.servers,
		m.ramUtilization,
		m.classified,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDeployment records every action of d and, once d has finished, its duration.
func (m *Metrics) ObserveDeployment(d *models.Deployment) {
	tier := strconv.Itoa(int(d.Tier))
	for _, a := range d.Actions {
		outcome := string(a.Outcome)
		if outcome == "" {
			outcome = string(a.Status)
		}
		m.deployActions.WithLabelValues(tier, outcome).Inc()
	}

	if d.StartedAt != nil && d.CompletedAt != nil {
		m.deploymentDuration.Observe(d.CompletedAt.Sub(*d.StartedAt).Seconds())
		m.lastDeployment.Set(float64(d.CompletedAt.Unix()))
	}
}

// ObserveClassification records the sites a classify-all pass assigned.
func (m *Metrics) ObserveClassification(c models.ClassificationCounts) {
	m.classified.WithLabelValues("1").Add(float64(c.Tier1))
	m.classified.WithLabelValues("2").Add(float64(c.Tier2))
	m.classified.WithLabelValues("3").Add(float64(c.Tier3))
}

// SetInventory replaces the inventory gauges.
func (m *Metrics) SetInventory(stats models.InventoryStatistics, capacity []models.CapacityValidation) {
	m.sites.WithLabelValues("1").Set(float64(stats.Tiers.Tier1))
	m.sites.WithLabelValues("2").Set(float64(stats.Tiers.Tier2))
	m.sites.WithLabelValues("3").Set(float64(stats.Tiers.Tier3))
	m.sites.WithLabelValues("unassigned").Set(float64(stats.Tiers.Unassigned))

	for _, status := range models.AllServerStatuses {
		m.servers.WithLabelValues(string(status)).Set(float64(stats.ServerStatus[status]))
	}

	m.ramUtilization.Reset()
	for _, v := range capacity {
		m.ramUtilization.WithLabelValues(v.Hostname).Set(v.UtilizationPercent)
	}
}

// WriteTextfile writes the registry in text format to path for the node
// exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return errors.Annotate(err, "gathering metrics")
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return errors.Annotatef(err, "encoding %s", mf.GetName())
		}
	}

	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0644)
}

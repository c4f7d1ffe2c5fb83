package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for dbnexus.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive  prometheus.Gauge
	connectionsIdle    prometheus.Gauge
	connectionsTotal   prometheus.Gauge
	connectionsWaiting prometheus.Gauge

	acquireDuration *prometheus.HistogramVec
	queryDuration   *prometheus.HistogramVec

	permissionDenials *prometheus.CounterVec

	healthCheckDuration *prometheus.HistogramVec

	migrationsApplied prometheus.Counter
}

// New creates and registers all metrics on a fresh registry. Safe to call
// multiple times — each call gets an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbnexus_connections_active",
			Help: "Number of connections currently lent to sessions",
		}),
		connectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbnexus_connections_idle",
			Help: "Number of idle connections in the pool",
		}),
		connectionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbnexus_connections_total",
			Help: "Total number of live connections",
		}),
		connectionsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dbnexus_connections_waiting",
			Help: "Number of goroutines waiting to acquire a connection",
		}),
		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbnexus_acquire_duration_seconds",
				Help:    "Time spent waiting for a pool connection",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbnexus_query_duration_seconds",
				Help:    "Duration of gated statements",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"operation", "status"},
		),
		permissionDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbnexus_permission_denials_total",
				Help: "Denied permission checks",
			},
			[]string{"role", "table", "operation"},
		),
		healthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbnexus_health_check_duration_seconds",
				Help:    "Duration of connection health probes",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"status"},
		),
		migrationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dbnexus_migrations_applied_total",
			Help: "Successfully applied schema migrations",
		}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsIdle,
		c.connectionsTotal,
		c.connectionsWaiting,
		c.acquireDuration,
		c.queryDuration,
		c.permissionDenials,
		c.healthCheckDuration,
		c.migrationsApplied,
	)

	return c
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// UpdatePoolStats updates the pool gauges.
func (c *Collector) UpdatePoolStats(active, idle, total, waiting int) {
	c.connectionsActive.Set(float64(active))
	c.connectionsIdle.Set(float64(idle))
	c.connectionsTotal.Set(float64(total))
	c.connectionsWaiting.Set(float64(waiting))
}

// AcquireDuration observes one pool acquisition.
func (c *Collector) AcquireDuration(d time.Duration, success bool) {
	c.acquireDuration.WithLabelValues(statusLabel(success)).Observe(d.Seconds())
}

// QueryDuration observes one gated statement.
func (c *Collector) QueryDuration(operation string, d time.Duration, success bool) {
	c.queryDuration.WithLabelValues(operation, statusLabel(success)).Observe(d.Seconds())
}

// PermissionDenied counts a denied check.
func (c *Collector) PermissionDenied(role, table, operation string) {
	c.permissionDenials.WithLabelValues(role, table, operation).Inc()
}

// HealthCheckCompleted records a probe duration and result.
func (c *Collector) HealthCheckCompleted(d time.Duration, healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	c.healthCheckDuration.WithLabelValues(status).Observe(d.Seconds())
}

// MigrationApplied counts one applied migration.
func (c *Collector) MigrationApplied() {
	c.migrationsApplied.Inc()
}

// Package metrics exposes Prometheus counters for module resolution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tier labels for ResolutionsTotal.
const (
	TierCache     = "cache"
	TierLoaded    = "loaded"
	TierHeuristic = "heuristic"
	TierScan      = "scan"
)

// Collector holds the resolution metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	ResolutionsTotal   *prometheus.CounterVec
	ResolutionMisses   *prometheus.CounterVec
	ProbesTotal        *prometheus.CounterVec
	LoadFailures       *prometheus.CounterVec
	IndexDirectories   prometheus.Gauge
	CacheEntries       *prometheus.GaugeVec
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector on its own registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modpath",
				Name:      "resolutions_total",
				Help:      "Successful resolutions by resolver and tier",
			},
			[]string{"resolver", "tier"},
		),
		ResolutionMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modpath",
				Name:      "resolution_misses_total",
				Help:      "Names no tier could resolve",
			},
			[]string{"resolver"},
		),
		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modpath",
				Name:      "probes_total",
				Help:      "Candidate files checked on disk",
			},
			[]string{"resolver"},
		),
		LoadFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modpath",
				Name:      "load_failures_total",
				Help:      "Candidate files that existed but failed to load",
			},
			[]string{"resolver"},
		),
		IndexDirectories: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "modpath",
				Name:      "index_directories",
				Help:      "Directories in the current search path index",
			},
		),
		CacheEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "modpath",
				Name:      "cache_entries",
				Help:      "Names in each resolver's cache",
			},
			[]string{"resolver"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "modpath",
				Name:      "config_reloads_total",
				Help:      "Successful configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "modpath",
				Name:      "config_reload_errors_total",
				Help:      "Configuration reloads that fell back to an empty index",
			},
		),
	}
}

// Registry returns the registry the collector is registered with.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Resolved records a hit in tier.
func (c *Collector) Resolved(resolver, tier string) {
	if c == nil {
		return
	}
	c.ResolutionsTotal.WithLabelValues(resolver, tier).Inc()
}

// Missed records a name no tier resolved.
func (c *Collector) Missed(resolver string) {
	if c == nil {
		return
	}
	c.ResolutionMisses.WithLabelValues(resolver).Inc()
}

// Probed records one on-disk candidate check.
func (c *Collector) Probed(resolver string) {
	if c == nil {
		return
	}
	c.ProbesTotal.WithLabelValues(resolver).Inc()
}

// LoadFailed records a candidate that existed but could not be loaded.
func (c *Collector) LoadFailed(resolver string) {
	if c == nil {
		return
	}
	c.LoadFailures.WithLabelValues(resolver).Inc()
}

// SetIndexSize records the size of the active index.
func (c *Collector) SetIndexSize(n int) {
	if c == nil {
		return
	}
	c.IndexDirectories.Set(float64(n))
}

// SetCacheSize records the size of a resolver's cache.
func (c *Collector) SetCacheSize(resolver string, n int) {
	if c == nil {
		return
	}
	c.CacheEntries.WithLabelValues(resolver).Set(float64(n))
}

// Reloaded records a configuration reload; ok is false when the reload hit a
// configuration error.
func (c *Collector) Reloaded(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.ConfigReloads.Inc()
		return
	}
	c.ConfigReloadErrors.Inc()
}

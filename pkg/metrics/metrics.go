// Package metrics provides Prometheus metrics collection and exposition for
// the provisioner.
//
// Store metrics are synced periodically from kvstore.Stats as deltas.
// Provisioning metrics are pushed directly by the lifecycle services through
// the Recorder interface.
//
// Usage:
//
//	collector := metrics.NewCollector(metrics.CollectorConfig{Store: kv})
//	collector.Start()
//	defer collector.Stop()
//
//	metrics.NewHandler(collector).RegisterRoutes(router)
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
)

const namespace = "kube_provisioner"

// Collector manages Prometheus metrics collection
type Collector struct {
	store          kvstore.Store
	updateInterval time.Duration

	storeMetrics        *StoreMetrics
	provisioningMetrics *ProvisioningMetrics

	registry *prometheus.Registry
	handler  http.Handler

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	lastStoreStats kvstore.Stats
}

// CollectorConfig holds configuration for metrics collector
type CollectorConfig struct {
	Store                kvstore.Store
	UpdateInterval       time.Duration // how often store stats are synced (default: 15s)
	EnableGoMetrics      bool
	EnableProcessMetrics bool
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector(config CollectorConfig) *Collector {
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = 15 * time.Second
	}

	registry := prometheus.NewRegistry()
	if config.EnableGoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
	}
	if config.EnableProcessMetrics {
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	c := &Collector{
		store:               config.Store,
		updateInterval:      config.UpdateInterval,
		storeMetrics:        NewStoreMetrics(),
		provisioningMetrics: NewProvisioningMetrics(),
		registry:            registry,
		stopCh:              make(chan struct{}),
	}

	registry.MustRegister(c.storeMetrics.collectors()...)
	registry.MustRegister(c.provisioningMetrics.collectors()...)

	c.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	return c
}

// Recorder returns the provisioning event sink backed by this collector
func (c *Collector) Recorder() Recorder {
	return c.provisioningMetrics
}

// Start begins syncing store stats in the background
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
}

// Stop stops background collection; safe to call more than once
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) collectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			return
		}
	}
}

// Collect syncs store counters from the latest stats snapshot
func (c *Collector) Collect() {
	if c.store == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.store.Stats()
	last := c.lastStoreStats
	ops := c.storeMetrics.OperationsTotal

	hits := stats.Reads - stats.Misses
	lastHits := last.Reads - last.Misses
	addDelta(ops.WithLabelValues("get", "ok"), hits, lastHits)
	addDelta(ops.WithLabelValues("get", "miss"), stats.Misses, last.Misses)
	addDelta(ops.WithLabelValues("put", "ok"), stats.Writes, last.Writes)
	addDelta(ops.WithLabelValues("put_if_absent", "ok"), stats.Conditional, last.Conditional)
	addDelta(ops.WithLabelValues("delete", "ok"), stats.Deletes, last.Deletes)
	addDelta(ops.WithLabelValues("scan", "ok"), stats.Scans, last.Scans)
	addDelta(c.storeMetrics.ErrorsTotal, stats.Errors, last.Errors)

	if stats.Reads+stats.Writes+stats.Scans > 0 {
		c.storeMetrics.LatencySeconds.Observe(stats.AvgLatencyMs / 1000.0)
	}

	if stats.CircuitOpen {
		c.storeMetrics.CircuitBreakerState.Set(1)
	} else {
		c.storeMetrics.CircuitBreakerState.Set(0)
	}

	c.lastStoreStats = stats
}

func addDelta(counter prometheus.Counter, current, last uint64) {
	if current > last {
		counter.Add(float64(current - last))
	}
}

// Handler returns the HTTP handler for the /metrics endpoint
func (c *Collector) Handler() http.Handler {
	return c.handler
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ResultOf maps an error onto a RecordOperation result label
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.IsConflict(err):
		return ResultConflict
	case errors.IsNotFound(err):
		return ResultNotFound
	case errors.IsValidation(err):
		return ResultValidation
	default:
		return ResultInternal
	}
}

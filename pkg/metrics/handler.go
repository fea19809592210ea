package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
)

// Handler provides HTTP handlers for metrics endpoints
type Handler struct {
	collector *Collector
}

// NewHandler creates a new metrics HTTP handler
func NewHandler(collector *Collector) *Handler {
	return &Handler{
		collector: collector,
	}
}

// RegisterRoutes registers metrics endpoints with Gin router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	metrics := router.Group("/metrics")
	{
		metrics.GET("", h.PrometheusMetrics)
		metrics.GET("/json", h.GetStoreMetrics)
	}

	router.GET("/health", h.HealthCheck)
}

// PrometheusMetrics exposes metrics in Prometheus format
// GET /metrics
func (h *Handler) PrometheusMetrics(c *gin.Context) {
	h.collector.Collect()
	h.collector.Handler().ServeHTTP(c.Writer, c.Request)
}

// GetStoreMetrics returns the raw store stats in JSON format
// GET /metrics/json
func (h *Handler) GetStoreMetrics(c *gin.Context) {
	if h.collector.store == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, formatStoreStatsJSON(h.collector.store.Stats()))
}

// HealthCheck pings the store and reports its circuit breaker state
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	if h.collector.store == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	response := gin.H{}

	if err := h.collector.store.Ping(ctx); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		response["error"] = err.Error()
	}

	stats := h.collector.store.Stats()
	if stats.CircuitOpen {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	response["status"] = status
	response["store"] = gin.H{
		"circuit_breaker": getCircuitBreakerState(stats.CircuitOpen),
		"errors":          stats.Errors,
		"avg_latency_ms":  stats.AvgLatencyMs,
	}

	c.JSON(httpStatus, response)
}

func formatStoreStatsJSON(s kvstore.Stats) gin.H {
	return gin.H{
		"operations": gin.H{
			"reads":         s.Reads,
			"misses":        s.Misses,
			"writes":        s.Writes,
			"put_if_absent": s.Conditional,
			"deletes":       s.Deletes,
			"scans":         s.Scans,
		},
		"errors":              s.Errors,
		"avg_latency_seconds": s.AvgLatencyMs / 1000.0,
		"circuit_breaker": gin.H{
			"open":  s.CircuitOpen,
			"state": getCircuitBreakerState(s.CircuitOpen),
		},
	}
}

func getCircuitBreakerState(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

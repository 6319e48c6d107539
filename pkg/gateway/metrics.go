package gateway

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type apiMetrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	coldStarts prometheus.Counter
}

func newApiMetrics() *apiMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &apiMetrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skald",
			Name:      "requests_total",
			Help:      "Number of API requests served, by route and status code",
		}, []string{"method", "path", "code"}),
		coldStarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "skald",
			Name:      "engine_cold_starts_total",
			Help:      "Number of times the request engine was constructed",
		}),
	}
}

func (m *apiMetrics) requestsApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}

		m.requests.WithLabelValues(
			ctx.Request.Method,
			path,
			strconv.Itoa(ctx.Writer.Status()),
		).Inc()
	}
}

package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// FeedbackSyncCounter 按结果统计 OneNote 反馈同步次数
	FeedbackSyncCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_sync_total",
			Help: "Total number of OneNote feedback syncs by result",
		},
		[]string{"result"},
	)

	FeedbackSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedback_sync_duration_seconds",
			Help:    "Duration of OneNote feedback syncs",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(FeedbackSyncCounter)
	prometheus.MustRegister(FeedbackSyncDuration)
}

// ObserveSync 记录一次同步的结果与耗时
func ObserveSync(result string, start time.Time) {
	FeedbackSyncCounter.WithLabelValues(result).Inc()
	FeedbackSyncDuration.Observe(time.Since(start).Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_ws_connections",
		Help: "Current number of active websocket sessions",
	})
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_messages_total",
		Help: "Total number of messages routed",
	}, []string{"kind", "delivered"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, MessagesTotal, HttpRequestsTotal, HttpRequestDuration)
}

// ObserveDirectMessage 记录一条单聊消息及其实时投递结果。
func ObserveDirectMessage(delivered bool) {
	MessagesTotal.With(prometheus.Labels{"kind": "direct", "delivered": strconv.FormatBool(delivered)}).Inc()
}

// ObserveGroupMessage 记录一条群聊消息，群投递不做按成员记账。
func ObserveGroupMessage() {
	MessagesTotal.With(prometheus.Labels{"kind": "group", "delivered": "broadcast"}).Inc()
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

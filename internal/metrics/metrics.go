package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "callrelay"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	signalConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "connections",
			Help:      "Open signaling WebSocket connections.",
		},
	)

	signalMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "messages_total",
			Help:      "Signaling requests received, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	signalDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "dropped_frames_total",
			Help:      "Frames dropped because a connection's send queue was full.",
		},
	)

	callOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "operations_total",
			Help:      "Call record operations, by kind.",
		},
		[]string{"op"},
	)

	rtpReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "rtp_packets_received_total",
			Help:      "RTP packets read from remote tracks.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		signalConnections,
		signalMessages,
		signalDropped,
		callOps,
		rtpReceived,
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latencies by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func SignalConnOpened() { signalConnections.Inc() }
func SignalConnClosed() { signalConnections.Dec() }

func SignalMessage(msgType, outcome string) {
	signalMessages.WithLabelValues(msgType, outcome).Inc()
}

func SignalDropped() { signalDropped.Inc() }

func CallOp(op string) { callOps.WithLabelValues(op).Inc() }

func RTPReceived(kind string, n int) { rtpReceived.WithLabelValues(kind).Add(float64(n)) }

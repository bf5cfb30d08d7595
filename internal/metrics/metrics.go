package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	providerLatencyBucketStart  = 0.05
	providerLatencyBucketFactor = 2.0
	providerLatencyBucketCount  = 10
)

// Outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeSkipped   = "skipped"
	OutcomeProcessed = "processed"
)

var SyncPages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "callsync_pages_total",
		Help: "Provider call-list pages fetched by the pull sync",
	},
	[]string{"outcome"},
)

var SyncRecords = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "callsync_records_total",
		Help: "Call records seen by the pull sync, by stage",
	},
	[]string{"stage"},
)

var SyncConnections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "callsync_connections_total",
		Help: "Tenant connections processed by the pull sync",
	},
	[]string{"outcome"},
)

var WebhookEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "telephony_webhook_events_total",
		Help: "Telephony webhook deliveries, by outcome and skip reason",
	},
	[]string{"outcome", "reason"},
)

var ProviderRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "telephony_provider_request_duration_seconds",
		Help: "Latency of provider API requests",
		Buckets: prometheus.ExponentialBuckets(
			providerLatencyBucketStart,
			providerLatencyBucketFactor,
			providerLatencyBucketCount,
		),
	},
	[]string{"operation"},
)

func init() {
	prometheus.MustRegister(SyncPages)
	prometheus.MustRegister(SyncRecords)
	prometheus.MustRegister(SyncConnections)
	prometheus.MustRegister(WebhookEvents)
	prometheus.MustRegister(ProviderRequestDuration)
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus instruments for alertwx, registered under the
// "alertwx" namespace.
type Metrics struct {
	AlertsParsed       *prometheus.CounterVec
	AlertsRejected     *prometheus.CounterVec
	ActiveAlerts        prometheus.Gauge
	AlertManagerOps    *prometheus.CounterVec
	GeometryCacheHits   prometheus.Counter
	GeometryCacheMisses prometheus.Counter
	GeometryFetchErrors prometheus.Counter
	GeometryFetchDuration prometheus.Histogram
	NWWSMessagesReceived prometheus.Counter
	NWWSReconnects       prometheus.Counter
	APIPollDuration      prometheus.Histogram
	APIPollErrors        prometheus.Counter
	BrokerConnectedClients prometheus.Gauge
	BrokerMessagesSent     *prometheus.CounterVec
	BrokerBroadcastErrors  prometheus.Counter
}

// NewMetrics creates and registers all Metrics instruments with the default
// Prometheus registry. Call once per process.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting creates a fresh, unregistered set of Metrics so tests
// can construct multiple instances without tripping the "duplicate metrics
// collector registration" panic from the default registry.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	const namespace = "alertwx"

	m := &Metrics{
		AlertsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_parsed_total",
			Help:      "Alerts successfully parsed, labeled by source (nwws/api).",
		}, []string{"source"}),
		AlertsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_rejected_total",
			Help:      "Alerts rejected by the parser façade, labeled by reason.",
		}, []string{"reason"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Number of alerts currently held in the active set.",
		}),
		AlertManagerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_manager_operations_total",
			Help:      "Alert manager mutations, labeled by operation (added/updated/removed/expired).",
		}, []string{"operation"}),
		GeometryCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_cache_hits_total",
			Help:      "Zone geometry cache hits, including negative cache hits.",
		}),
		GeometryCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_cache_misses_total",
			Help:      "Zone geometry cache misses requiring a fetch.",
		}),
		GeometryFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_fetch_errors_total",
			Help:      "Zone geometry fetch failures.",
		}),
		GeometryFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geometry_fetch_duration_seconds",
			Help:      "Latency of zone geometry fetches against the NWS API.",
			Buckets:   prometheus.DefBuckets,
		}),
		NWWSMessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nwws_messages_received_total",
			Help:      "Messages received over the NWWS-OI XMPP stream.",
		}),
		NWWSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nwws_reconnects_total",
			Help:      "NWWS-OI reconnect attempts.",
		}),
		APIPollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_poll_duration_seconds",
			Help:      "Latency of REST polling cycles against the NWS API.",
			Buckets:   prometheus.DefBuckets,
		}),
		APIPollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_poll_errors_total",
			Help:      "REST polling cycle failures.",
		}),
		BrokerConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected_clients",
			Help:      "Currently connected fan-out broker subscriber sessions.",
		}),
		BrokerMessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_messages_sent_total",
			Help:      "Envelopes sent to subscribers, labeled by message type.",
		}, []string{"type"}),
		BrokerBroadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_broadcast_errors_total",
			Help:      "Subscriber writes that failed during a broadcast.",
		}),
	}

	reg.MustRegister(
		m.AlertsParsed,
		m.AlertsRejected,
		m.ActiveAlerts,
		m.AlertManagerOps,
		m.GeometryCacheHits,
		m.GeometryCacheMisses,
		m.GeometryFetchErrors,
		m.GeometryFetchDuration,
		m.NWWSMessagesReceived,
		m.NWWSReconnects,
		m.APIPollDuration,
		m.APIPollErrors,
		m.BrokerConnectedClients,
		m.BrokerMessagesSent,
		m.BrokerBroadcastErrors,
	)

	return m
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mqttcore"

// Metrics are the server's Prometheus collectors.
type Metrics struct {
	PacketsIn      *prometheus.CounterVec // by packet type
	PacketsOut     *prometheus.CounterVec // by packet type
	DecodeErrors   *prometheus.CounterVec // by cause
	ProtocolErrors *prometheus.CounterVec // by cause
	Connections    prometheus.Gauge
	WillsReleased  prometheus.Counter
	WillsJournaled prometheus.Counter
	RateLimited    prometheus.Counter
}

// New registers the collectors with reg. sessions reports the number of
// sessions in the session table at scrape time.
func New(reg prometheus.Registerer, sessions func() float64) *Metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Number of connected sessions",
	}, sessions)

	return &Metrics{
		PacketsIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Control packets decoded from clients",
		}, []string{"type"}),

		PacketsOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Control packets sent to clients",
		}, []string{"type"}),

		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Connections closed because their byte stream could not be decoded",
		}, []string{"error"}),

		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed because of a session protocol violation",
		}, []string{"error"}),

		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open network connections",
		}),

		WillsReleased: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wills_released_total",
			Help:      "Wills released by connections closed without DISCONNECT",
		}),

		WillsJournaled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wills_journaled_total",
			Help:      "Released wills written to the will journal",
		}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rate_limited_total",
			Help:      "Connections refused by the per IP rate limit",
		}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

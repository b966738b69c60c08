// Package metrics регистрирует счётчики ядра и шлюза в реестре prometheus по умолчанию.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StoreDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_store_dispatch_total",
			Help: "Dispatched store actions by kind.",
		},
		[]string{"action"},
	)

	RealtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_realtime_events_total",
			Help: "Realtime notifications received by kind.",
		},
		[]string{"kind"},
	)

	PresenceHeartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_presence_heartbeats_total",
			Help: "Presence heartbeats by result (ok|error).",
		},
		[]string{"result"},
	)

	Sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_send_total",
			Help: "Message send attempts by result (ok|error|throttled).",
		},
		[]string{"result"},
	)

	StartupConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_startup_connect_attempts_total",
			Help: "Connection attempts to backing services at startup by target (postgres|redis) and result.",
		},
		[]string{"target", "result"},
	)

	HTTPPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_http_panics_total",
			Help: "Recovered handler panics by HTTP method.",
		},
		[]string{"method"},
	)

	GatewayConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_gateway_connections",
			Help: "Open websocket connections on the gateway.",
		},
	)
)

func init() {
	prometheus.MustRegister(StoreDispatch)
	prometheus.MustRegister(RealtimeEvents)
	prometheus.MustRegister(PresenceHeartbeats)
	prometheus.MustRegister(Sends)
	prometheus.MustRegister(StartupConnects)
	prometheus.MustRegister(HTTPPanics)
	prometheus.MustRegister(GatewayConnections)
}

// Result возвращает метку результата для счётчиков ok/error.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler отдаёт метрики в формате prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

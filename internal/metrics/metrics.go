// Package metrics defines the Prometheus instruments shared by the bridge
// and the relay. Both services expose them on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionGaugeOnce sync.Once

// RegisterSessionGauge exposes the live session count as a gauge. Repeat
// registrations (multiple servers in tests) are ignored.
func RegisterSessionGauge(count func() int) {
	sessionGaugeOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "railbridge_active_sessions",
			Help: "MCP subprocess sessions currently registered.",
		}, func() float64 { return float64(count()) })
	})
}

var (
	// BridgeRequests counts bridge HTTP requests by route.
	BridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railbridge_bridge_requests_total",
		Help: "Bridge HTTP requests handled, by route.",
	}, []string{"route"})

	// BridgeCallErrors counts MCP calls that failed locally, by kind
	// (timeout, process_terminated, internal).
	BridgeCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railbridge_bridge_call_errors_total",
		Help: "MCP calls that failed before a subprocess response, by kind.",
	}, []string{"kind"})

	// RelayPolls counts mailbox poll cycles.
	RelayPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "railbridge_relay_polls_total",
		Help: "Mailbox poll cycles executed.",
	})

	// RelayRequestsProcessed counts mailbox requests carried to completion
	// (response written, request deleted).
	RelayRequestsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "railbridge_relay_requests_processed_total",
		Help: "Mailbox request objects processed to completion.",
	})

	// RelayErrors counts mailbox processing failures, including unroutable
	// requests.
	RelayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "railbridge_relay_errors_total",
		Help: "Mailbox processing errors.",
	})
)

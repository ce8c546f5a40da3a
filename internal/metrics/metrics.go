// Package metrics exposes the node's lag/pending-depth gauges of
// SPEC_FULL.md §2's ambient stack table over github.com/prometheus/client_golang,
// the metrics library already carried (indirect) in the teacher's go.mod.
// Grounded on the teacher's own promhttp-over-chi wiring convention for
// read-only observability surfaces (the same shape internal/api already
// uses for the JSON read API, applied here to /metrics instead).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every gauge this node publishes. Callers set values
// directly from the engine loop; nothing here touches Blockchain.
type Registry struct {
	SlotLagSeconds      prometheus.Gauge
	PendingTransactions prometheus.Gauge
	PendingStakes       prometheus.Gauge
	PendingBlocks       prometheus.Gauge
	Height              prometheus.Gauge
	Peers               prometheus.Gauge
}

// New registers and returns this node's metric set against reg.
func New(reg *prometheus.Registry) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		SlotLagSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "peacash",
			Name:      "slot_lag_seconds",
			Help:      "Moving-window average delay between a slot's expected and actual tick time.",
		}),
		PendingTransactions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "peacash",
			Subsystem: "pending",
			Name:      "transactions",
			Help:      "Number of transactions currently queued in the pending pool.",
		}),
		PendingStakes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "peacash",
			Subsystem: "pending",
			Name:      "stakes",
			Help:      "Number of stakes currently queued in the pending pool.",
		}),
		PendingBlocks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "peacash",
			Subsystem: "pending",
			Name:      "blocks",
			Help:      "Number of gossip-received blocks awaiting append.",
		}),
		Height: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "peacash",
			Name:      "height",
			Help:      "Current main-branch height.",
		}),
		Peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "peacash",
			Name:      "peers",
			Help:      "Number of connected libp2p peers.",
		}),
	}
}

package node

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Structs

// Metrics bundles the instrumentation of the replication engine
// of one replica.
type Metrics struct {
	BroadcastsTotal     metrics.Counter
	BroadcastLatency    metrics.Histogram
	CausalityRejections metrics.Counter
	PeersRemoved        metrics.Counter
	PeersRecovered      metrics.Counter
	SnapshotPushes      metrics.Counter
}

// Functions

// NewMetrics returns Prometheus-backed instruments when a
// Prometheus address is configured and no-op instruments
// otherwise.
func NewMetrics(prometheusAddr string) *Metrics {

	if prometheusAddr == "" {
		return &Metrics{
			BroadcastsTotal:     discard.NewCounter(),
			BroadcastLatency:    discard.NewHistogram(),
			CausalityRejections: discard.NewCounter(),
			PeersRemoved:        discard.NewCounter(),
			PeersRecovered:      discard.NewCounter(),
			SnapshotPushes:      discard.NewCounter(),
		}
	}

	return &Metrics{
		BroadcastsTotal: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalkv",
			Subsystem: "replication",
			Name:      "broadcasts_total",
			Help:      "Number of sync messages sent to peer replicas",
		}, nil),
		BroadcastLatency: prometheus.NewHistogramFrom(prom.HistogramOpts{
			Namespace: "causalkv",
			Subsystem: "replication",
			Name:      "broadcast_latency_seconds",
			Help:      "Latency of sync message deliveries to peer replicas",
		}, nil),
		CausalityRejections: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalkv",
			Subsystem: "replication",
			Name:      "causality_rejections_total",
			Help:      "Number of sync messages a peer rejected for missing causal history",
		}, nil),
		PeersRemoved: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalkv",
			Subsystem: "view",
			Name:      "peers_removed_total",
			Help:      "Number of peers removed from the view after connection failures",
		}, nil),
		PeersRecovered: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalkv",
			Subsystem: "view",
			Name:      "peers_recovered_total",
			Help:      "Number of peers re-admitted into the view after recovery",
		}, nil),
		SnapshotPushes: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "causalkv",
			Subsystem: "recovery",
			Name:      "snapshot_pushes_total",
			Help:      "Number of full snapshot pushes attempted towards unreachable peers",
		}, nil),
	}
}

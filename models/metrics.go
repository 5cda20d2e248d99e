package models

import (
	"strconv"
	"time"

	"github.com/aukilabs/ehwaz/octree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	spaceIDLabel = "space_id"
)

var (
	spaceCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "space_count",
		Help: "The number of spaces.",
	})

	spaceCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "space_count_total",
		Help: "The total number of spaces.",
	})

	updateCycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "octree_update_cycle_latency",
		Help:    "The time taken by an octree update cycle, in seconds.",
		Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
	}, []string{spaceIDLabel})

	octreeNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "octree_nodes",
		Help: "The number of nodes in a space octree.",
	}, []string{spaceIDLabel})

	octreeObjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "octree_objects",
		Help: "The number of objects tracked by a space octree.",
	}, []string{spaceIDLabel})

	octreePendingMoves = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "octree_pending_moves",
		Help: "The number of moves waiting for the next update cycle.",
	}, []string{spaceIDLabel})

	octreeRelocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_relocations_total",
		Help: "The total number of objects that changed node.",
	}, []string{spaceIDLabel})

	octreePrunedNodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_pruned_nodes_total",
		Help: "The total number of nodes destroyed by pruning.",
	}, []string{spaceIDLabel})

	octreeSkippedMovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_skipped_moves_total",
		Help: "The total number of moves dropped because their object was not tracked.",
	}, []string{spaceIDLabel})
)

func instrumentIncreaseSpaceGauge() {
	spaceCount.Inc()
	spaceCountTotal.Inc()
}

func instrumentDecreaseSpaceGauge(spaceID uint32) {
	spaceCount.Dec()

	labels := prometheus.Labels{spaceIDLabel: formatSpaceID(spaceID)}
	updateCycleLatency.Delete(labels)
	octreeNodes.Delete(labels)
	octreeObjects.Delete(labels)
	octreePendingMoves.Delete(labels)
	octreeRelocationsTotal.Delete(labels)
	octreePrunedNodesTotal.Delete(labels)
	octreeSkippedMovesTotal.Delete(labels)
}

func instrumentUpdateCycle(spaceID uint32, stats octree.CycleStats, pending int, latency time.Duration) {
	labels := prometheus.Labels{spaceIDLabel: formatSpaceID(spaceID)}

	updateCycleLatency.With(labels).Observe(latency.Seconds())
	octreeNodes.With(labels).Set(float64(stats.Nodes))
	octreeObjects.With(labels).Set(float64(stats.Objects))
	octreePendingMoves.With(labels).Set(float64(pending))
	octreeRelocationsTotal.With(labels).Add(float64(stats.Relocated))
	octreePrunedNodesTotal.With(labels).Add(float64(stats.PrunedNodes))
	octreeSkippedMovesTotal.With(labels).Add(float64(stats.Skipped))
}

func formatSpaceID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

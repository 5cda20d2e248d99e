package viewer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	viewerSubscriberCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_subscriber_count",
		Help: "The number of viewers receiving octree events.",
	})

	viewerDroppedSubscribersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viewer_dropped_subscribers_total",
		Help: "The total number of viewers dropped for not consuming events fast enough.",
	})
)

func instrumentIncreaseSubscriberGauge() {
	viewerSubscriberCount.Inc()
}

func instrumentDecreaseSubscriberGauge() {
	viewerSubscriberCount.Dec()
}

func instrumentDropSubscriber() {
	viewerDroppedSubscribersTotal.Inc()
}

package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_deliveries_total",
		Help: "Per-recipient delivery outcomes by channel",
	}, []string{"channel", "status"})
	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcasts_total",
		Help: "Broadcast invocations by outcome",
	}, []string{"outcome"})
	broadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "broadcast_duration_seconds",
		Help:    "Wall-clock time of a full broadcast",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})
)

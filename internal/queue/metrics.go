package queue

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueued_total",
			Help: "Total tasks published per kind",
		},
		[]string{"kind"},
	)
	QueueDedupedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_deduped_total",
			Help: "Tasks dropped because one with the same key was still queued",
		},
		[]string{"kind"},
	)
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"kind", "status"},
	)
	QueueTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_task_duration_seconds",
			Help:    "Task handler latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

// RegisterMetrics registers the queue collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{QueueEnqueuedTotal, QueueDedupedTotal, QueueProcessedTotal, QueueTaskDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

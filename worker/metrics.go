package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metrics for processed tasks
	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_task_processing_seconds",
		Help:    "Task processing time.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .5, 1, 2.5, 5, 10, 30},
	}, []string{"queue", "status"})

	taskErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_task_errors_total",
		Help: "Number of contained task failures.",
	}, []string{"processor"})
)

func trackTask(start time.Time, queue string, err error) {
	status := "OK"
	if err != nil {
		status = "ERR"
	}

	taskDuration.
		WithLabelValues(queue, status).
		Observe(time.Since(start).Seconds())
}

func trackTaskError(processor string) {
	taskErrors.WithLabelValues(processor).Inc()
}

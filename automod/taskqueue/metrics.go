package taskqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var taskRunCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_task_runs",
	Help: "Number of task executions, by kind and result",
}, []string{"kind", "result"})

var taskRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_task_duration_sec",
	Help: "Duration of task execution",
}, []string{"kind"})

var taskLag = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "warden_task_lag_sec",
	Help:    "Delay between scheduled run time and actual start of task execution",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
}, []string{"kind"})

var tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_tasks_in_flight",
	Help: "Number of tasks currently executing",
})

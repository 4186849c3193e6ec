package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var postProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "warden_post_duration_sec",
	Help: "Total duration of new post processing",
})

var postProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_posts_processed",
	Help: "Number of new posts processed, by gate result",
}, []string{"result"})

var taskOutcomeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_task_outcomes",
	Help: "Number of tasks handled, by kind and outcome",
}, []string{"kind", "outcome"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_actions",
	Help: "Number of moderation actions performed, by outcome",
}, []string{"outcome", "fallback"})

var quotaTripCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_action_quota_trips",
	Help: "Number of actions degraded to reports by the daily action quota",
})

var notificationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_notifications",
	Help: "Number of operator notifications sent, by result",
}, []string{"result"})

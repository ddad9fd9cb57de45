// internal/jobs/metrics.go
package jobs

import (
	"esplit/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "jobs",
		Name:      "created_total",
		Help:      "Job records created",
	})

	JobCreateErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "jobs",
		Name:      "create_errors_total",
		Help:      "Job record creations that failed",
	})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "jobs",
		Name:      "notifications_total",
		Help:      "Worker notifications by result",
	}, []string{"result"}) // result: sent, error
)

func init() {
	metrics.Registry().MustRegister(JobsCreatedTotal, JobCreateErrorsTotal, NotificationsTotal)
}

// internal/upload/metrics.go
package upload

import (
	"errors"

	"esplit/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CandidatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "upload",
		Name:      "candidates_total",
		Help:      "Candidate files seen by the validator",
	}, []string{"result"}) // result: accepted, invalid_type, too_large

	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "upload",
		Name:      "sessions_total",
		Help:      "Upload sessions by terminal outcome",
	}, []string{"outcome"})

	UploadedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "upload",
		Name:      "bytes_total",
		Help:      "Bytes durably stored by completed transfers",
	})

	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "upload",
		Name:      "duration_seconds",
		Help:      "Time from start to terminal state of an upload session",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	UploadsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "upload",
		Name:      "in_flight",
		Help:      "Upload sessions between start and a terminal state",
	})
)

func init() {
	metrics.Registry().MustRegister(
		CandidatesTotal,
		UploadsTotal,
		UploadedBytesTotal,
		UploadDuration,
		UploadsInFlight,
	)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, ErrUploadCancelled):
		return "cancelled"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrURLResolutionFailed):
		return "url_resolution_failed"
	case errors.Is(err, ErrJobCreationFailed):
		return "job_creation_failed"
	default:
		return "other"
	}
}

func candidateLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrInvalidType):
		return "invalid_type"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	default:
		return "other"
	}
}

// internal/jobs/writer.go
package jobs

import (
	"context"
	"errors"
	"fmt"

	"esplit/internal/logger"
	"esplit/internal/models"

	"github.com/google/uuid"
)

// Submission describes an object that is already durably stored and whose
// retrieval URL has been resolved.
type Submission struct {
	UserID           uint
	OriginalFileName string
	StoragePath      string
	DownloadURL      string
}

func (s Submission) validate() error {
	switch {
	case s.UserID == 0:
		return errors.New("missing user id")
	case s.StoragePath == "":
		return errors.New("missing storage path")
	case s.DownloadURL == "":
		return errors.New("missing download url")
	case s.OriginalFileName == "":
		return errors.New("missing file name")
	}
	return nil
}

// Notifier wakes downstream workers after a job is recorded. The record is
// the handoff; a lost notification only delays pickup.
type Notifier interface {
	Notify(ctx context.Context, job *models.Job) error
}

type Writer struct {
	store    Store
	notifier Notifier
	newID    func() string
}

// NewWriter builds a writer; notifier may be nil.
func NewWriter(store Store, notifier Notifier) *Writer {
	return &Writer{
		store:    store,
		notifier: notifier,
		newID:    uuid.NewString,
	}
}

// Create records one job with status uploaded. It makes exactly one attempt.
func (w *Writer) Create(ctx context.Context, sub Submission) (*models.Job, error) {
	if err := sub.validate(); err != nil {
		JobCreateErrorsTotal.Inc()
		return nil, fmt.Errorf("invalid submission: %w", err)
	}

	job := &models.Job{
		JobID:            w.newID(),
		UserID:           sub.UserID,
		Status:           models.StatusUploaded,
		OriginalFileName: sub.OriginalFileName,
		StoragePath:      sub.StoragePath,
		DownloadURL:      sub.DownloadURL,
	}

	if err := w.store.Create(ctx, job); err != nil {
		JobCreateErrorsTotal.Inc()
		logger.Error().
			Err(err).
			Str("job_id", job.JobID).
			Uint("user_id", job.UserID).
			Str("storage_path", job.StoragePath).
			Msg("failed to create job record")
		return nil, err
	}
	JobsCreatedTotal.Inc()

	logger.Info().
		Str("job_id", job.JobID).
		Uint("user_id", job.UserID).
		Str("storage_path", job.StoragePath).
		Msg("job recorded")

	if w.notifier != nil {
		if err := w.notifier.Notify(ctx, job); err != nil {
			NotificationsTotal.WithLabelValues("error").Inc()
			logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to notify workers")
		} else {
			NotificationsTotal.WithLabelValues("sent").Inc()
		}
	}

	return job, nil
}

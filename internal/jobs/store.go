// internal/jobs/store.go
package jobs

import (
	"context"
	"errors"
	"fmt"

	"esplit/internal/models"

	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("job not found")

const DefaultHistoryLimit = 50

type Store interface {
	// Create inserts job in a single statement. The store assigns
	// CreatedAt and LastModified.
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, userID uint, jobID string) (*models.Job, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]*models.Job, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, job *models.Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, userID uint, jobID string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND user_id = ?", jobID, userID).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &job, nil
}

func (s *GormStore) ListByUser(ctx context.Context, userID uint, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var jobs []*models.Job
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// internal/jobs/memory_store.go
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"esplit/internal/models"
)

// MemoryStore is an in-process Store backing the upload and handler tests.
// It assigns timestamps the way the database default would.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("duplicate job id %s", job.JobID)
	}
	now := s.now().UTC()
	job.CreatedAt = now
	job.LastModified = now

	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID uint, jobID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID uint, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.RLock()
	out := make([]*models.Job, 0)
	for _, job := range s.jobs {
		if job.UserID == userID {
			cp := *job
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

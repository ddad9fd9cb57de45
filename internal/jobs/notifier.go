// internal/jobs/notifier.go
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"esplit/internal/models"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "esplit:jobs"

// Notification is the message published for each new job.
type Notification struct {
	JobID       string           `json:"job_id"`
	UserID      uint             `json:"user_id"`
	Status      models.JobStatus `json:"status"`
	StoragePath string           `json:"storage_path"`
}

// RedisNotifier publishes new jobs on a Redis Pub/Sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(Notification{
		JobID:       job.JobID,
		UserID:      job.UserID,
		Status:      job.Status,
		StoragePath: job.StoragePath,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

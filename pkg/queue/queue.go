package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for jobs that exhausted their retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the pause after a failed attempt.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

// JobTypeEmail is an outgoing email.
const JobTypeEmail JobType = "email"

// EmailPayload is a rendered email ready to send. LogID points at its email_logs row.
type EmailPayload struct {
	LogID     uuid.UUID `json:"log_id"`
	EmailType string    `json:"email_type"`
	To        string    `json:"to"`
	ToName    string    `json:"to_name,omitempty"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Text      string    `json:"text"`
}

// Job is the envelope stored on a queue.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob wraps payload in an envelope bound for queueName.
func NewJob(queueName string, typ JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.NewString(),
		Type:      typ,
		Queue:     queueName,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Exhausted reports whether the job has used all its attempts.
func (j *Job) Exhausted() bool {
	return j.Attempt >= MaxRetries
}

// Queue enqueues and dequeues jobs on Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Push appends job to its queue.
func (q *Queue) Push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, job.Queue, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", job.Queue, err)
	}
	return nil
}

// EnqueueEmail queues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	job, err := NewJob(QueueEmails, JobTypeEmail, payload)
	if err != nil {
		return err
	}
	if err := q.Push(ctx, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued email job", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

// Dequeue waits up to wait for a job on queueName. It returns nil, nil when nothing arrived.
// Undecodable entries are logged and dropped.
func (q *Queue) Dequeue(ctx context.Context, queueName string, wait time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, wait, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("queue", result[0]), zap.Error(err))
		return nil, nil
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}
	return &job, nil
}

// Retry records a failed attempt. The job goes back on its queue, or to the DLQ once exhausted;
// dead reports the latter.
func (q *Queue) Retry(ctx context.Context, job *Job) (dead bool, err error) {
	job.Attempt++
	if !job.Exhausted() {
		if err := q.Push(ctx, job); err != nil {
			return false, err
		}
		q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return false, nil
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return true, err
	}
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.String("job_id", job.ID), zap.Error(err))
		return true, err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return true, nil
}

// Len returns the number of jobs waiting on queueName.
func (q *Queue) Len(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

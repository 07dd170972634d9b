package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/mailer"
	"github.com/eventplanner/backend/pkg/queue"
)

// JobSource is the queue the email worker consumes.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, wait time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// LogUpdater records delivery outcomes on email_logs.
type LogUpdater interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor delivers queued emails and tracks them in email_logs.
type EmailProcessor struct {
	queue   JobSource
	sender  mailer.Sender
	logs    LogUpdater
	logger  *zap.Logger
	wait    time.Duration
	backoff time.Duration
	now     func() time.Time
}

// NewEmailProcessor creates an email processor. q may be nil when the processor is only
// used inline through EnqueueEmail.
func NewEmailProcessor(q JobSource, sender mailer.Sender, logs LogUpdater, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:   q,
		sender:  sender,
		logs:    logs,
		logger:  logger,
		wait:    5 * time.Second,
		backoff: queue.RetryBackoff,
		now:     time.Now,
	}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return p.Deliver(ctx, payload)
}

// Deliver sends one email and marks its log row sent.
func (p *EmailProcessor) Deliver(ctx context.Context, payload queue.EmailPayload) error {
	err := p.sender.Send(ctx, mailer.Mail{
		Type:    payload.EmailType,
		To:      payload.To,
		ToName:  payload.ToName,
		Subject: payload.Subject,
		HTML:    payload.HTML,
		Text:    payload.Text,
	})
	if err != nil {
		return err
	}
	if payload.LogID != uuid.Nil {
		if err := p.logs.MarkSent(ctx, payload.LogID, p.now().UTC()); err != nil {
			// the mail is out; a retry would send it twice
			p.logger.Warn("mark email sent failed", zap.String("log_id", payload.LogID.String()), zap.Error(err))
		}
	}
	p.logger.Info("email sent",
		zap.String("email_type", payload.EmailType),
		zap.String("log_id", payload.LogID.String()),
	)
	return nil
}

// EnqueueEmail delivers payload in the background without a queue. The server uses it
// when Redis is unavailable.
func (p *EmailProcessor) EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := p.Deliver(sendCtx, payload); err != nil {
			p.logger.Error("inline email failed", zap.String("log_id", payload.LogID.String()), zap.Error(err))
			p.markFailed(sendCtx, payload.LogID, err)
		}
	}()
	return nil
}

func (p *EmailProcessor) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	if id == uuid.Nil {
		return
	}
	if err := p.logs.MarkFailed(ctx, id, cause.Error()); err != nil {
		p.logger.Warn("mark email failed", zap.String("log_id", id.String()), zap.Error(err))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, queue.QueueEmails, p.wait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			dead, reErr := p.queue.Retry(ctx, job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if dead {
				p.markFailed(ctx, logIDOf(job), err)
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}

func logIDOf(job *queue.Job) uuid.UUID {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return uuid.Nil
	}
	return payload.LogID
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/mailer"
	"github.com/eventplanner/backend/pkg/queue"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Mail
	err  error
}

func (f *fakeSender) Send(_ context.Context, m mailer.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeLogs struct {
	mu     sync.Mutex
	sent   map[uuid.UUID]time.Time
	failed map[uuid.UUID]string
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{sent: map[uuid.UUID]time.Time{}, failed: map[uuid.UUID]string{}}
}

func (f *fakeLogs) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = at
	return nil
}

func (f *fakeLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeLogs) failedReason(id uuid.UUID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.failed[id]
	return r, ok
}

// memQueue replays jobs and applies the same retry rule as the Redis queue.
type memQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	dlq  []*queue.Job
}

func (m *memQueue) Dequeue(ctx context.Context, _ string, _ time.Duration) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) == 0 {
		return nil, ctx.Err()
	}
	j := m.jobs[0]
	m.jobs = m.jobs[1:]
	return j, nil
}

func (m *memQueue) Retry(_ context.Context, j *queue.Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.Attempt++
	if j.Exhausted() {
		m.dlq = append(m.dlq, j)
		return true, nil
	}
	m.jobs = append(m.jobs, j)
	return false, nil
}

func (m *memQueue) deadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dlq)
}

func emailJob(t *testing.T, logID uuid.UUID) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.QueueEmails, queue.JobTypeEmail, queue.EmailPayload{
		LogID: logID, To: "ada@example.com", Subject: "Hello", Text: "hi",
	})
	require.NoError(t, err)
	return job
}

func TestProcess_SendsAndMarksSent(t *testing.T) {
	sender, logs := &fakeSender{}, newFakeLogs()
	p := NewEmailProcessor(nil, sender, logs, zap.NewNop())
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	logID := uuid.New()

	require.NoError(t, p.Process(context.Background(), emailJob(t, logID)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.Equal(t, fixed, logs.sent[logID])
}

func TestProcess_RejectsUnknownType(t *testing.T) {
	p := NewEmailProcessor(nil, &fakeSender{}, newFakeLogs(), zap.NewNop())
	err := p.Process(context.Background(), &queue.Job{Type: "recording"})
	assert.ErrorContains(t, err, "unknown job type")
}

func TestRun_RetriesThenDeadLetters(t *testing.T) {
	sender := &fakeSender{err: errors.New("ses throttled")}
	logs := newFakeLogs()
	q := &memQueue{}
	logID := uuid.New()
	q.jobs = []*queue.Job{emailJob(t, logID)}

	p := NewEmailProcessor(q, sender, logs, zap.NewNop())
	p.backoff = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return q.deadCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	reason, ok := logs.failedReason(logID)
	require.True(t, ok)
	assert.Contains(t, reason, "ses throttled")
	assert.Equal(t, queue.MaxRetries, q.dlq[0].Attempt)
}

func TestEnqueueEmail_InlineDelivery(t *testing.T) {
	sender, logs := &fakeSender{}, newFakeLogs()
	p := NewEmailProcessor(nil, sender, logs, zap.NewNop())

	require.NoError(t, p.EnqueueEmail(context.Background(), queue.EmailPayload{LogID: uuid.New(), To: "a@example.com"}))
	assert.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueEmail_InlineFailureMarksLog(t *testing.T) {
	logs := newFakeLogs()
	p := NewEmailProcessor(nil, &fakeSender{err: errors.New("refused")}, logs, zap.NewNop())
	logID := uuid.New()

	require.NoError(t, p.EnqueueEmail(context.Background(), queue.EmailPayload{LogID: logID, To: "a@example.com"}))
	assert.Eventually(t, func() bool {
		_, ok := logs.failedReason(logID)
		return ok
	}, time.Second, 5*time.Millisecond)
}

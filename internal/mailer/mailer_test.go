package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSES struct {
	in       *sesv2.SendEmailInput
	deadline time.Time
	block    bool
	err      error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	f.deadline, _ = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{}, nil
}

func TestSES_Send(t *testing.T) {
	client := &fakeSES{}
	s := newSES(client, SESConfig{FromAddress: "noreply@planner.test", FromName: "Planner", ConfigurationSet: "events"})

	err := s.Send(context.Background(), Mail{
		Type: "password_reset", To: "ada@example.com", ToName: "Ada",
		Subject: "Reset", Text: "plain body", HTML: "<p>html body</p>",
	})
	require.NoError(t, err)

	in := client.in
	require.NotNil(t, in)
	assert.Equal(t, `"Planner" <noreply@planner.test>`, *in.FromEmailAddress)
	assert.Equal(t, []string{`"Ada" <ada@example.com>`}, in.Destination.ToAddresses)
	assert.Equal(t, "events", *in.ConfigurationSetName)
	msg := in.Content.Simple
	assert.Equal(t, "Reset", *msg.Subject.Data)
	assert.Equal(t, "plain body", *msg.Body.Text.Data)
	assert.Equal(t, "<p>html body</p>", *msg.Body.Html.Data)
	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, "password_reset", *in.EmailTags[0].Value)
	assert.False(t, client.deadline.IsZero(), "send must be bounded")
}

func TestSES_Send_OmitsEmptyParts(t *testing.T) {
	client := &fakeSES{}
	s := newSES(client, SESConfig{FromAddress: "noreply@planner.test"})

	require.NoError(t, s.Send(context.Background(), Mail{To: "a@example.com", Subject: "s", Text: "only text"}))
	assert.Nil(t, client.in.Content.Simple.Body.Html)
	assert.Nil(t, client.in.ConfigurationSetName)
	assert.Empty(t, client.in.EmailTags)
}

func TestSES_Send_Errors(t *testing.T) {
	s := newSES(&fakeSES{err: errors.New("throttled")}, SESConfig{FromAddress: "noreply@planner.test"})
	assert.ErrorContains(t, s.Send(context.Background(), Mail{To: "a@example.com"}), "throttled")
}

func TestSES_Send_HangingCallTimesOut(t *testing.T) {
	s := newSES(&fakeSES{block: true}, SESConfig{FromAddress: "noreply@planner.test"})
	s.timeout = 20 * time.Millisecond

	start := time.Now()
	err := s.Send(context.Background(), Mail{To: "a@example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSES_Send_HonoursCancel(t *testing.T) {
	s := newSES(&fakeSES{block: true}, SESConfig{FromAddress: "noreply@planner.test"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Mail{To: "a@example.com"}), context.Canceled)
}

func TestLog_Send_OmitsBodies(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	err := NewLog(zap.New(core)).Send(context.Background(), Mail{
		Type: "password_reset", To: "a@example.com", Subject: "Reset",
		Text: "https://app.test/reset-password/secret-token", HTML: "<a>secret-token</a>",
	})
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a@example.com", fields["to"])
	assert.Equal(t, "password_reset", fields["email_type"])
	for _, v := range fields {
		assert.NotContains(t, v, "secret-token")
	}
}

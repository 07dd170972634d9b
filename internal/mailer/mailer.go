package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single SES call when the caller's context has no deadline.
const DefaultSendTimeout = 30 * time.Second

// Mail is one outgoing message with text and HTML alternatives.
type Mail struct {
	Type    string
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers mail.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// SESConfig holds Amazon SES settings. Empty credentials use the default chain.
type SESConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	FromAddress      string
	FromName         string
	ConfigurationSet string
}

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends mail through the Amazon SES v2 API.
type SES struct {
	client  sesAPI
	from    string
	confSet string
	timeout time.Duration
}

// NewSES creates an SES sender.
func NewSES(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SES, error) {
	if cfg.FromAddress == "" {
		return nil, errors.New("mailer: from address is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	} else {
		logger.Warn("SES client using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	logger.Info("SES mailer configured", zap.String("region", cfg.Region), zap.String("from", cfg.FromAddress))
	return newSES(sesv2.NewFromConfig(awsCfg), cfg), nil
}

func newSES(client sesAPI, cfg SESConfig) *SES {
	return &SES{
		client:  client,
		from:    (&mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}).String(),
		confSet: cfg.ConfigurationSet,
		timeout: DefaultSendTimeout,
	}
}

// Send delivers m as a simple message with HTML and text bodies.
func (s *SES) Send(ctx context.Context, m Mail) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	body := &types.Body{}
	if m.HTML != "" {
		body.Html = &types.Content{Data: aws.String(m.HTML), Charset: aws.String("UTF-8")}
	}
	if m.Text != "" {
		body.Text = &types.Content{Data: aws.String(m.Text), Charset: aws.String("UTF-8")}
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{(&mail.Address{Name: m.ToName, Address: m.To}).String()},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(m.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if s.confSet != "" {
		in.ConfigurationSetName = aws.String(s.confSet)
	}
	if m.Type != "" {
		in.EmailTags = []types.MessageTag{{Name: aws.String("email_type"), Value: aws.String(m.Type)}}
	}

	out, err := s.client.SendEmail(ctx, in)
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", m.To, err)
	}
	if out == nil {
		return fmt.Errorf("ses send to %s: empty response", m.To)
	}
	return nil
}

// Log writes mail metadata to the logger instead of sending it. Used in development.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging sender.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Send logs m and always succeeds. Bodies carry live tokens and are never logged.
func (l *Log) Send(_ context.Context, m Mail) error {
	l.logger.Info("email (delivery disabled)",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("email_type", m.Type),
	)
	return nil
}

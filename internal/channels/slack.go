package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	slackgo "github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
)

// SlackChannel posts to Slack incoming webhooks.
type SlackChannel struct {
	Base
	cfg        backend.SlackConfig
	httpClient *http.Client
}

func NewSlackChannel(cfg backend.SlackConfig, log *zap.Logger) *SlackChannel {
	return &SlackChannel{
		Base:       NewBase(bus.BackendSlack, log, cfg.Retry, cfg.RatePerSec, slackRetryable),
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

func (s *SlackChannel) Init(context.Context) error {
	s.log.Info("slack notifier initialized")
	return nil
}

// Deliver posts the text, one image attachment per photo and one link post
// per video. Failed posts are logged and do not stop the rest.
func (s *SlackChannel) Deliver(ctx context.Context, env bus.Envelope) error {
	var posts []*slackgo.WebhookMessage
	if text := env.Text(); text != "" {
		posts = append(posts, &slackgo.WebhookMessage{Text: text})
	}
	for _, u := range env.Photos() {
		posts = append(posts, &slackgo.WebhookMessage{
			Attachments: []slackgo.Attachment{{ImageURL: u, Fallback: u}},
		})
	}
	for _, u := range env.Videos() {
		posts = append(posts, &slackgo.WebhookMessage{Text: u})
	}

	return s.fanout(ctx, env.Targets(), func(ctx context.Context, webhook string) error {
		var errs []error
		for i, msg := range posts {
			err := s.attempt(ctx, func(ctx context.Context) error {
				return slackgo.PostWebhookCustomHTTPContext(ctx, webhook, s.httpClient, msg)
			})
			if err != nil {
				s.log.Warn("slack post failed",
					zap.String("target", redact(webhook)),
					zap.Int("post", i),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("post %d: %w", i, err))
			}
		}
		return errors.Join(errs...)
	})
}

func slackRetryable(err error) bool {
	var rl *slackgo.RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	var sc slackgo.StatusCodeError
	if errors.As(err, &sc) {
		return sc.Code == http.StatusTooManyRequests || sc.Code >= 500
	}
	return webhookRetryable(err)
}

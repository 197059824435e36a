package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
)

// DiscordChannel posts to Discord incoming webhooks. Each envelope target is a
// webhook URL.
type DiscordChannel struct {
	Base
	cfg        backend.DiscordConfig
	httpClient *http.Client
}

func NewDiscordChannel(cfg backend.DiscordConfig, log *zap.Logger) *DiscordChannel {
	return &DiscordChannel{
		Base:       NewBase(bus.BackendDiscord, log, cfg.Retry, cfg.RatePerSec, webhookRetryable),
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// Init has nothing to validate: webhooks carry their own credentials.
func (d *DiscordChannel) Init(context.Context) error {
	d.log.Info("discord notifier initialized")
	return nil
}

// Deliver posts the text (if any), then every photo URL, then every video URL,
// each as its own message. A failed post is logged and the next one still goes out.
func (d *DiscordChannel) Deliver(ctx context.Context, env bus.Envelope) error {
	var posts []string
	if text := env.Text(); text != "" {
		posts = append(posts, text)
	}
	posts = append(posts, env.Photos()...)
	posts = append(posts, env.Videos()...)

	return d.fanout(ctx, env.Targets(), func(ctx context.Context, webhook string) error {
		var errs []error
		for i, content := range posts {
			err := d.attempt(ctx, func(ctx context.Context) error {
				return d.post(ctx, webhook, content)
			})
			if err != nil {
				d.log.Warn("discord post failed",
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

func (d *DiscordChannel) post(ctx context.Context, webhook, content string) error {
	data, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord webhook: %w", newStatusError(resp))
	}
	return nil
}

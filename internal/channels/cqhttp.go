package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
)

// CqhttpChannel posts to cqhttp (OneBot v11) HTTP endpoints such as
// http://127.0.0.1:5700/send_private_msg?user_id=123.
type CqhttpChannel struct {
	Base
	cfg        backend.CqhttpConfig
	httpClient *http.Client
}

func NewCqhttpChannel(cfg backend.CqhttpConfig, log *zap.Logger) *CqhttpChannel {
	return &CqhttpChannel{
		Base:       NewBase(bus.BackendCqhttp, log, cfg.Retry, cfg.RatePerSec, webhookRetryable),
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

func (c *CqhttpChannel) Init(context.Context) error {
	c.log.Info("cqhttp notifier initialized", zap.Bool("auth", c.cfg.Token != ""))
	return nil
}

// Deliver sends the text, then one image token per photo, then one video
// token per video. The first failure aborts the remaining posts for that
// target only.
func (c *CqhttpChannel) Deliver(ctx context.Context, env bus.Envelope) error {
	var messages []string
	if text := env.Text(); text != "" {
		messages = append(messages, stripScheme(text))
	}
	for _, u := range env.Photos() {
		messages = append(messages, "[CQ:image,file="+u+"]")
	}
	for _, u := range env.Videos() {
		messages = append(messages, "[CQ:video,file="+u+"]")
	}

	return c.fanout(ctx, env.Targets(), func(ctx context.Context, endpoint string) error {
		for i, msg := range messages {
			err := c.attempt(ctx, func(ctx context.Context) error {
				return c.post(ctx, endpoint, msg)
			})
			if err != nil {
				return fmt.Errorf("post %d of %d: %w", i+1, len(messages), err)
			}
		}
		return nil
	})
}

// stripScheme keeps QQ from turning links into previews.
func stripScheme(text string) string {
	text = strings.ReplaceAll(text, "https://", "")
	return strings.ReplaceAll(text, "http://", "")
}

func (c *CqhttpChannel) post(ctx context.Context, endpoint, message string) error {
	form := url.Values{"message": {message}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cqhttp: %w", newStatusError(resp))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("cqhttp: read response: %w", err)
	}
	var result struct {
		Status  string `json:"status"`
		RetCode int    `json:"retcode"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("cqhttp: decode response: %w", err)
	}
	if result.Status != "ok" {
		return fmt.Errorf("cqhttp: response status %q (retcode %d): %s", result.Status, result.RetCode, body)
	}
	return nil
}

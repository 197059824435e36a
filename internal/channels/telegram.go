package channels

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
)

// maxMediaGroup is the Bot API limit on items in one sendMediaGroup call.
const maxMediaGroup = 10

// telegramAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetUpdates(c tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// TelegramChannel delivers envelopes through the Telegram Bot API and owns the
// update cursor shared by the confirm protocol and the exit listener.
type TelegramChannel struct {
	Base
	cfg     backend.TelegramConfig
	connect func(cfg backend.TelegramConfig) (telegramAPI, error)
	api     telegramAPI

	// pollMu serializes getUpdates with the cursor advance.
	pollMu sync.Mutex
	offset int
}

// NewTelegramChannel creates a TelegramChannel. The bot is created by Init.
func NewTelegramChannel(cfg backend.TelegramConfig, log *zap.Logger) *TelegramChannel {
	return &TelegramChannel{
		Base:    NewBase(bus.BackendTelegram, log, cfg.Retry, cfg.RatePerSec, telegramRetryable),
		cfg:     cfg,
		connect: dialTelegram,
	}
}

func dialTelegram(cfg backend.TelegramConfig) (telegramAPI, error) {
	client := newHTTPClient(cfg.Timeout)
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// Init validates the token with getMe and primes the update cursor so that
// updates sent before startup are never seen.
func (t *TelegramChannel) Init(ctx context.Context) error {
	if t.cfg.Token == "" {
		return errors.New("telegram: bot token not configured")
	}
	api, err := t.connect(t.cfg)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.api = api

	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	updates, err := t.getUpdates(ctx, 0)
	if err != nil {
		return fmt.Errorf("telegram: prime update cursor: %w", err)
	}
	t.advance(updates)
	t.log.Info("telegram notifier initialized", zap.Int("offset", t.offset))
	return nil
}

// Deliver sends env to every chat in its targets.
func (t *TelegramChannel) Deliver(ctx context.Context, env bus.Envelope) error {
	if t.api == nil {
		return errors.New("telegram: bot not initialized")
	}
	return t.fanout(ctx, env.Targets(), func(ctx context.Context, target string) error {
		chatID, err := parseChatID(target)
		if err != nil {
			return err
		}
		return t.sendToChat(ctx, chatID, env)
	})
}

// sendToChat sends env to one chat. A malformed-request rejection triggers a
// single text-only resend with a fresh retry budget.
func (t *TelegramChannel) sendToChat(ctx context.Context, chatID int64, env bus.Envelope) error {
	err := t.attempt(ctx, func(context.Context) error {
		return t.send(chatID, env)
	})
	if err == nil || !t.cfg.Retry.TextFallback || !isBadRequest(err) {
		return err
	}

	t.log.Error("request rejected, sending without media",
		zap.Int64("chat_id", chatID),
		zap.Error(err),
	)
	plain := env.WithoutMedia()
	if ferr := t.attempt(ctx, func(context.Context) error {
		return t.send(chatID, plain)
	}); ferr != nil {
		return fmt.Errorf("text-only resend after %v: %w", err, ferr)
	}
	return nil
}

// send issues the single API call matching env's content. A video wins over
// photos and is sent with the text as caption; one photo is sent with a
// caption; several photos go out as a media group with the caption on the
// first item.
func (t *TelegramChannel) send(chatID int64, env bus.Envelope) error {
	text := env.Text()
	photos, videos := env.Photos(), env.Videos()

	switch {
	case len(videos) > 0:
		v := tgbotapi.NewVideo(chatID, tgbotapi.FileURL(videos[0]))
		v.Caption = text
		_, err := t.api.Send(v)
		return err
	case len(photos) == 1:
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photos[0]))
		p.Caption = text
		_, err := t.api.Send(p)
		return err
	case len(photos) > 1:
		if len(photos) > maxMediaGroup {
			photos = photos[:maxMediaGroup]
		}
		media := make([]interface{}, 0, len(photos))
		for i, u := range photos {
			item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(u))
			if i == 0 {
				item.Caption = text
			}
			media = append(media, item)
		}
		_, err := t.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
		return err
	default:
		m := tgbotapi.NewMessage(chatID, text)
		m.DisableWebPagePreview = true
		_, err := t.api.Send(m)
		return err
	}
}

// PollUpdates fetches updates after the cursor and advances it past them.
// Concurrent callers are serialized, so no update is returned twice.
func (t *TelegramChannel) PollUpdates(ctx context.Context) ([]tgbotapi.Update, error) {
	if t.api == nil {
		return nil, errors.New("telegram: bot not initialized")
	}
	t.pollMu.Lock()
	defer t.pollMu.Unlock()

	updates, err := t.getUpdates(ctx, t.offset)
	if err != nil {
		return nil, err
	}
	t.advance(updates)
	return updates, nil
}

// Offset returns the current update cursor; 0 means none has been set.
func (t *TelegramChannel) Offset() int {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	return t.offset
}

func (t *TelegramChannel) getUpdates(ctx context.Context, offset int) ([]tgbotapi.Update, error) {
	var updates []tgbotapi.Update
	err := t.attempt(ctx, func(context.Context) error {
		var err error
		updates, err = t.api.GetUpdates(tgbotapi.NewUpdate(offset))
		return err
	})
	return updates, err
}

// advance moves the cursor past the last update. It never moves backwards.
func (t *TelegramChannel) advance(updates []tgbotapi.Update) {
	if len(updates) == 0 {
		return
	}
	if next := updates[len(updates)-1].UpdateID + 1; next > t.offset {
		t.offset = next
	}
}

// telegramRetryable reports rate limiting, server errors, timeouts and
// network faults as transient.
func telegramRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isBadRequest(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat_id: %s", s)
	}
	return id, nil
}

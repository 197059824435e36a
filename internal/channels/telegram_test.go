package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
	"github.com/alertrelay/alertrelay/internal/notifier"
)

// fakeTelegramAPI records every call and answers from hooks.
type fakeTelegramAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	groups  []tgbotapi.MediaGroupConfig
	offsets []int

	sendFn    func(c tgbotapi.Chattable) error
	groupFn   func(c tgbotapi.MediaGroupConfig) error
	updatesFn func(offset int) ([]tgbotapi.Update, error)
}

func (f *fakeTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return tgbotapi.Message{}, fn(c)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegramAPI) SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	f.groups = append(f.groups, c)
	fn := f.groupFn
	f.mu.Unlock()
	if fn != nil {
		return nil, fn(c)
	}
	return nil, nil
}

func (f *fakeTelegramAPI) GetUpdates(c tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, c.Offset)
	fn := f.updatesFn
	f.mu.Unlock()
	if fn != nil {
		return fn(c.Offset)
	}
	return nil, nil
}

func (f *fakeTelegramAPI) sentMessages() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

func newTestTelegram(t *testing.T, api *fakeTelegramAPI, log *zap.Logger, sleeps *[]time.Duration) *TelegramChannel {
	t.Helper()
	cfg := backend.DefaultTelegramConfig()
	cfg.Token = "123:abc"
	tg := NewTelegramChannel(cfg, log)
	tg.connect = func(backend.TelegramConfig) (telegramAPI, error) { return api, nil }
	tg.SetSleep(func(_ context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	})
	require.NoError(t, tg.Init(context.Background()))
	return tg
}

func apiError(code int) error {
	return &tgbotapi.Error{Code: code, Message: "Bad Request: wrong file identifier"}
}

func update(id int, chatID int64, text string, at time.Time) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			Date: int(at.Unix()),
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	}
}

func TestTelegram_InitRequiresToken(t *testing.T) {
	tg := NewTelegramChannel(backend.DefaultTelegramConfig(), zap.NewNop())
	err := tg.Init(context.Background())
	assert.ErrorContains(t, err, "token not configured")
}

func TestTelegram_InitPrimesCursor(t *testing.T) {
	now := time.Now()
	api := &fakeTelegramAPI{updatesFn: func(offset int) ([]tgbotapi.Update, error) {
		if offset == 0 {
			return []tgbotapi.Update{update(7, 1, "old", now), update(9, 1, "older", now)}, nil
		}
		return nil, nil
	}}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)

	assert.Equal(t, 10, tg.Offset())
	updates, err := tg.PollUpdates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.Equal(t, []int{0, 10}, api.offsets)
}

func TestTelegram_CursorNeverDecreases(t *testing.T) {
	now := time.Now()
	responses := [][]tgbotapi.Update{
		nil,
		{update(4, 1, "a", now), update(5, 1, "b", now)},
		{update(3, 1, "stale", now)},
		nil,
	}
	var call int
	api := &fakeTelegramAPI{updatesFn: func(int) ([]tgbotapi.Update, error) {
		r := responses[call]
		call++
		return r, nil
	}}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)
	assert.Equal(t, 0, tg.Offset())

	_, err := tg.PollUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, tg.Offset())

	_, err = tg.PollUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, tg.Offset())

	_, err = tg.PollUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 6, 6}, api.offsets)
}

func TestTelegram_TextMessage(t *testing.T) {
	api := &fakeTelegramAPI{}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)

	err := tg.Deliver(context.Background(), bus.NewTelegramEnvelope([]int64{42}, "disk full"))
	require.NoError(t, err)

	sent := api.sentMessages()
	require.Len(t, sent, 1)
	msg, ok := sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok, "expected MessageConfig, got %T", sent[0])
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "disk full", msg.Text)
	assert.True(t, msg.DisableWebPagePreview)
}

func TestTelegram_VideoTakesPrecedence(t *testing.T) {
	api := &fakeTelegramAPI{}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)

	env := bus.NewTelegramEnvelope([]int64{1}, "clip").
		WithPhotos("https://x/1.jpg").
		WithVideos("https://x/a.mp4", "https://x/b.mp4")
	require.NoError(t, tg.Deliver(context.Background(), env))

	sent := api.sentMessages()
	require.Len(t, sent, 1)
	v, ok := sent[0].(tgbotapi.VideoConfig)
	require.True(t, ok, "expected VideoConfig, got %T", sent[0])
	assert.Equal(t, tgbotapi.FileURL("https://x/a.mp4"), v.File)
	assert.Equal(t, "clip", v.Caption)
	assert.Empty(t, api.groups)
}

func TestTelegram_SinglePhoto(t *testing.T) {
	api := &fakeTelegramAPI{}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)

	env := bus.NewTelegramEnvelope([]int64{1}, "chart").WithPhotos("https://x/1.jpg")
	require.NoError(t, tg.Deliver(context.Background(), env))

	sent := api.sentMessages()
	require.Len(t, sent, 1)
	p, ok := sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok, "expected PhotoConfig, got %T", sent[0])
	assert.Equal(t, tgbotapi.FileURL("https://x/1.jpg"), p.File)
	assert.Equal(t, "chart", p.Caption)
}

func TestTelegram_MediaGroupCapsAtTen(t *testing.T) {
	api := &fakeTelegramAPI{}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)

	photos := make([]string, 12)
	for i := range photos {
		photos[i] = "https://x/" + string(rune('a'+i)) + ".jpg"
	}
	env := bus.NewTelegramEnvelope([]int64{1}, "album").WithPhotos(photos...)
	require.NoError(t, tg.Deliver(context.Background(), env))

	require.Len(t, api.groups, 1)
	media := api.groups[0].Media
	require.Len(t, media, maxMediaGroup)
	for i, m := range media {
		item, ok := m.(tgbotapi.InputMediaPhoto)
		require.True(t, ok)
		assert.Equal(t, tgbotapi.FileURL(photos[i]), item.Media)
		if i == 0 {
			assert.Equal(t, "album", item.Caption)
		} else {
			assert.Empty(t, item.Caption)
		}
	}
	assert.Empty(t, api.sentMessages())
}

func TestTelegram_RetriesTransientFaults(t *testing.T) {
	var calls int
	api := &fakeTelegramAPI{sendFn: func(tgbotapi.Chattable) error {
		calls++
		if calls < 3 {
			return apiError(429)
		}
		return nil
	}}
	var sleeps []time.Duration
	tg := newTestTelegram(t, api, zap.NewNop(), &sleeps)

	require.NoError(t, tg.Deliver(context.Background(), bus.NewTelegramEnvelope([]int64{1}, "hi")))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps)
}

func TestTelegram_GivesUpAfterBudget(t *testing.T) {
	api := &fakeTelegramAPI{sendFn: func(tgbotapi.Chattable) error { return apiError(502) }}
	var sleeps []time.Duration
	tg := newTestTelegram(t, api, zap.NewNop(), &sleeps)

	err := tg.Deliver(context.Background(), bus.NewTelegramEnvelope([]int64{1}, "hi"))
	assert.ErrorIs(t, err, notifier.ErrRetriesExhausted)
	assert.Len(t, api.sentMessages(), 5)
	assert.Len(t, sleeps, 4)
}

func TestTelegram_BadRequestFallsBackToText(t *testing.T) {
	api := &fakeTelegramAPI{sendFn: func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.PhotoConfig); ok {
			return apiError(400)
		}
		return nil
	}}
	core, logs := observer.New(zapcore.ErrorLevel)
	var sleeps []time.Duration
	tg := newTestTelegram(t, api, zap.New(core), &sleeps)

	env := bus.NewTelegramEnvelope([]int64{1}, "with media").WithPhotos("https://x/broken.jpg")
	require.NoError(t, tg.Deliver(context.Background(), env))

	sent := api.sentMessages()
	require.Len(t, sent, 2, "one rejected photo, one text-only resend")
	_, isPhoto := sent[0].(tgbotapi.PhotoConfig)
	assert.True(t, isPhoto)
	msg, ok := sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "with media", msg.Text)
	assert.Empty(t, sleeps, "a malformed request is not retried")
	assert.Equal(t, 1, logs.FilterMessage("request rejected, sending without media").Len())
}

func TestTelegram_FallbackHasFreshBudget(t *testing.T) {
	var textCalls int
	api := &fakeTelegramAPI{sendFn: func(c tgbotapi.Chattable) error {
		switch c.(type) {
		case tgbotapi.VideoConfig:
			return apiError(400)
		case tgbotapi.MessageConfig:
			textCalls++
			if textCalls < 5 {
				return apiError(500)
			}
		}
		return nil
	}}
	var sleeps []time.Duration
	tg := newTestTelegram(t, api, zap.NewNop(), &sleeps)

	env := bus.NewTelegramEnvelope([]int64{1}, "v").WithVideos("https://x/v.mp4")
	require.NoError(t, tg.Deliver(context.Background(), env))
	assert.Equal(t, 5, textCalls)
	assert.Len(t, sleeps, 4)
}

func TestTelegram_FallbackDisabled(t *testing.T) {
	api := &fakeTelegramAPI{sendFn: func(tgbotapi.Chattable) error { return apiError(400) }}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)
	tg.cfg.Retry.TextFallback = false

	env := bus.NewTelegramEnvelope([]int64{1}, "x").WithPhotos("https://x/1.jpg")
	err := tg.Deliver(context.Background(), env)

	var apiErr *tgbotapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Len(t, api.sentMessages(), 1)
}

func TestTelegram_FanoutIsolatesTargets(t *testing.T) {
	api := &fakeTelegramAPI{sendFn: func(c tgbotapi.Chattable) error {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == 100 {
			return errors.New("chat not reachable")
		}
		return nil
	}}
	core, logs := observer.New(zapcore.ErrorLevel)
	tg := newTestTelegram(t, api, zap.New(core), nil)

	err := tg.Deliver(context.Background(), bus.NewTelegramEnvelope([]int64{100, 200}, "fan"))

	var te *notifier.TargetError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "100", te.Target)
	assert.Equal(t, bus.BackendTelegram, te.Backend)

	sent := api.sentMessages()
	require.Len(t, sent, 2, "both targets attempted")
	assert.Equal(t, int64(200), sent[1].(tgbotapi.MessageConfig).ChatID)

	entries := logs.FilterMessage("send to target failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "100", entries[0].ContextMap()["target"])
}

func TestTelegram_InvalidChatID(t *testing.T) {
	api := &fakeTelegramAPI{}
	tg := newTestTelegram(t, api, zap.NewNop(), nil)

	env := bus.NewEnvelope(bus.BackendTelegram, []string{"not-a-chat"}, "x")
	err := tg.Deliver(context.Background(), env)
	assert.ErrorContains(t, err, "invalid chat_id")
	assert.Empty(t, api.sentMessages())
}

func TestTelegramRetryable(t *testing.T) {
	assert.True(t, telegramRetryable(apiError(429)))
	assert.True(t, telegramRetryable(apiError(503)))
	assert.False(t, telegramRetryable(apiError(400)))
	assert.False(t, telegramRetryable(apiError(403)))
	assert.False(t, telegramRetryable(context.Canceled))
	assert.False(t, telegramRetryable(errors.New("plain")))
}

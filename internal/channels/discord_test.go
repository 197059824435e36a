package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
	"github.com/alertrelay/alertrelay/internal/notifier"
)

// webhookRecorder is an httptest handler that records JSON "content" fields.
type webhookRecorder struct {
	mu       sync.Mutex
	contents []string
	respond  func(w http.ResponseWriter, content string)
}

func (rec *webhookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	rec.mu.Lock()
	rec.contents = append(rec.contents, body.Content)
	rec.mu.Unlock()
	if rec.respond != nil {
		rec.respond(w, body.Content)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rec *webhookRecorder) got() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.contents...)
}

func TestDiscord_PostsTextThenMedia(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d := NewDiscordChannel(backend.DefaultDiscordConfig(), zap.NewNop())
	require.NoError(t, d.Init(context.Background()))

	env := bus.NewDiscordEnvelope([]string{srv.URL}, "deploy done").
		WithPhotos("https://x/1.jpg", "https://x/2.jpg").
		WithVideos("https://x/v.mp4")
	require.NoError(t, d.Deliver(context.Background(), env))

	assert.Equal(t, []string{"deploy done", "https://x/1.jpg", "https://x/2.jpg", "https://x/v.mp4"}, rec.got())
}

func TestDiscord_MediaOnlySkipsEmptyText(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d := NewDiscordChannel(backend.DefaultDiscordConfig(), zap.NewNop())
	env := bus.NewDiscordEnvelope([]string{srv.URL}, "").WithPhotos("https://x/1.jpg")
	require.NoError(t, d.Deliver(context.Background(), env))

	assert.Equal(t, []string{"https://x/1.jpg"}, rec.got())
}

func TestDiscord_Non204IsFailureWithBody(t *testing.T) {
	rec := &webhookRecorder{respond: func(w http.ResponseWriter, content string) {
		if content == "https://x/1.jpg" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message": "Cannot send an empty message"}`))
			return
		}
		// 200 is not success for a webhook without ?wait=true.
		if content == "https://x/2.jpg" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d := NewDiscordChannel(backend.DefaultDiscordConfig(), zap.NewNop())
	env := bus.NewDiscordEnvelope([]string{srv.URL}, "text").
		WithPhotos("https://x/1.jpg", "https://x/2.jpg", "https://x/3.jpg")
	err := d.Deliver(context.Background(), env)

	require.Error(t, err)
	assert.ErrorContains(t, err, "Cannot send an empty message")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.ErrorContains(t, err, "HTTP 200")
	assert.Len(t, rec.got(), 4, "every post attempted")
}

func TestDiscord_MultiTargetIsolation(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()
	rec := &webhookRecorder{}
	good := httptest.NewServer(rec)
	defer good.Close()

	d := NewDiscordChannel(backend.DefaultDiscordConfig(), zap.NewNop())
	err := d.Deliver(context.Background(), bus.NewDiscordEnvelope([]string{bad.URL, good.URL}, "hello"))

	var te *notifier.TargetError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, bad.URL, te.Target)
	assert.Equal(t, []string{"hello"}, rec.got())
}

func TestDiscord_RetriesServerErrorsWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	rec := &webhookRecorder{respond: func(w http.ResponseWriter, _ string) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	cfg := backend.DefaultDiscordConfig()
	cfg.Retry.MaxAttempts = 2
	d := NewDiscordChannel(cfg, zap.NewNop())
	d.SetSleep(func(context.Context, time.Duration) error { return nil })

	require.NoError(t, d.Deliver(context.Background(), bus.NewDiscordEnvelope([]string{srv.URL}, "x")))
	assert.Equal(t, int32(2), calls.Load())
}

package remote

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

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 400*int(time.Millisecond), time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	envs []bus.Envelope
	err  error
}

func (s *recordingSender) Deliver(_ context.Context, env bus.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return s.err
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.envs))
	for _, e := range s.envs {
		out = append(out, e.Text())
	}
	return out
}

// scriptedUpdates returns one batch per poll and nothing once exhausted.
type scriptedUpdates struct {
	batches [][]tgbotapi.Update
	err     error
	polls   int
}

func (s *scriptedUpdates) PollUpdates(context.Context) ([]tgbotapi.Update, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.polls++
	if len(s.batches) == 0 {
		return nil, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func msg(id int, chatID int64, text string, at time.Time) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			Date: int(at.Unix()),
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	}
}

func newTestController(sender Sender, updates UpdateSource, sleeps *[]time.Duration, maxSleeps int) *Controller {
	c := NewController(sender, updates, config.DefaultConfig().Remote, zap.NewNop())
	c.now = func() time.Time { return t0 }
	c.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		if maxSleeps > 0 && len(*sleeps) >= maxSleeps {
			return context.Canceled
		}
		return nil
	}
	return c
}

func TestConfirm_IgnoresEarlierRepliesAndOtherChats(t *testing.T) {
	sender := &recordingSender{}
	updates := &scriptedUpdates{batches: [][]tgbotapi.Update{
		{
			msg(1, 42, "Y", t0.Add(-2*time.Second)),
			msg(2, 99, "Y", t0.Add(time.Second)),
			{UpdateID: 3},
			msg(4, 42, "maybe", t0.Add(time.Second)),
		},
		{msg(5, 42, " n ", t0.Add(3*time.Second))},
	}}
	var sleeps []time.Duration
	c := newTestController(sender, updates, &sleeps, 0)

	ok, err := c.Confirm(context.Background(), "Restart the watcher?", []int64{42})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"Restart the watcher?\nPlease reply Y/N"}, sender.texts())
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeps)
	assert.Equal(t, 2, updates.polls)
}

func TestConfirm_SameSecondReplyCounts(t *testing.T) {
	sender := &recordingSender{}
	updates := &scriptedUpdates{batches: [][]tgbotapi.Update{
		{msg(1, 7, "y", t0.Truncate(time.Second))},
	}}
	var sleeps []time.Duration
	c := newTestController(sender, updates, &sleeps, 0)

	ok, err := c.Confirm(context.Background(), "Go?", []int64{5, 7})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, sleeps)

	require.Len(t, sender.envs, 1)
	assert.Equal(t, []string{"5", "7"}, sender.envs[0].Targets())
	assert.Equal(t, bus.BackendTelegram, sender.envs[0].Backend())
}

func TestConfirm_PollFailureIsReturned(t *testing.T) {
	boom := errors.New("bad gateway")
	var sleeps []time.Duration
	c := newTestController(&recordingSender{}, &scriptedUpdates{err: boom}, &sleeps, 0)

	_, err := c.Confirm(context.Background(), "Go?", []int64{1})
	assert.ErrorIs(t, err, boom)
}

func TestConfirm_SendFailureIsReturned(t *testing.T) {
	boom := errors.New("chat not found")
	var sleeps []time.Duration
	updates := &scriptedUpdates{}
	c := newTestController(&recordingSender{err: boom}, updates, &sleeps, 0)

	_, err := c.Confirm(context.Background(), "Go?", []int64{1})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, updates.polls)
}

func TestConfirm_StopsOnCancellation(t *testing.T) {
	var sleeps []time.Duration
	c := newTestController(&recordingSender{}, &scriptedUpdates{}, &sleeps, 3)

	_, err := c.Confirm(context.Background(), "Go?", []int64{1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sleeps, 3)
}

func TestListenExitCommand_ConfirmedExit(t *testing.T) {
	sender := &recordingSender{}
	updates := &scriptedUpdates{batches: [][]tgbotapi.Update{
		{msg(1, 42, "exit", t0.Add(-time.Minute))},
		{msg(2, 99, "EXIT", t0.Add(time.Second))},
		{msg(3, 42, " Exit ", t0.Add(2*time.Second))},
		{msg(4, 42, "y", t0.Add(3*time.Second))},
	}}
	var sleeps []time.Duration
	c := newTestController(sender, updates, &sleeps, 0)

	err := c.ListenExitCommand(context.Background(), 42)

	assert.ErrorIs(t, err, ErrExitRequested)
	assert.Equal(t, []string{
		"Do you want to exit the program?\nPlease reply Y/N",
		"Program will exit after 5 sec.",
	}, sender.texts())
	assert.Equal(t, []time.Duration{20 * time.Second, 20 * time.Second, 5 * time.Second}, sleeps)
}

func TestListenExitCommand_DeclinedResumes(t *testing.T) {
	sender := &recordingSender{}
	updates := &scriptedUpdates{batches: [][]tgbotapi.Update{
		{msg(1, 42, "EXIT", t0.Add(time.Second))},
		{msg(2, 42, "N", t0.Add(2*time.Second))},
	}}
	var sleeps []time.Duration
	c := newTestController(sender, updates, &sleeps, 2)

	err := c.ListenExitCommand(context.Background(), 42)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"Do you want to exit the program?\nPlease reply Y/N"}, sender.texts())
	assert.Equal(t, []time.Duration{20 * time.Second, 20 * time.Second}, sleeps)
}

package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config"
	"github.com/alertrelay/alertrelay/internal/status"
)

type captureEnqueuer struct {
	mu   sync.Mutex
	envs []bus.Envelope
}

func (c *captureEnqueuer) Enqueue(env bus.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	return nil
}

func (c *captureEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.envs)
}

func TestSummary(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	got := Summary(map[bus.Backend]bool{
		bus.BackendCqhttp:   false,
		bus.BackendTelegram: true,
	}, at)
	assert.Equal(t, "alertrelay status at 2024-03-01 09:30:00\ntelegram: idle\ncqhttp: busy", got)

	assert.Contains(t, Summary(nil, at), "no backends initialized")
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	_, err := NewService(config.HeartbeatConfig{Schedule: "@every 1m", Backend: "pager"}, status.NewRegistry(), &captureEnqueuer{}, nil)
	assert.ErrorContains(t, err, "unknown backend")

	_, err = NewService(config.HeartbeatConfig{Schedule: "whenever", Backend: "discord"}, status.NewRegistry(), &captureEnqueuer{}, nil)
	assert.ErrorContains(t, err, "schedule")
}

func TestReport_EnqueuesSnapshot(t *testing.T) {
	reg := status.NewRegistry()
	reg.Set(bus.BackendDiscord, true)
	out := &captureEnqueuer{}
	svc, err := NewService(config.HeartbeatConfig{
		Schedule: "0 9 * * *",
		Backend:  "discord",
		Targets:  []string{"https://discord.test/hook"},
	}, reg, out, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.Report())

	require.Len(t, out.envs, 1)
	env := out.envs[0]
	assert.Equal(t, bus.BackendDiscord, env.Backend())
	assert.Equal(t, []string{"https://discord.test/hook"}, env.Targets())
	assert.Contains(t, env.Text(), "discord: idle")
}

func TestStart_FiresOnSchedule(t *testing.T) {
	out := &captureEnqueuer{}
	svc, err := NewService(config.HeartbeatConfig{
		Schedule: "@every 1s",
		Backend:  "telegram",
		Targets:  []string{"42"},
	}, status.NewRegistry(), out, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.Eventually(t, func() bool { return out.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

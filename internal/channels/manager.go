package channels

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config"
	"github.com/alertrelay/alertrelay/internal/notifier"
	"github.com/alertrelay/alertrelay/internal/schema"
	"github.com/alertrelay/alertrelay/internal/status"
)

// ErrUnknownBackend is returned for envelopes addressed to a backend that is
// not enabled.
var ErrUnknownBackend = errors.New("backend not enabled")

// Manager owns one actor per enabled backend and routes envelopes to them.
type Manager struct {
	actors   map[bus.Backend]*notifier.Actor
	order    []bus.Backend
	telegram *TelegramChannel
	registry *status.Registry
	log      *zap.Logger
}

// NewManager builds an adapter and an actor for every enabled backend.
// Nothing touches the network until InitAll.
func NewManager(cfg *config.Config, registry *status.Registry, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	b := cfg.Backends
	var ds []schema.Deliverer
	var tg *TelegramChannel

	if b.Telegram.Enabled {
		tg = NewTelegramChannel(b.Telegram, log.Named(loggerName(b.Telegram.Logger, bus.BackendTelegram)))
		ds = append(ds, tg)
	}
	if b.Discord.Enabled {
		ds = append(ds, NewDiscordChannel(b.Discord, log.Named(loggerName(b.Discord.Logger, bus.BackendDiscord))))
	}
	if b.Cqhttp.Enabled {
		ds = append(ds, NewCqhttpChannel(b.Cqhttp, log.Named(loggerName(b.Cqhttp.Logger, bus.BackendCqhttp))))
	}
	if b.Slack.Enabled {
		ds = append(ds, NewSlackChannel(b.Slack, log.Named(loggerName(b.Slack.Logger, bus.BackendSlack))))
	}

	m := newManager(registry, log, ds...)
	m.telegram = tg
	return m
}

func newManager(registry *status.Registry, log *zap.Logger, ds ...schema.Deliverer) *Manager {
	m := &Manager{
		actors:   make(map[bus.Backend]*notifier.Actor, len(ds)),
		registry: registry,
		log:      log,
	}
	for _, d := range ds {
		m.actors[d.Name()] = notifier.NewActor(d, registry, log)
		m.order = append(m.order, d.Name())
		log.Info("backend enabled", zap.String("backend", string(d.Name())))
	}
	return m
}

func loggerName(configured string, b bus.Backend) string {
	if configured != "" {
		return configured
	}
	return string(b)
}

// InitAll initializes every actor. Backends that fail stay uninitialized; the
// returned error joins every failure.
func (m *Manager) InitAll(ctx context.Context) error {
	var errs []error
	for _, b := range m.order {
		if err := m.actors[b].Init(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Init initializes a single backend.
func (m *Manager) Init(ctx context.Context, b bus.Backend) error {
	a, err := m.actor(b)
	if err != nil {
		return err
	}
	return a.Init(ctx)
}

// Enqueue routes env to the actor for its backend.
func (m *Manager) Enqueue(env bus.Envelope) error {
	a, err := m.actor(env.Backend())
	if err != nil {
		return err
	}
	return a.Enqueue(env)
}

// Deliver sends env immediately through its backend, bypassing the queue.
func (m *Manager) Deliver(ctx context.Context, env bus.Envelope) error {
	a, err := m.actor(env.Backend())
	if err != nil {
		return err
	}
	return a.Deliver(ctx, env)
}

// Actor returns the actor for b.
func (m *Manager) Actor(b bus.Backend) (*notifier.Actor, bool) {
	a, ok := m.actors[b]
	return a, ok
}

// Telegram returns the Telegram adapter, or nil when Telegram is disabled.
func (m *Manager) Telegram() *TelegramChannel { return m.telegram }

// Registry returns the status registry the actors report to.
func (m *Manager) Registry() *status.Registry { return m.registry }

// EnabledBackends returns the enabled backends in configuration order.
func (m *Manager) EnabledBackends() []bus.Backend {
	return append([]bus.Backend(nil), m.order...)
}

// Shutdown stops every actor concurrently, letting each drain its queue until
// ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	var g errgroup.Group
	for _, b := range m.order {
		a := m.actors[b]
		g.Go(func() error {
			if err := a.Stop(ctx); err != nil {
				return fmt.Errorf("stop %s: %w", a.Backend(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) actor(b bus.Backend) (*notifier.Actor, error) {
	a, ok := m.actors[b]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, b)
	}
	return a, nil
}

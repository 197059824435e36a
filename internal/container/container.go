// Package container wires alertrelay services using go.uber.org/dig.
package container

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/channels"
	"github.com/alertrelay/alertrelay/internal/config"
	"github.com/alertrelay/alertrelay/internal/cron"
	"github.com/alertrelay/alertrelay/internal/heartbeat"
	"github.com/alertrelay/alertrelay/internal/logging"
	"github.com/alertrelay/alertrelay/internal/remote"
	"github.com/alertrelay/alertrelay/internal/server"
	"github.com/alertrelay/alertrelay/internal/status"
)

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
// Optional services are nil when disabled in config.
type Container struct {
	logger    *zap.Logger
	registry  *status.Registry
	manager   *channels.Manager
	remote    *remote.Controller
	heartbeat *heartbeat.Service
	scheduler *cron.Service
	server    *server.Server
}

func (c *Container) Logger() *zap.Logger           { return c.logger }
func (c *Container) Registry() *status.Registry    { return c.registry }
func (c *Container) Manager() *channels.Manager    { return c.manager }
func (c *Container) Remote() *remote.Controller    { return c.remote }
func (c *Container) Heartbeat() *heartbeat.Service { return c.heartbeat }
func (c *Container) Scheduler() *cron.Service      { return c.scheduler }
func (c *Container) Server() *server.Server        { return c.server }

// New builds and wires all services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(newLogger); err != nil {
		return nil, err
	}
	if err := d.Provide(status.NewRegistry); err != nil {
		return nil, err
	}
	if err := d.Provide(newManager); err != nil {
		return nil, err
	}
	if err := d.Provide(newRemote); err != nil {
		return nil, err
	}
	if err := d.Provide(newHeartbeat); err != nil {
		return nil, err
	}
	if err := d.Provide(newScheduler); err != nil {
		return nil, err
	}
	if err := d.Provide(newServer); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		logger *zap.Logger,
		registry *status.Registry,
		manager *channels.Manager,
		ctl *remote.Controller,
		hb *heartbeat.Service,
		sched *cron.Service,
		srv *server.Server,
	) {
		result = &Container{
			logger:    logger,
			registry:  registry,
			manager:   manager,
			remote:    ctl,
			heartbeat: hb,
			scheduler: sched,
			server:    srv,
		}
	})
	return result, err
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

func newManager(cfg *config.Config, registry *status.Registry, logger *zap.Logger) *channels.Manager {
	return channels.NewManager(cfg, registry, logger)
}

func newRemote(cfg *config.Config, m *channels.Manager, logger *zap.Logger) *remote.Controller {
	tg := m.Telegram()
	if !cfg.Remote.Enabled || tg == nil {
		return nil
	}
	return remote.NewController(m, tg, cfg.Remote, logger.Named("remote"))
}

func newHeartbeat(cfg *config.Config, registry *status.Registry, m *channels.Manager, logger *zap.Logger) (*heartbeat.Service, error) {
	if !cfg.Heartbeat.Enabled {
		return nil, nil
	}
	return heartbeat.NewService(cfg.Heartbeat, registry, m, logger.Named("heartbeat"))
}

func newScheduler(cfg *config.Config, m *channels.Manager, logger *zap.Logger) *cron.Service {
	if !cfg.Schedules.Enabled {
		return nil
	}
	return cron.NewService(cfg.Schedules.StorePath(), m, logger.Named("cron"))
}

func newServer(cfg *config.Config, registry *status.Registry, m *channels.Manager, logger *zap.Logger) *server.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return server.New(cfg.Metrics, registry, m, logger)
}

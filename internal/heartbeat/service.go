// Package heartbeat sends a periodic status report listing every backend's
// health flag, so operators notice a silent gateway.
package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"time"

	robfigcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config"
	"github.com/alertrelay/alertrelay/internal/status"
)

// Enqueuer accepts envelopes for asynchronous delivery.
type Enqueuer interface {
	Enqueue(env bus.Envelope) error
}

// Service enqueues a status report on a cron schedule.
type Service struct {
	backend  bus.Backend
	targets  []string
	schedule robfigcron.Schedule
	spec     string

	registry *status.Registry
	out      Enqueuer
	log      *zap.Logger
	now      func() time.Time
}

// NewService validates cfg and creates a Service.
func NewService(cfg config.HeartbeatConfig, registry *status.Registry, out Enqueuer, log *zap.Logger) (*Service, error) {
	b, err := bus.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	sched, err := robfigcron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: schedule %q: %w", cfg.Schedule, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		backend:  b,
		targets:  append([]string(nil), cfg.Targets...),
		schedule: sched,
		spec:     cfg.Schedule,
		registry: registry,
		out:      out,
		log:      log,
		now:      time.Now,
	}, nil
}

// Start runs the schedule until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	c := robfigcron.New()
	c.Schedule(s.schedule, robfigcron.FuncJob(func() {
		if err := s.Report(); err != nil {
			s.log.Error("status report not enqueued", zap.Error(err))
		}
	}))
	c.Start()
	s.log.Info("heartbeat started", zap.String("schedule", s.spec), zap.String("backend", string(s.backend)))

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("heartbeat stopped")
	return ctx.Err()
}

// Report enqueues one status report now.
func (s *Service) Report() error {
	text := Summary(s.registry.Snapshot(), s.now())
	return s.out.Enqueue(bus.NewEnvelope(s.backend, s.targets, text))
}

// Summary renders a registry snapshot, one backend per line in name order.
func Summary(snapshot map[bus.Backend]bool, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "alertrelay status at %s", at.Format("2006-01-02 15:04:05"))
	if len(snapshot) == 0 {
		sb.WriteString("\nno backends initialized")
		return sb.String()
	}
	for _, b := range bus.Backends {
		healthy, ok := snapshot[b]
		if !ok {
			continue
		}
		state := "idle"
		if !healthy {
			state = "busy"
		}
		fmt.Fprintf(&sb, "\n%s: %s", b, state)
	}
	return sb.String()
}

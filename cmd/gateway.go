package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alertrelay/alertrelay/internal/container"
	"github.com/alertrelay/alertrelay/internal/remote"
)

const defaultShutdownTimeout = 30 * time.Second

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the alertrelay gateway",
	RunE:  runGateway,
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := container.New(cfg)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	log := c.Logger()
	defer func() { _ = log.Sync() }()
	mgr := c.Manager()

	if enabled := mgr.EnabledBackends(); len(enabled) > 0 {
		names := make([]string, 0, len(enabled))
		for _, b := range enabled {
			names = append(names, string(b))
		}
		fmt.Printf("✓ Backends enabled: %s\n", strings.Join(names, ", "))
	} else {
		fmt.Println("Warning: no backends enabled")
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.InitAll(ctx); err != nil {
		return fmt.Errorf("init backends: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if hb := c.Heartbeat(); hb != nil {
		g.Go(func() error { return hb.Start(gctx) })
	}
	if sched := c.Scheduler(); sched != nil {
		g.Go(func() error { return sched.Start(gctx) })
	}
	if ctl := c.Remote(); ctl != nil {
		g.Go(func() error { return ctl.ListenExitCommand(gctx, cfg.Remote.ChatID) })
	}
	if srv := c.Server(); srv != nil {
		g.Go(func() error { return srv.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)
	runErr := g.Wait()

	timeout := cfg.ShutdownTimeout.D()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}

	switch {
	case errors.Is(runErr, remote.ErrExitRequested):
		log.Info("gateway stopped by telegram command")
	case runErr == nil, errors.Is(runErr, context.Canceled):
	default:
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", runErr)
		return runErr
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

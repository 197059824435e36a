package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/container"
	"github.com/alertrelay/alertrelay/internal/remote"
)

var errDeclined = errors.New("✗ declined")

var (
	sendBackend string
	sendTargets []string
	sendPhotos  []string
	sendVideos  []string

	confirmChats []string
)

var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Deliver one notification and exit",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSend,
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <question>",
	Short: "Ask a yes/no question on Telegram; exit status 0 means yes",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirm,
}

func init() {
	sendCmd.Flags().StringVarP(&sendBackend, "backend", "b", "telegram", "backend to deliver through")
	sendCmd.Flags().StringSliceVarP(&sendTargets, "target", "t", nil, "target chat id or webhook url (repeatable)")
	sendCmd.Flags().StringSliceVar(&sendPhotos, "photo", nil, "photo url (repeatable)")
	sendCmd.Flags().StringSliceVar(&sendVideos, "video", nil, "video url (repeatable)")
	_ = sendCmd.MarkFlagRequired("target")

	confirmCmd.Flags().StringSliceVarP(&confirmChats, "chat", "t", nil, "chat id to ask (repeatable, default remote.chatId)")
}

func runSend(_ *cobra.Command, args []string) error {
	backend, err := bus.ParseBackend(sendBackend)
	if err != nil {
		return err
	}
	var text string
	if len(args) > 0 {
		text = args[0]
	}
	if text == "" && len(sendPhotos) == 0 && len(sendVideos) == 0 {
		return errors.New("nothing to send: give a text or at least one --photo/--video")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := container.New(cfg)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer func() { _ = c.Logger().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := c.Manager()
	if err := mgr.Init(ctx, backend); err != nil {
		return err
	}
	env := bus.NewEnvelope(backend, sendTargets, text).
		WithPhotos(sendPhotos...).
		WithVideos(sendVideos...)
	if err := mgr.Deliver(ctx, env); err != nil {
		return fmt.Errorf("deliver %s: %w", env.ID(), err)
	}
	fmt.Printf("✓ Delivered %s via %s\n", env.ID(), backend)
	return nil
}

func runConfirm(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	chats, err := parseChats(confirmChats, cfg.Remote.ChatID)
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
	tg := mgr.Telegram()
	if tg == nil {
		return errors.New("telegram backend is not enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.Init(ctx, bus.BackendTelegram); err != nil {
		return err
	}
	ctl := c.Remote()
	if ctl == nil {
		ctl = remote.NewController(mgr, tg, cfg.Remote, log.Named("remote"))
	}
	yes, err := ctl.Confirm(ctx, args[0], chats)
	if err != nil {
		return err
	}
	if !yes {
		return errDeclined
	}
	fmt.Println("✓ Confirmed")
	return nil
}

func parseChats(raw []string, fallback int64) ([]int64, error) {
	if len(raw) == 0 {
		if fallback == 0 {
			return nil, errors.New("no chat given: pass --chat or set remote.chatId")
		}
		return []int64{fallback}, nil
	}
	chats := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", s, err)
		}
		chats = append(chats, id)
	}
	return chats, nil
}

// Package remote lets an operator steer a running gateway from Telegram:
// yes/no confirmations and an EXIT command that shuts the gateway down.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config"
	"github.com/alertrelay/alertrelay/internal/notifier"
)

const (
	confirmSuffix = "\nPlease reply Y/N"
	exitQuestion  = "Do you want to exit the program?"
	exitCommand   = "EXIT"
)

// ErrExitRequested is returned by ListenExitCommand once an operator has
// confirmed the EXIT command.
var ErrExitRequested = errors.New("exit requested by telegram command")

// Sender delivers an envelope immediately, bypassing any queue.
type Sender interface {
	Deliver(ctx context.Context, env bus.Envelope) error
}

// UpdateSource returns Telegram updates newer than the last call.
type UpdateSource interface {
	PollUpdates(ctx context.Context) ([]tgbotapi.Update, error)
}

// Controller runs the confirm protocol and the exit listener.
type Controller struct {
	sender  Sender
	updates UpdateSource
	log     *zap.Logger

	confirmInterval time.Duration
	listenInterval  time.Duration
	exitDelay       time.Duration

	sleep notifier.SleepFunc
	now   func() time.Time
}

func NewController(sender Sender, updates UpdateSource, cfg config.RemoteConfig, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		sender:          sender,
		updates:         updates,
		log:             log,
		confirmInterval: cfg.ConfirmInterval.D(),
		listenInterval:  cfg.ListenInterval.D(),
		exitDelay:       cfg.ExitDelay.D(),
		sleep:           notifier.Sleep,
		now:             time.Now,
	}
}

// Confirm sends question to every chat in targets and waits for the first
// "Y" or "N" reply from one of them sent after the question went out.
// Anything else is ignored. It polls every confirm interval until ctx ends.
func (c *Controller) Confirm(ctx context.Context, question string, targets []int64) (bool, error) {
	env := bus.NewTelegramEnvelope(targets, question+confirmSuffix)
	if err := c.sender.Deliver(ctx, env); err != nil {
		return false, fmt.Errorf("send confirm question: %w", err)
	}
	// Telegram dates have whole-second resolution.
	since := c.now().Truncate(time.Second)
	chats := make(map[int64]bool, len(targets))
	for _, id := range targets {
		chats[id] = true
	}

	for {
		updates, err := c.updates.PollUpdates(ctx)
		if err != nil {
			return false, fmt.Errorf("poll confirm reply: %w", err)
		}
		for _, u := range updates {
			switch replyText(u, since, chats) {
			case "Y":
				c.log.Info("confirmed", zap.String("question", question))
				return true, nil
			case "N":
				c.log.Info("declined", zap.String("question", question))
				return false, nil
			}
		}
		if err := c.sleep(ctx, c.confirmInterval); err != nil {
			return false, err
		}
	}
}

// ListenExitCommand watches chatID for "EXIT". A confirmed EXIT sends a
// farewell, waits the exit delay and returns ErrExitRequested; a declined one
// resumes listening. Poll failures end the listener.
func (c *Controller) ListenExitCommand(ctx context.Context, chatID int64) error {
	since := c.now().Truncate(time.Second)
	chats := map[int64]bool{chatID: true}
	c.log.Info("listening for exit command", zap.Int64("chat_id", chatID))

	for {
		updates, err := c.updates.PollUpdates(ctx)
		if err != nil {
			return fmt.Errorf("poll exit command: %w", err)
		}
		for _, u := range updates {
			if replyText(u, since, chats) != exitCommand {
				continue
			}
			confirmed, err := c.Confirm(ctx, exitQuestion, []int64{chatID})
			if err != nil {
				return err
			}
			if !confirmed {
				continue
			}
			notice := fmt.Sprintf("Program will exit after %d sec.", int(c.exitDelay/time.Second))
			if err := c.sender.Deliver(ctx, bus.NewTelegramEnvelope([]int64{chatID}, notice)); err != nil {
				c.log.Warn("exit notice not delivered", zap.Error(err))
			}
			c.log.Error("the program exits by the telegram command", zap.Int64("chat_id", chatID))
			if err := c.sleep(ctx, c.exitDelay); err != nil {
				return err
			}
			return ErrExitRequested
		}
		if err := c.sleep(ctx, c.listenInterval); err != nil {
			return err
		}
	}
}

// replyText returns the normalized text of u when it is a message from one of
// chats sent at or after since, and "" otherwise.
func replyText(u tgbotapi.Update, since time.Time, chats map[int64]bool) string {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return ""
	}
	if msg.Time().Before(since) || !chats[msg.Chat.ID] {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(msg.Text))
}

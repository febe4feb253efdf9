package router

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"relaybot/internal/relay"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const handleTimeout = 20 * time.Second

// Platform is what the live cleaner needs from the chat side.
type Platform interface {
	CopyMessage(ctx context.Context, from kit.ChatTarget, id int, to kit.ChatTarget, caption *string) (kit.MessageRef, error)
	SendMessage(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error)
	DeleteMessage(ctx context.Context, chatID int64, msgID int) error
}

// LiveCleaner rewrites new group messages that match the current rule. The
// bot re-posts the message with the cleaned text into the same chat and
// topic, then deletes the original. Nothing is deleted unless the re-post
// succeeded.
type LiveCleaner struct {
	platform Platform
	settings *relay.Settings
	log      logx.Logger
	enabled  atomic.Bool
}

func NewLiveCleaner(p Platform, settings *relay.Settings, log logx.Logger) *LiveCleaner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LiveCleaner{platform: p, settings: settings, log: log}
}

func (c *LiveCleaner) SetEnabled(on bool) {
	if c.enabled.Swap(on) != on {
		c.log.Info("live cleaning toggled", logx.Bool("enabled", on))
	}
}

func (c *LiveCleaner) Enabled() bool { return c.enabled.Load() }

// Handler is Handle wrapped with panic recovery and a per-message timeout.
func (c *LiveCleaner) Handler() kit.MessageHandler {
	return Chain(c.Handle, MWPanicRecover(c.log), MWTimeout(handleTimeout))
}

func (c *LiveCleaner) Handle(ctx context.Context, msg kit.IncomingMessage) error {
	if !c.Enabled() || !msg.Group || c.settings == nil {
		return nil
	}
	rule := c.settings.Rule()
	if !rule.Matches(msg.Text) {
		return nil
	}
	cleaned := rule.Apply(msg.Text)
	if cleaned == msg.Text {
		return nil
	}

	var err error
	switch {
	case msg.HasMedia:
		_, err = c.platform.CopyMessage(ctx, msg.Chat, msg.ID, msg.Chat, &cleaned)
	case strings.TrimSpace(cleaned) == "":
		c.log.Debug("cleaned text is empty; message left as is",
			logx.Int64("chat_id", msg.Chat.ChatID), logx.Int("msg_id", msg.ID))
		return nil
	default:
		_, err = c.platform.SendMessage(ctx, msg.Chat, cleaned)
	}
	if err != nil {
		return fmt.Errorf("repost message %d: %w", msg.ID, err)
	}
	if err := c.platform.DeleteMessage(ctx, msg.Chat.ChatID, msg.ID); err != nil {
		return fmt.Errorf("delete original %d: %w", msg.ID, err)
	}
	c.log.Debug("message cleaned",
		logx.Int64("chat_id", msg.Chat.ChatID),
		logx.Int("thread_id", msg.Chat.ThreadID),
		logx.Int("msg_id", msg.ID))
	return nil
}

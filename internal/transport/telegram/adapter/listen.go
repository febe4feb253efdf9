package adapter

import (
	"context"
	"errors"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const handlerTimeout = 30 * time.Second

// OnMessage registers fn for new text and media messages. Register before
// Listen; later calls replace the handler.
func (a *Adapter) OnMessage(fn kit.MessageHandler) {
	h := func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil || fn == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		if err := fn(ctx, incomingFromTele(m)); err != nil {
			a.log.Warn("incoming message failed",
				logx.Int64("chat_id", m.Chat.ID),
				logx.Int("thread_id", m.ThreadID),
				logx.Int("msg_id", m.ID),
				logx.Err(err))
		}
		return nil
	}
	a.bot.Handle(tele.OnText, h)
	a.bot.Handle(tele.OnMedia, h)
}

// Listen long-polls for updates until ctx is done. Start blocks until Stop.
func (a *Adapter) Listen(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.bot.Stop()
		case <-stopped:
		}
	}()
	a.log.Info("polling started")
	a.bot.Start()
	close(stopped)
	a.log.Info("polling stopped")
	if ctx.Err() == nil {
		return errors.New("telegram poller exited")
	}
	return ctx.Err()
}

func incomingFromTele(m *tele.Message) kit.IncomingMessage {
	in := kit.IncomingMessage{
		Chat:     kit.ChatTarget{ChatID: m.Chat.ID, ThreadID: m.ThreadID},
		ID:       m.ID,
		Text:     m.Text,
		HasMedia: m.Media() != nil,
		Group:    m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}
	if in.HasMedia {
		in.Text = m.Caption
	}
	return in
}

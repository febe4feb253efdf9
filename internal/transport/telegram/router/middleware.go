package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type Middleware func(next kit.MessageHandler) kit.MessageHandler

func Chain(h kit.MessageHandler, m ...Middleware) kit.MessageHandler {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next kit.MessageHandler) kit.MessageHandler {
		return func(ctx context.Context, msg kit.IncomingMessage) error {
			if d <= 0 {
				return next(ctx, msg)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, msg)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next kit.MessageHandler) kit.MessageHandler {
		return func(ctx context.Context, msg kit.IncomingMessage) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Int64("chat_id", msg.Chat.ChatID),
						logx.Int("msg_id", msg.ID),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

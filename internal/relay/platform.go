package relay

import (
	"context"
	"time"

	kit "relaybot/internal/transport"
)

// Platform is the chat-platform capability the engine consumes.
//
// Every call may block. Errors are classified with AsRateLimit (flood
// control, retry after the carried duration) and errors.Is(err, ErrNotFound);
// anything else is treated as a transient platform failure.
type Platform interface {
	FetchMessage(ctx context.Context, from kit.ChatTarget, id int) (kit.SourceMessage, error)

	// CopyMessage copies message id of from.ChatID into to. When text is
	// non-nil it replaces the text/caption of the copy; media is preserved.
	CopyMessage(ctx context.Context, from kit.ChatTarget, id int, to kit.ChatTarget, text *string) (kit.MessageRef, error)

	SendMessage(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error)

	// CreateTopic creates a forum topic and returns its thread id.
	CreateTopic(ctx context.Context, chatID int64, name string) (int, error)
}

// Forwarder is implemented by platforms that support ModeForward.
type Forwarder interface {
	ForwardMessage(ctx context.Context, from kit.ChatTarget, id int, to kit.ChatTarget) (kit.MessageRef, error)
}

// DocumentRenamer is implemented by platforms that can re-upload a document
// under a new file name (the PDF rename hook).
type DocumentRenamer interface {
	ResendDocument(ctx context.Context, msg kit.SourceMessage, to kit.ChatTarget, fileName string, caption *string) (kit.MessageRef, error)
}

// Notifier delivers best-effort status messages. Errors are logged by the
// engine and never change the job outcome.
type Notifier interface {
	Notify(ctx context.Context, to kit.ChatTarget, text string) error
}

// Clock is the engine's only source of time and waiting.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

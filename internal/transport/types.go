package transport

import "context"

// ChatTarget addresses a chat and, optionally, a forum topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Document describes a file attachment of a source message.
type Document struct {
	FileID   string
	FileName string
	MIME     string
	Size     int64
}

// IsPDF reports whether the document looks like a PDF (by MIME or extension).
func (d *Document) IsPDF() bool {
	if d == nil {
		return false
	}
	if d.MIME == "application/pdf" {
		return true
	}
	n := len(d.FileName)
	return n >= 4 && (d.FileName[n-4:] == ".pdf" || d.FileName[n-4:] == ".PDF")
}

// SourceMessage is the platform-neutral view of a message fetched for relaying.
type SourceMessage struct {
	ID       int
	ChatID   int64
	Text     string // text or caption, "" when absent
	HasMedia bool
	Document *Document
}

// Sender is the minimal outbound capability shared by the notifier and the
// Telegram log sink.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// IncomingMessage is a new chat message delivered to the bot.
type IncomingMessage struct {
	Chat     ChatTarget
	ID       int
	Text     string // text or caption
	HasMedia bool
	Group    bool // group or supergroup
}

// MessageHandler consumes incoming messages.
type MessageHandler func(ctx context.Context, msg IncomingMessage) error

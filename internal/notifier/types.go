package notifier

import "time"

// Config controls delivery. Zero values take defaults in Apply.
type Config struct {
	Enabled         bool
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	Silent          bool
}

type HistoryItem struct {
	At       time.Time
	ChatID   int64
	ThreadID int
	Text     string
}

// NotificationEvent is published on the event bus as notifier.sent,
// notifier.deduped and notifier.failed.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}

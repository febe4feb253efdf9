package config

// Config is the file-backed configuration. Durations are Go duration strings
// ("1.5s", "500ms"). Unknown keys are rejected.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Notifier defaults to enabled when the section is omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Relay RelayConfig `json:"relay"`

	// Job is the relay job the process runs on startup. Optional.
	Job *JobConfig `json:"job,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`

	// GroupLog is the chat that receives the Telegram log sink.
	GroupLog int64 `json:"group_log,omitempty"`
	// ScratchChatID is a private chat used to read source messages.
	ScratchChatID int64 `json:"scratch_chat_id,omitempty"`

	APIURL     string  `json:"api_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	// RequestTimeout bounds one Bot API HTTP call (default 60s).
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifierConfig controls job notifications (banners, progress, summaries).
//
// Defaults when omitted/zero:
//   - rate_per_sec: 3
//   - retry_max: 2
//   - retry_base: "500ms", retry_max_delay: "10s"
//   - send_timeout: "10s"
//   - dedup_window: "0s" (disabled)
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        *int   `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	Silent          bool   `json:"silent,omitempty"`
}

// RelayConfig tunes the relay engine. It can be changed while a job runs;
// pacing and the find/replace rule apply from the next message.
type RelayConfig struct {
	CopyDelay   string `json:"copy_delay,omitempty"`
	// ErrorDelay follows a failed copy (default 500ms, "off" disables).
	ErrorDelay  string `json:"error_delay,omitempty"`
	FloodMargin string `json:"flood_margin,omitempty"`

	// ProgressEvery posts a notice every N copies; negative disables.
	ProgressEvery int `json:"progress_every,omitempty"`
	LogEvery      int `json:"log_every,omitempty"`

	// RulePolicy is "live" (default) or "snapshot".
	RulePolicy string `json:"rule_policy,omitempty"`
	// Mode is "copy" (default) or "forward".
	Mode            string `json:"mode,omitempty"`
	RenameDocuments bool   `json:"rename_documents,omitempty"`

	Find string `json:"find,omitempty"`
	// Replace "-" means remove.
	Replace string `json:"replace,omitempty"`

	// LiveClean rewrites new group messages that match the rule in place.
	LiveClean bool `json:"live_clean,omitempty"`
}

// JobConfig describes one run.
//
//	"job": {"source_chat": -1001, "source_thread": 5, "range": "5-425",
//	        "dest_chat": -1002, "create_topic": "Archive"}
type JobConfig struct {
	SourceChat   int64  `json:"source_chat"`
	SourceThread int    `json:"source_thread,omitempty"`
	Range        string `json:"range"`

	DestChat   int64 `json:"dest_chat"`
	DestThread int   `json:"dest_thread,omitempty"`
	// CreateTopic creates a forum topic with this name when dest_thread is 0.
	CreateTopic string `json:"create_topic,omitempty"`
	// AutoTopic creates "<chat title>_Cleaned" when neither dest_thread nor
	// create_topic is set.
	AutoTopic bool `json:"auto_topic,omitempty"`

	TriggerChat   int64 `json:"trigger_chat,omitempty"`
	TriggerThread int   `json:"trigger_thread,omitempty"`
	RequestedBy   int64 `json:"requested_by,omitempty"`
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// envOverrides are the environment knobs. Set variables win over the file.
type envOverrides struct {
	BotToken      string  `env:"BOT_TOKEN"`
	OwnerUserIDs  []int64 `env:"OWNER_USER_IDS" env-separator:","`
	ScratchChatID int64   `env:"SCRATCH_CHAT_ID"`
	APIURL        string  `env:"TELEGRAM_API_URL"`

	LogLevel string `env:"LOG_LEVEL"`

	// CopyDelay accepts a Go duration or bare seconds ("1.5").
	CopyDelay     string `env:"COPY_DELAY"`
	ProgressEvery int    `env:"PROGRESS_EVERY"`
	RulePolicy    string `env:"RULE_POLICY"`
	LiveClean     string `env:"LIVE_CLEAN"`
	Find          string `env:"FIND_TEXT"`
	// Replace only applies when REPLACE_TEXT is set, even to "".
	Replace       string `env:"REPLACE_TEXT"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if s := strings.TrimSpace(env.BotToken); s != "" {
		cfg.Telegram.Token = s
	}
	if len(env.OwnerUserIDs) > 0 {
		cfg.Telegram.OwnerUserIDs = env.OwnerUserIDs
	}
	if env.ScratchChatID != 0 {
		cfg.Telegram.ScratchChatID = env.ScratchChatID
	}
	if env.APIURL != "" {
		cfg.Telegram.APIURL = env.APIURL
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if s := strings.TrimSpace(env.CopyDelay); s != "" {
		cfg.Relay.CopyDelay = secondsToDuration(s)
	}
	if env.ProgressEvery != 0 {
		cfg.Relay.ProgressEvery = env.ProgressEvery
	}
	if env.RulePolicy != "" {
		cfg.Relay.RulePolicy = env.RulePolicy
	}
	if s := strings.TrimSpace(env.LiveClean); s != "" {
		on, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("LIVE_CLEAN: %w", err)
		}
		cfg.Relay.LiveClean = on
	}
	if env.Find != "" {
		cfg.Relay.Find = env.Find
	}
	if _, ok := os.LookupEnv("REPLACE_TEXT"); ok {
		cfg.Relay.Replace = env.Replace
	}
	return nil
}

// secondsToDuration turns "1.5" into "1.5s"; duration strings pass through.
func secondsToDuration(s string) string {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s + "s"
	}
	return s
}

package config

import (
	"reflect"

	logx "relaybot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// fields for logging. Secrets (the bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	ot.Token, nt.Token = "", ""
	tokenChanged := oldCfg.Telegram.Token != newCfg.Telegram.Token
	if tokenChanged || !reflect.DeepEqual(ot, nt) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.scratch_chat_set", nt.ScratchChatID != 0),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Bool("notifier.enabled", newCfg.Notifier == nil || newCfg.Notifier.Enabled))
	}

	if !reflect.DeepEqual(oldCfg.Relay, newCfg.Relay) {
		r := newCfg.Relay
		changed = append(changed, "relay")
		attrs = append(attrs,
			logx.String("relay.copy_delay", r.CopyDelay),
			logx.Int("relay.progress_every", r.ProgressEvery),
			logx.String("relay.rule_policy", r.RulePolicy),
			logx.Bool("relay.rule_set", r.Find != ""),
			logx.Bool("relay.live_clean", r.LiveClean),
		)
	}

	if !reflect.DeepEqual(oldCfg.Job, newCfg.Job) {
		changed = append(changed, "job")
	}
	return changed, attrs
}

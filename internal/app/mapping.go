package app

import (
	"errors"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/notifier"
	"relaybot/internal/relay"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	logx "relaybot/pkg/logx"
)

// ErrNoJob is returned by RunJob when the config has no job section.
var ErrNoJob = errors.New("no job configured")

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.request_timeout", cfg.Telegram.RequestTimeout, 60*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:             cfg.Telegram.Token,
		APIURL:            cfg.Telegram.APIURL,
		ScratchChatID:     cfg.Telegram.ScratchChatID,
		RequestsPerSecond: cfg.Telegram.RatePerSec,
		Burst:             cfg.Telegram.Burst,
		HTTPTimeout:       timeout,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// mapNotifierConfig treats a missing section as enabled with defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true, RetryMax: 2}, nil
	}
	out := notifier.Config{
		Enabled:         n.Enabled,
		RatePerSec:      n.RatePerSec,
		RetryMax:        2,
		DedupMaxEntries: n.DedupMaxEntries,
		Silent:          n.Silent,
	}
	if n.RetryMax != nil {
		out.RetryMax = *n.RetryMax
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapRelayOptions(cfg *config.Config) (relay.Options, error) {
	r := cfg.Relay
	policy, err := relay.ParseRulePolicy(r.RulePolicy)
	if err != nil {
		return relay.Options{}, err
	}
	opt := relay.Options{
		ProgressEvery: r.ProgressEvery,
		LogEvery:      r.LogEvery,
		RulePolicy:    policy,
		Owners:        cfg.Telegram.OwnerUserIDs,
	}
	if opt.CopyDelay, err = config.ParseDurationField("relay.copy_delay", r.CopyDelay); err != nil {
		return relay.Options{}, err
	}
	if opt.ErrorDelay, err = config.ParseSwitchableDuration("relay.error_delay", r.ErrorDelay); err != nil {
		return relay.Options{}, err
	}
	if opt.FloodMargin, err = config.ParseDurationField("relay.flood_margin", r.FloodMargin); err != nil {
		return relay.Options{}, err
	}
	return opt, nil
}

// mapJobSpec builds the job input. The rule is left empty so the engine
// takes it from its live settings at launch.
func mapJobSpec(cfg *config.Config) (relay.JobSpec, error) {
	j := cfg.Job
	if j == nil {
		return relay.JobSpec{}, ErrNoJob
	}
	start, end, err := relay.ParseRange(j.Range)
	if err != nil {
		return relay.JobSpec{}, err
	}
	mode, err := relay.ParseMode(cfg.Relay.Mode)
	if err != nil {
		return relay.JobSpec{}, err
	}
	requester := j.RequestedBy
	if requester == 0 && len(cfg.Telegram.OwnerUserIDs) > 0 {
		// a job from the config file runs on behalf of the first owner
		requester = cfg.Telegram.OwnerUserIDs[0]
	}
	return relay.JobSpec{
		Source:          kit.ChatTarget{ChatID: j.SourceChat, ThreadID: j.SourceThread},
		Start:           start,
		End:             end,
		Destination:     kit.ChatTarget{ChatID: j.DestChat, ThreadID: j.DestThread},
		Trigger:         kit.ChatTarget{ChatID: j.TriggerChat, ThreadID: j.TriggerThread},
		RequestedBy:     requester,
		Mode:            mode,
		RenameDocuments: cfg.Relay.RenameDocuments,
	}, nil
}

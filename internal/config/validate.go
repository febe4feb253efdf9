package config

import (
	"errors"
	"fmt"
	"strings"

	"relaybot/internal/relay"
)

// Validate checks cross-field constraints the decoder cannot express.
// It returns all problems joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set BOT_TOKEN)"))
	}
	if cfg.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("telegram.rate_per_sec must be >= 0"))
	}
	if _, err := ParseDurationField("telegram.request_timeout", cfg.Telegram.RequestTimeout); err != nil {
		errs = append(errs, err)
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !validLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.GroupLog == 0 {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.group_log"))
	}

	if n := cfg.Notifier; n != nil {
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.send_timeout":    n.SendTimeout,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	r := cfg.Relay
	for path, raw := range map[string]string{
		"relay.copy_delay":   r.CopyDelay,
		"relay.flood_margin": r.FloodMargin,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := ParseSwitchableDuration("relay.error_delay", r.ErrorDelay); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(r.RulePolicy)) {
	case "", "live", "snapshot":
	default:
		errs = append(errs, fmt.Errorf("relay.rule_policy: want live or snapshot, got %q", r.RulePolicy))
	}
	switch strings.ToLower(strings.TrimSpace(r.Mode)) {
	case "", "copy", "forward":
	default:
		errs = append(errs, fmt.Errorf("relay.mode: want copy or forward, got %q", r.Mode))
	}

	if j := cfg.Job; j != nil {
		if j.SourceChat == 0 {
			errs = append(errs, errors.New("job.source_chat is required"))
		}
		if j.DestChat == 0 {
			errs = append(errs, errors.New("job.dest_chat is required"))
		}
		if _, _, err := relay.ParseRange(j.Range); err != nil {
			errs = append(errs, fmt.Errorf("job.range: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validLevel(s string) bool {
	switch strings.ToLower(s) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

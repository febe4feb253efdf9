package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  scratch_chat_id: -900
logging:
  level: debug
  console: true
relay:
  copy_delay: 2s
  progress_every: 10
  rule_policy: snapshot
  find: "@old"
  replace: "-"
job:
  source_chat: -1001
  source_thread: 5
  range: "5-425"
  dest_chat: -1002
  create_topic: Archive
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ScratchChatID != -900 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Relay.CopyDelay != "2s" || cfg.Relay.ProgressEvery != 10 || cfg.Relay.Replace != "-" {
		t.Fatalf("relay = %+v", cfg.Relay)
	}
	if cfg.Job == nil || cfg.Job.Range != "5-425" || cfg.Job.CreateTopic != "Archive" {
		t.Fatalf("job = %+v", cfg.Job)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("config.json", []byte(`{"telegram":{"token":"x"},"relay":{"miss_delay":"1s"}}`))
	if err == nil || !strings.Contains(err.Error(), "miss_delay") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode("config.json", []byte(`{"telegram":{"token":"x"}} {}`))
	if err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("COPY_DELAY", "1.5")
	t.Setenv("PROGRESS_EVERY", "7")
	t.Setenv("OWNER_USER_IDS", "1,2")
	t.Setenv("LIVE_CLEAN", "true")

	cfg := &Config{Telegram: TelegramConfig{Token: "file-token"}, Relay: RelayConfig{CopyDelay: "3s"}}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Relay.CopyDelay != "1.5s" {
		t.Fatalf("copy_delay = %q", cfg.Relay.CopyDelay)
	}
	if cfg.Relay.ProgressEvery != 7 {
		t.Fatalf("progress_every = %d", cfg.Relay.ProgressEvery)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Telegram.OwnerUserIDs[1] != 2 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if !cfg.Relay.LiveClean {
		t.Fatal("live_clean not applied")
	}
	d, err := ParseDurationField("relay.copy_delay", cfg.Relay.CopyDelay)
	if err != nil || d != 1500*time.Millisecond {
		t.Fatalf("parsed copy delay = %v, %v", d, err)
	}
}

func TestApplyEnvFindKeepsFileReplace(t *testing.T) {
	t.Setenv("FIND_TEXT", "@old")
	t.Setenv("REPLACE_TEXT", "")
	os.Unsetenv("REPLACE_TEXT")

	cfg := &Config{Relay: RelayConfig{Find: "x", Replace: "@new"}}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Relay.Find != "@old" || cfg.Relay.Replace != "@new" {
		t.Fatalf("relay = %+v", cfg.Relay)
	}

	t.Setenv("REPLACE_TEXT", "-")
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Relay.Replace != "-" {
		t.Fatalf("replace = %q", cfg.Relay.Replace)
	}
}

func TestParseSwitchableDuration(t *testing.T) {
	if d, err := ParseSwitchableDuration("relay.error_delay", "off"); err != nil || d != -1 {
		t.Fatalf("off = %v, %v", d, err)
	}
	if d, err := ParseSwitchableDuration("relay.error_delay", "250ms"); err != nil || d != 250*time.Millisecond {
		t.Fatalf("250ms = %v, %v", d, err)
	}
	if _, err := ParseSwitchableDuration("relay.error_delay", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, "test.env", "RELAYBOT_TEST_DOTENV=from-file\n")
	t.Setenv("RELAYBOT_TEST_DOTENV", "")
	os.Unsetenv("RELAYBOT_TEST_DOTENV")

	if err := LoadDotEnv(p, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("RELAYBOT_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("env = %q", got)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "loud", Telegram: LoggingTelegram{Enabled: true}},
		Relay:   RelayConfig{CopyDelay: "soon", RulePolicy: "sometimes", Mode: "mirror"},
		Job:     &JobConfig{Range: "9-3"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{
		"telegram.token", "logging.level", "group_log", "relay.copy_delay",
		"relay.rule_policy", "relay.mode", "job.source_chat", "job.dest_chat", "job.range",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, _ := ParseDurationOrDefault("x", "", time.Second); d != time.Second {
		t.Fatalf("default = %v", d)
	}
}

func TestManagerLoadAndWatch(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	p := writeFile(t, "config.json", `{"telegram":{"token":"t"},"relay":{"find":"a","replace":"b"}}`)
	m := NewConfigManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the committed config")
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"telegram":{"token":"t"},"relay":{"find":"x","replace":"y"}}`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case got := <-ch:
		if got.Relay.Find != "x" || got.Relay.Replace != "y" {
			t.Fatalf("reloaded relay = %+v", got.Relay)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}

	cancel()
	<-done
}

func TestReloadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	p := writeFile(t, "config.json", `{"telegram":{"token":"t"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	if m.reload(context.Background()) {
		t.Fatal("unchanged config was republished")
	}
	if err := os.WriteFile(p, []byte(`{"telegram":{"token":""}}`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if m.reload(context.Background()) {
		t.Fatal("invalid config was published")
	}
	if m.Get().Telegram.Token != "t" {
		t.Fatal("invalid config was committed")
	}
	select {
	case <-ch:
		t.Fatal("unexpected publish")
	default:
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Relay: RelayConfig{Find: "x"}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "b"}, Relay: RelayConfig{Find: "y"}}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "telegram,relay" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) != 8 {
		t.Fatalf("attrs = %d, want 8", len(attrs))
	}

	changed, attrs = SummarizeConfigChange(newCfg, newCfg)
	if len(changed) != 0 || len(attrs) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestExampleConfigDecodes(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("read example: %v", err)
	}
	cfg, err := Decode("config.example.yaml", b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cfg.Telegram.Token = "x"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

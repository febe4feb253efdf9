package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "relaybot/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	to   []kit.ChatTarget
}

func (c *captureSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	c.to = append(c.to, to)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(c.msgs)}, nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestFormatReport(t *testing.T) {
	line := `{"level":"warn","time":"x","caller":"run.go:1","message":"relay message failed","msg_id":42,"job_id":"j1","comp":"relay","chat":-1001234567890}`
	got, ok := formatReport([]byte(line))
	if !ok {
		t.Fatal("report dropped")
	}
	want := "[WARN] relay message failed\njob_id=j1 msg_id=42\n- chat=-1001234567890\n- comp=relay"
	if got != want {
		t.Fatalf("report = %q, want %q", got, want)
	}
}

func TestFormatReportSkipsTransportEvents(t *testing.T) {
	if _, ok := formatReport([]byte(`{"level":"warn","message":"telegram flood control","comp":"telegram"}`)); ok {
		t.Fatal("telegram component event was reported")
	}
}

func TestFormatReportNotJSON(t *testing.T) {
	if got, ok := formatReport([]byte("  plain text \n")); !ok || got != "plain text" {
		t.Fatalf("got %q, %v", got, ok)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate(strings.Repeat("a", 20), 10); got != "aaaaaaa..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestTelegramSinkRespectsMinLevel(t *testing.T) {
	snd := &captureSender{}
	svc, log := New(Config{Level: "debug"}, snd)
	svc.SetTelegramTarget(-100123, 0)
	svc.Apply(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, ThreadID: 7, MinLevel: "warn", RatePerSec: 10},
	})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("not forwarded")
	log.Warn("forwarded", String("comp", "relay"), String("job_id", "j9"))

	deadline := time.Now().Add(2 * time.Second)
	for snd.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := snd.count(); n != 1 {
		t.Fatalf("expected exactly 1 telegram report, got %d", n)
	}
	snd.mu.Lock()
	defer snd.mu.Unlock()
	if snd.to[0].ChatID != -100123 || snd.to[0].ThreadID != 7 {
		t.Fatalf("unexpected target: %+v", snd.to[0])
	}
	if !strings.HasPrefix(snd.msgs[0], "[WARN] forwarded\njob_id=j9") {
		t.Fatalf("unexpected message: %q", snd.msgs[0])
	}
}

func TestSinkWithoutTargetIsMuted(t *testing.T) {
	snd := &captureSender{}
	svc, log := New(Config{Telegram: TelegramConfig{Enabled: true}}, snd)
	t.Cleanup(func() { _ = svc.Close() })

	log.Error("nowhere to go")
	time.Sleep(50 * time.Millisecond)
	if n := snd.count(); n != 0 {
		t.Fatalf("sent %d reports without a target", n)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("dropped")
	if Nop().IsZero() {
		t.Fatal("Nop is a configured logger")
	}
	if l.With(String("k", "v")).IsZero() {
		t.Fatal("fields make a logger non-zero")
	}
}

package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "relaybot/internal/transport"
)

const (
	reportMax = 3500
	valueMax  = 600
)

// telegramSink forwards warnings and errors to the operator chat. Writes
// never block: reports over the rate limit or beyond the queue are dropped.
type telegramSink struct {
	sender kit.Sender
	queue  chan report

	mu       sync.Mutex
	target   kit.ChatTarget
	thread   int // configured thread, used when the target sets none
	limiter  *rate.Limiter
	minLevel zerolog.Level

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type report struct {
	to   kit.ChatTarget
	text string
}

func newTelegramSink(sender kit.Sender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan report, 256),
		limiter:  rate.NewLimiter(1, 1),
		minLevel: zerolog.WarnLevel,
	}
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)
	t.mu.Lock()
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	if cfg.ThreadID != 0 {
		t.thread = cfg.ThreadID
	}
	if t.target.ThreadID == 0 {
		t.target.ThreadID = t.thread
	}
	t.mu.Unlock()
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	if threadID == 0 {
		threadID = t.thread
	}
	t.target = kit.ChatTarget{ChatID: chatID, ThreadID: threadID}
	t.mu.Unlock()
}

func (t *telegramSink) hasTarget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.target.IsZero()
}

func (t *telegramSink) start() {
	t.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.mu.Lock()
		t.cancel = cancel
		t.mu.Unlock()
		t.wg.Add(1)
		go t.run(ctx)
	})
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) run(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-t.queue:
			if t.sender != nil {
				_, _ = t.sender.SendText(ctx, r.to, r.text, &kit.SendOptions{DisablePreview: true})
			}
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, lim, minLevel := t.target, t.limiter, t.minLevel
	t.mu.Unlock()

	if to.IsZero() || t.sender == nil || level < minLevel {
		return len(p), nil
	}
	text, ok := formatReport(p)
	if !ok || !lim.Allow() {
		return len(p), nil
	}
	select {
	case t.queue <- report{to: to, text: text}:
	default:
	}
	return len(p), nil
}

// formatReport renders one JSON event for the operator chat: level and
// message, then the relay job and message ids, then the other keys sorted.
// Events of the telegram component are not reported, since sending the
// report would go through the same transport.
func formatReport(p []byte) (string, bool) {
	line := strings.TrimSpace(string(p))
	var ev map[string]any
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return truncate(line, reportMax), line != ""
	}
	if ev["comp"] == "telegram" {
		return "", false
	}

	var b strings.Builder
	if lvl, _ := ev["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := ev["message"].(string)
	b.WriteString(msg)

	var ids []string
	for _, k := range []string{"job_id", "msg_id"} {
		if v, ok := ev[k]; ok {
			ids = append(ids, k+"="+fmt.Sprint(v))
		}
	}
	if len(ids) > 0 {
		b.WriteString("\n" + strings.Join(ids, " "))
	}

	keys := make([]string, 0, len(ev))
	for k := range ev {
		switch k {
		case "time", "level", "message", "caller", "job_id", "msg_id":
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(ev[k]), valueMax))
	}
	return truncate(b.String(), reportMax), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

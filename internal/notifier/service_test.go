package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/internal/eventbus"
	"relaybot/internal/relay"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type scriptedSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
	texts []string
	opts  []kit.SendOptions
}

func (s *scriptedSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return kit.MessageRef{}, err
		}
	}
	s.texts = append(s.texts, text)
	if opt != nil {
		s.opts = append(s.opts, *opt)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: s.calls}, nil
}

var target = kit.ChatTarget{ChatID: -100, ThreadID: 3}

func fastConfig() Config {
	return Config{Enabled: true, RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}
}

func TestNotifySends(t *testing.T) {
	snd := &scriptedSender{}
	s := New(fastConfig(), snd, logx.Nop(), nil)

	require.NoError(t, s.Notify(context.Background(), target, "hello"))
	assert.Equal(t, []string{"hello"}, snd.texts)
	require.Len(t, snd.opts, 1)
	assert.True(t, snd.opts[0].DisablePreview)

	hist := s.Snapshot()
	require.Len(t, hist, 1)
	assert.Equal(t, "hello", hist[0].Text)
	assert.Equal(t, target.ThreadID, hist[0].ThreadID)
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	snd := &scriptedSender{errs: []error{errors.New("net"), errors.New("net")}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	s := New(fastConfig(), snd, logx.Nop(), bus)

	require.NoError(t, s.Notify(context.Background(), target, "x"))
	assert.Equal(t, 3, snd.calls)

	ev := <-events
	assert.Equal(t, "notifier.sent", ev.Type)
	assert.Equal(t, 3, ev.Data.(NotificationEvent).Attempts)
}

func TestNotifyGivesUp(t *testing.T) {
	boom := errors.New("chat not found")
	snd := &scriptedSender{errs: []error{boom, boom, boom, boom}}
	s := New(fastConfig(), snd, logx.Nop(), nil)

	err := s.Notify(context.Background(), target, "x")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, snd.calls)
	assert.Empty(t, s.Snapshot())
}

func TestNotifyDoesNotWaitOutLongFloodControl(t *testing.T) {
	snd := &scriptedSender{errs: []error{relay.RateLimited(errors.New("429"), time.Minute)}}
	s := New(fastConfig(), snd, logx.Nop(), nil)

	start := time.Now()
	err := s.Notify(context.Background(), target, "x")
	require.Error(t, err)
	assert.Equal(t, 1, snd.calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotifyDedup(t *testing.T) {
	cfg := fastConfig()
	cfg.DedupWindow = time.Minute
	snd := &scriptedSender{}
	s := New(cfg, snd, logx.Nop(), nil)

	require.NoError(t, s.Notify(context.Background(), target, "same"))
	require.NoError(t, s.Notify(context.Background(), target, "same"))
	require.NoError(t, s.Notify(context.Background(), kit.ChatTarget{ChatID: -100}, "same"))
	assert.Equal(t, 2, snd.calls, "same text to the same topic is suppressed")
}

func TestNotifyDisabledAndEmpty(t *testing.T) {
	snd := &scriptedSender{}
	s := New(Config{}, snd, logx.Nop(), nil)
	require.ErrorIs(t, s.Notify(context.Background(), target, "x"), ErrDisabled)
	assert.False(t, s.Enabled())

	s.Apply(fastConfig())
	require.ErrorIs(t, s.Notify(context.Background(), kit.ChatTarget{}, "x"), ErrNoTarget)
	require.ErrorIs(t, s.Notify(context.Background(), target, ""), ErrNoTarget)
	assert.Zero(t, snd.calls)
}

func TestNotifyCanceled(t *testing.T) {
	s := New(fastConfig(), &scriptedSender{}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Notify(ctx, target, "x"), context.Canceled)
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt < 10; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, cfg.RetryMaxDelay)
	}
}

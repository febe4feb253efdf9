package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	kit "relaybot/internal/transport"
)

// fakeClock never blocks; it records every requested sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// onSleep runs after each recorded sleep (outside the lock).
	onSleep func(d time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type copyCall struct {
	ID   int
	To   kit.ChatTarget
	Text *string
	At   time.Time
}

// fakePlatform serves messages from a map. Missing ids are ErrNotFound.
type fakePlatform struct {
	mu    sync.Mutex
	clock *fakeClock
	msgs  map[int]kit.SourceMessage

	// copyErrs pops one error per CopyMessage call for the given id.
	copyErrs  map[int][]error
	fetchHook func(id int)
	copyPanic int

	copies   []copyCall
	attempts map[int]int
	sent     []string
	forwards []int
	renamed  []string
}

func newFakePlatform(clock *fakeClock) *fakePlatform {
	return &fakePlatform{
		clock:    clock,
		msgs:     map[int]kit.SourceMessage{},
		copyErrs: map[int][]error{},
		attempts: map[int]int{},
	}
}

func (p *fakePlatform) add(id int, text string) {
	p.mu.Lock()
	p.msgs[id] = kit.SourceMessage{ID: id, Text: text}
	p.mu.Unlock()
}

func (p *fakePlatform) addMedia(id int, caption string) {
	p.mu.Lock()
	p.msgs[id] = kit.SourceMessage{ID: id, Text: caption, HasMedia: true}
	p.mu.Unlock()
}

func (p *fakePlatform) sentTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func (p *fakePlatform) FetchMessage(_ context.Context, _ kit.ChatTarget, id int) (kit.SourceMessage, error) {
	if p.fetchHook != nil {
		p.fetchHook(id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.msgs[id]
	if !ok {
		return kit.SourceMessage{}, ErrNotFound
	}
	return m, nil
}

func (p *fakePlatform) CopyMessage(_ context.Context, _ kit.ChatTarget, id int, to kit.ChatTarget, text *string) (kit.MessageRef, error) {
	if p.copyPanic == id {
		panic("boom")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[id]++
	if errs := p.copyErrs[id]; len(errs) > 0 {
		p.copyErrs[id] = errs[1:]
		if errs[0] != nil {
			return kit.MessageRef{}, errs[0]
		}
	}
	var at time.Time
	if p.clock != nil {
		at = p.clock.Now()
	}
	p.copies = append(p.copies, copyCall{ID: id, To: to, Text: text, At: at})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: 1000 + id}, nil
}

func (p *fakePlatform) SendMessage(_ context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}, nil
}

func (p *fakePlatform) CreateTopic(_ context.Context, _ int64, _ string) (int, error) {
	return 77, nil
}

func (p *fakePlatform) copied() []copyCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]copyCall(nil), p.copies...)
}

// forwardingPlatform adds the optional capabilities.
type forwardingPlatform struct {
	*fakePlatform
}

func (p forwardingPlatform) ForwardMessage(_ context.Context, _ kit.ChatTarget, id int, _ kit.ChatTarget) (kit.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.msgs[id]; !ok {
		return kit.MessageRef{}, ErrNotFound
	}
	p.forwards = append(p.forwards, id)
	return kit.MessageRef{MessageID: id}, nil
}

func (p forwardingPlatform) ResendDocument(_ context.Context, msg kit.SourceMessage, _ kit.ChatTarget, fileName string, _ *string) (kit.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fileName == "fail.pdf" {
		return kit.MessageRef{}, errors.New("upload failed")
	}
	p.renamed = append(p.renamed, fileName)
	return kit.MessageRef{MessageID: msg.ID}, nil
}

type note struct {
	To   kit.ChatTarget
	Text string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, to kit.ChatTarget, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{To: to, Text: text})
	return n.err
}

func (n *fakeNotifier) sentTo(to kit.ChatTarget) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, x := range n.notes {
		if x.To == to {
			out = append(out, x.Text)
		}
	}
	return out
}

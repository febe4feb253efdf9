package relay

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaybot/internal/eventbus"
	logx "relaybot/pkg/logx"
)

// Options tunes pacing and policy. Zero fields take defaults (see
// withDefaults). Options can be replaced while a job runs via Apply; the loop
// picks them up on the next message.
type Options struct {
	// CopyDelay is slept after every message, copied or skipped.
	CopyDelay time.Duration
	// ErrorDelay is slept, in addition to CopyDelay, after a failed copy.
	// Negative disables it.
	ErrorDelay time.Duration
	// FloodMargin is added to the platform's retry-after before the single retry.
	FloodMargin time.Duration

	// ProgressEvery posts a progress notice to the destination every N copies.
	// Negative disables it.
	ProgressEvery int
	// LogEvery logs progress every N copies.
	LogEvery int

	RulePolicy RulePolicy

	// Owners, when non-empty, restricts Start to these requester ids.
	Owners []int64
}

func (o Options) withDefaults() Options {
	if o.CopyDelay <= 0 {
		o.CopyDelay = 1500 * time.Millisecond
	}
	if o.ErrorDelay == 0 {
		o.ErrorDelay = 500 * time.Millisecond
	}
	if o.FloodMargin <= 0 {
		o.FloodMargin = time.Second
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = 20
	}
	if o.LogEvery <= 0 {
		o.LogEvery = 5
	}
	if o.RulePolicy == "" {
		o.RulePolicy = RuleLive
	}
	return o
}

// Launcher runs fn on a new goroutine. The app passes its supervisor's Go0 so
// the job shows up in supervisor snapshots.
type Launcher func(name string, fn func(ctx context.Context))

// Deps are the engine's collaborators. Platform is required.
type Deps struct {
	Platform Platform
	Notifier Notifier
	Settings *Settings
	Clock    Clock
	Bus      eventbus.Bus
	Logger   logx.Logger
	Launch   Launcher
}

// Engine owns the single relay job of the process.
//
// The job goroutine is the only writer of counters and status; Start,
// RequestStop and Apply only flip flags under mu. Readers get copies.
type Engine struct {
	platform Platform
	notifier Notifier
	settings *Settings
	clock    Clock
	bus      eventbus.Bus
	log      logx.Logger
	launch   Launcher

	mu    sync.Mutex
	opt   Options
	state State
	stop  bool
	done  chan struct{}
}

func New(deps Deps, opt Options) *Engine {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Logger.IsZero() {
		deps.Logger = logx.Nop()
	}
	return &Engine{
		platform: deps.Platform,
		notifier: deps.Notifier,
		settings: deps.Settings,
		clock:    deps.Clock,
		bus:      deps.Bus,
		log:      deps.Logger,
		launch:   deps.Launch,
		opt:      opt.withDefaults(),
		state:    State{Status: StatusIdle},
	}
}

// Settings returns the live rule store (nil when the engine has none).
func (e *Engine) Settings() *Settings { return e.settings }

// Apply swaps pacing and policy options.
func (e *Engine) Apply(opt Options) {
	e.mu.Lock()
	e.opt = opt.withDefaults()
	e.mu.Unlock()
}

func (e *Engine) options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opt
}

// Handle identifies an accepted job.
type Handle struct {
	id   string
	done <-chan struct{}
}

func (h Handle) ID() string { return h.id }

// Done is closed once the job has finished and the engine is idle again.
func (h Handle) Done() <-chan struct{} { return h.done }

// Start launches spec asynchronously.
//
// It returns ErrAlreadyRunning without touching any state when a job is
// active. When no Launcher is configured the job runs on a plain goroutine
// bound to ctx.
func (e *Engine) Start(ctx context.Context, spec JobSpec) (Handle, error) {
	if e.platform == nil {
		return Handle{}, errors.New("relay: no platform configured")
	}
	if spec.Mode == "" {
		spec.Mode = ModeCopy
	}
	if err := spec.Validate(); err != nil {
		return Handle{}, err
	}
	if spec.Mode == ModeForward {
		if _, ok := e.platform.(Forwarder); !ok {
			return Handle{}, ErrUnsupported
		}
	}

	e.mu.Lock()
	if e.state.Status.Active() {
		e.mu.Unlock()
		return Handle{}, ErrAlreadyRunning
	}
	if len(e.opt.Owners) > 0 && !slices.Contains(e.opt.Owners, spec.RequestedBy) {
		e.mu.Unlock()
		return Handle{}, ErrNotAuthorized
	}
	if spec.Rule.IsZero() && e.settings != nil {
		spec.Rule = e.settings.Rule()
	}

	j := &job{
		id:      uuid.NewString(),
		spec:    spec,
		log:     e.log,
		started: e.clock.Now(),
	}
	j.log = e.log.With(logx.String("job_id", j.id))

	last := e.lastFinished()
	e.state = State{
		JobID:       j.id,
		Status:      StatusRunning,
		Total:       spec.Total(),
		Source:      spec.Source,
		Destination: spec.Destination,
		StartedAt:   j.started,
		Last:        last,
	}
	e.stop = false
	done := make(chan struct{})
	e.done = done
	st := e.state
	e.mu.Unlock()

	j.log.Info("relay job accepted",
		logx.Int64("src_chat", spec.Source.ChatID),
		logx.Int("src_thread", spec.Source.ThreadID),
		logx.Int("start", spec.Start),
		logx.Int("end", spec.End),
		logx.Int64("dst_chat", spec.Destination.ChatID),
		logx.Int("dst_thread", spec.Destination.ThreadID),
		logx.String("mode", string(spec.Mode)),
	)
	e.publish(EventStarted, st)

	run := func(c context.Context) {
		defer close(done)
		e.run(c, j)
	}
	if e.launch != nil {
		e.launch("relay.job", run)
	} else {
		go run(ctx)
	}
	return Handle{id: j.id, done: done}, nil
}

// lastFinished must be called with mu held.
func (e *Engine) lastFinished() *State {
	if e.state.JobID == "" {
		return e.state.Last
	}
	prev := e.state
	prev.Last = nil
	return &prev
}

// RequestStop asks the running job to stop at the next iteration boundary.
// It reports whether a job was running. Repeated calls are harmless.
func (e *Engine) RequestStop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return false
	}
	e.stop = true
	e.state.Status = StatusStopRequested
	return true
}

// Status returns a snapshot of the job state.
func (e *Engine) Status() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	if st.Last != nil {
		cp := *st.Last
		st.Last = &cp
	}
	return st
}

// Wait blocks until the current job (if any) is finished or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) stopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop
}

// update applies fn to the live state under the lock and returns a copy.
func (e *Engine) update(fn func(st *State)) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	return e.state
}

package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/eventbus"
	"relaybot/internal/notifier"
	"relaybot/internal/relay"
	"relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	"relaybot/internal/transport/telegram/router"
	logx "relaybot/pkg/logx"
)

// platform is what the app needs from the chat side: the relay operations
// plus plain text sends for the notifier and the log sink.
type platform interface {
	relay.Platform
	kit.Sender
}

// listener is implemented by platforms that receive chat updates.
type listener interface {
	OnMessage(fn kit.MessageHandler)
	Listen(ctx context.Context) error
}

type chatTitler interface {
	ChatTitle(ctx context.Context, chatID int64) (string, error)
}

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	platform platform
	notif    *notifier.Service
	engine   *relay.Engine

	cleaner    *router.LiveCleaner
	listenOnce sync.Once
}

// NewApp loads the config at cfgPath and wires the Telegram adapter, logging,
// notifier and relay engine. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(acfg, bootLog)
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg, ad)
}

func build(cfgm *config.ConfigManager, cfg *config.Config, p platform) (*App, error) {
	// The sink needs its target before Telegram logging is enabled,
	// otherwise Apply warns about a missing chat.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, p)
	logSvc.SetTelegramTarget(cfg.Telegram.GroupLog, cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	if ad, ok := p.(*telegram.Adapter); ok {
		ad.SetLogger(log.With(logx.String("comp", "telegram")))
	}

	bus := eventbus.New()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, p, log.With(logx.String("comp", "notifier")), bus)

	opt, err := mapRelayOptions(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		platform: p,
		notif:    notif,
	}
	a.engine = relay.New(relay.Deps{
		Platform: p,
		Notifier: notif,
		Settings: relay.NewSettings(relay.TextRule{}),
		Bus:      bus,
		Logger:   log.With(logx.String("comp", "relay")),
		Launch:   a.launch,
	}, opt)
	a.engine.Settings().SetFindReplace(cfg.Relay.Find, cfg.Relay.Replace)

	if cp, ok := p.(router.Platform); ok {
		a.cleaner = router.NewLiveCleaner(cp, a.engine.Settings(), log.With(logx.String("comp", "live_clean")))
		a.cleaner.SetEnabled(cfg.Relay.LiveClean)
	}
	return a, nil
}

// launch runs relay jobs under the app supervisor.
func (a *App) launch(name string, fn func(ctx context.Context)) {
	a.sup.Go0(name, fn)
}

func (a *App) Engine() *relay.Engine { return a.engine }

func (a *App) Notifier() *notifier.Service { return a.notif }

// LiveCleaning reports whether new group messages are being cleaned, which
// keeps the process running without a job.
func (a *App) LiveCleaning() bool { return a.cleaner != nil && a.cleaner.Enabled() }

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the background loops: config watch, reload fan-out and the
// event log.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, err := mapRelayOptions(cfg)
		return err
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		a.logEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	if a.cfgm.Get().Relay.LiveClean {
		a.startListening()
	}

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// startListening begins receiving chat updates for the live cleaner. Polling
// keeps running once started; disabling live cleaning only mutes the handler.
func (a *App) startListening() {
	if a.sup == nil {
		return
	}
	l, ok := a.platform.(listener)
	if !ok || a.cleaner == nil {
		a.log.Warn("live cleaning is not supported by this platform")
		return
	}
	a.listenOnce.Do(func() {
		l.OnMessage(a.cleaner.Handler())
		a.sup.GoRestart("telegram.listen", l.Listen,
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
		a.log.Info("live cleaning listener started")
	})
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if strings.HasPrefix(e.Type, "relay.") && e.Type != relay.EventProgress {
				a.log.Info("event", logx.String("type", e.Type), logx.Any("data", e.Data))
				continue
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// applyConfig pushes a reloaded config into the running components. The
// token and API endpoint only take effect on restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.SetTelegramTarget(next.Telegram.GroupLog, next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if opt, err := mapRelayOptions(next); err != nil {
		a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(opt)
	}
	a.engine.Settings().SetFindReplace(next.Relay.Find, next.Relay.Replace)

	if a.cleaner != nil {
		a.cleaner.SetEnabled(next.Relay.LiveClean)
		if next.Relay.LiveClean {
			a.startListening()
		}
	}

	if prev != nil && (prev.Telegram.Token != next.Telegram.Token || prev.Telegram.APIURL != next.Telegram.APIURL) {
		a.log.Warn("telegram token or api_url changed; restart required")
	}
	if a.engine.Status().Status.Active() && slices.Contains(sections, "job") {
		a.log.Warn("job config changed; it applies to the next run")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// RunJob starts the job of the current config. When the job has no
// destination thread, a topic is created first if create_topic or
// auto_topic asks for one.
func (a *App) RunJob(ctx context.Context) (relay.Handle, error) {
	if a.sup == nil {
		return relay.Handle{}, errors.New("app not started")
	}
	cfg := a.cfgm.Get()
	spec, err := mapJobSpec(cfg)
	if err != nil {
		return relay.Handle{}, err
	}
	if spec.Destination.ThreadID == 0 {
		name := strings.TrimSpace(cfg.Job.CreateTopic)
		if name == "" && cfg.Job.AutoTopic {
			name = a.autoTopicName(ctx, spec.Destination.ChatID)
		}
		if name != "" {
			thread, err := a.platform.CreateTopic(ctx, spec.Destination.ChatID, name)
			if err != nil {
				return relay.Handle{}, fmt.Errorf("create topic %q: %w", name, err)
			}
			a.log.Info("destination topic created",
				logx.Int64("chat", spec.Destination.ChatID),
				logx.String("name", name),
				logx.Int("thread", thread))
			spec.Destination.ThreadID = thread
		}
	}
	return a.engine.Start(ctx, spec)
}

// autoTopicName is "<chat title>_Cleaned", with "Cleaned_Topic" standing in
// for a missing title.
func (a *App) autoTopicName(ctx context.Context, chatID int64) string {
	var title string
	if t, ok := a.platform.(chatTitler); ok {
		var err error
		if title, err = t.ChatTitle(ctx, chatID); err != nil {
			a.log.Warn("chat title lookup failed", logx.Int64("chat", chatID), logx.Err(err))
		}
	}
	if strings.TrimSpace(title) == "" {
		title = "Cleaned_Topic"
	}
	return title + "_Cleaned"
}

// Stop asks a running job to stop, waits for it, then tears down the
// background loops and flushes logs. ctx bounds the whole shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.engine.RequestStop() {
		a.log.Info("waiting for relay job to stop")
	}
	a.step(ctx, "relay", 30*time.Second, a.engine.Wait)
	a.step(ctx, "supervisor", 5*time.Second, a.sup.Stop)

	for _, g := range a.sup.Snapshot().Goroutines {
		if g.Panics > 0 {
			a.log.Warn("goroutine panicked during run",
				logx.String("name", g.Name), logx.Uint64("panics", g.Panics), logx.String("last", g.LastPanic))
		}
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown stage bounded by limit and the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	begin := time.Now()
	c, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	if err := fn(c); err != nil {
		a.log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(begin)))
		return
	}
	a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(begin)))
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const notifyTimeout = 15 * time.Second

type job struct {
	id      string
	spec    JobSpec
	log     logx.Logger
	started time.Time

	copied   int
	skipped  int
	lastPost int
}

type result int

const (
	resultCopied result = iota
	resultMissing
	resultFailed
)

func (e *Engine) run(ctx context.Context, j *job) {
	var fatal error
	func() {
		defer func() {
			if r := recover(); r != nil {
				fatal = &JobError{JobID: j.id, Err: fmt.Errorf("panic: %v", r)}
				j.log.Error("relay job panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		fatal = e.loop(ctx, j)
	}()
	e.finish(ctx, j, fatal)
}

func (e *Engine) loop(ctx context.Context, j *job) error {
	spec := j.spec
	e.notify(ctx, spec.Trigger, fmt.Sprintf("🚀 Starting copy %d → %d (%d msgs) to topic %d",
		spec.Start, spec.End, spec.Total(), spec.Destination.ThreadID))

	for id := spec.Start; id <= spec.End; id++ {
		if e.stopRequested() {
			j.log.Info("relay stop observed", logx.Int("msg_id", id))
			e.notify(ctx, spec.Trigger, "🛑 Stop requested — aborting job.")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &JobError{JobID: j.id, MsgID: id, Err: err}
		}

		opt := e.options()
		e.update(func(st *State) { st.Current = id })

		res, err := e.relayOne(ctx, j, id, opt)
		if err != nil {
			return &JobError{JobID: j.id, MsgID: id, Err: err}
		}
		if res == resultCopied {
			j.copied++
		} else {
			j.skipped++
		}
		st := e.update(func(st *State) {
			st.Copied = j.copied
			st.Skipped = j.skipped
		})
		if res == resultCopied {
			e.afterCopy(ctx, j, opt, st)
		}

		if res == resultFailed && opt.ErrorDelay > 0 {
			if err := e.clock.Sleep(ctx, opt.ErrorDelay); err != nil {
				return &JobError{JobID: j.id, MsgID: id, Err: err}
			}
		}
		if err := e.clock.Sleep(ctx, opt.CopyDelay); err != nil {
			return &JobError{JobID: j.id, MsgID: id, Err: err}
		}
	}
	return nil
}

// relayOne moves a single message. Platform failures are folded into the
// result; only cancellation of ctx comes back as an error.
func (e *Engine) relayOne(ctx context.Context, j *job, id int, opt Options) (result, error) {
	spec := j.spec
	retried := false

	if spec.Mode == ModeForward {
		fw := e.platform.(Forwarder)
		err := e.withRetry(ctx, j, id, opt, &retried, "forward", func() error {
			_, err := fw.ForwardMessage(ctx, spec.Source, id, spec.Destination)
			return err
		})
		return e.classify(ctx, j, id, "forward", err)
	}

	var msg kit.SourceMessage
	err := e.withRetry(ctx, j, id, opt, &retried, "fetch", func() error {
		m, err := e.platform.FetchMessage(ctx, spec.Source, id)
		msg = m
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		j.log.Debug("source message unavailable", logx.Int("msg_id", id), logx.Bool("not_found", errors.Is(err, ErrNotFound)), logx.Err(err))
		return resultMissing, nil
	}
	if msg.ID == 0 {
		msg.ID = id
	}

	rule := spec.Rule
	if opt.RulePolicy == RuleLive && e.settings != nil {
		rule = e.settings.Rule()
	}
	var text *string
	if rule.Matches(msg.Text) {
		if cleaned := rule.Apply(msg.Text); cleaned != msg.Text {
			text = &cleaned
		}
	}

	err = e.withRetry(ctx, j, id, opt, &retried, "copy", func() error {
		return e.deliver(ctx, j, msg, rule, text)
	})
	return e.classify(ctx, j, id, "copy", err)
}

func (e *Engine) classify(ctx context.Context, j *job, id int, op string, err error) (result, error) {
	if err == nil {
		return resultCopied, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if errors.Is(err, ErrNotFound) {
		j.log.Debug("source message unavailable", logx.Int("msg_id", id), logx.String("op", op), logx.Err(err))
		return resultMissing, nil
	}
	j.log.Warn("relay message failed; skipping", logx.Int("msg_id", id), logx.String("op", op), logx.Err(err))
	return resultFailed, nil
}

// withRetry runs fn and, on a rate-limit signal, waits retry-after plus the
// flood margin and runs it exactly once more. *retried is shared by every
// call for the same message so one message never gets a second retry.
func (e *Engine) withRetry(ctx context.Context, j *job, id int, opt Options, retried *bool, op string, fn func() error) error {
	err := fn()
	wait, limited := AsRateLimit(err)
	if !limited || *retried {
		return err
	}
	*retried = true
	pause := wait + opt.FloodMargin
	j.log.Warn("rate limited; retrying once",
		logx.Int("msg_id", id),
		logx.String("op", op),
		logx.Duration("retry_after", wait),
		logx.Duration("pause", pause),
	)
	if err := e.clock.Sleep(ctx, pause); err != nil {
		return err
	}
	return fn()
}

func (e *Engine) deliver(ctx context.Context, j *job, msg kit.SourceMessage, rule TextRule, text *string) error {
	spec := j.spec
	if spec.RenameDocuments && msg.Document.IsPDF() {
		if rn, ok := e.platform.(DocumentRenamer); ok {
			name := rule.Apply(msg.Document.FileName)
			if name != msg.Document.FileName {
				_, err := rn.ResendDocument(ctx, msg, spec.Destination, name, text)
				if err == nil {
					return nil
				}
				if _, limited := AsRateLimit(err); limited || ctx.Err() != nil {
					return err
				}
				j.log.Warn("document rename failed; falling back to copy",
					logx.Int("msg_id", msg.ID), logx.String("file", msg.Document.FileName), logx.Err(err))
			}
		}
	}
	if text != nil && !msg.HasMedia {
		// copy keeps the original text of a plain message; only captions can be overridden
		if strings.TrimSpace(*text) == "" {
			// Telegram rejects an empty message, so the original goes as is
			text = nil
		} else {
			_, err := e.platform.SendMessage(ctx, spec.Destination, *text)
			return err
		}
	}
	_, err := e.platform.CopyMessage(ctx, spec.Source, msg.ID, spec.Destination, text)
	return err
}

func (e *Engine) afterCopy(ctx context.Context, j *job, opt Options, st State) {
	if j.copied%opt.LogEvery == 0 {
		j.log.Info("relay progress",
			logx.Int("copied", j.copied),
			logx.Int("skipped", j.skipped),
			logx.Int("total", st.Total),
		)
	}
	if opt.ProgressEvery > 0 && j.copied-j.lastPost >= opt.ProgressEvery {
		e.notify(ctx, j.spec.Destination, fmt.Sprintf("📦 Progress: %d/%d copied.", j.copied, st.Total))
		j.lastPost = j.copied
		e.publish(EventProgress, st)
	}
}

// finish reports the outcome and always leaves the engine idle.
func (e *Engine) finish(ctx context.Context, j *job, fatal error) {
	defer e.update(func(st *State) {
		final := *st
		final.Last = nil
		*st = State{Status: StatusIdle, Last: &final}
	})

	// The job context may already be cancelled; reports still get a chance.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	now := e.clock.Now()
	spec := j.spec
	if fatal != nil {
		st := e.update(func(st *State) {
			st.Status = StatusFailed
			st.Current = 0
			st.FinishedAt = now
			st.LastError = fatal.Error()
		})
		j.log.Error("relay job failed",
			logx.Err(fatal),
			logx.Int("copied", j.copied),
			logx.Int("skipped", j.skipped),
		)
		e.notify(nctx, spec.Trigger, "❌ Job failed: "+fatal.Error())
		e.publish(EventFailed, st)
		return
	}

	st := e.update(func(st *State) {
		st.Status = StatusCompleted
		st.Current = 0
		st.FinishedAt = now
	})
	j.log.Info("relay job finished",
		logx.Int("copied", j.copied),
		logx.Int("skipped", j.skipped),
		logx.Int("total", st.Total),
		logx.Duration("elapsed", now.Sub(j.started)),
	)
	summary := fmt.Sprintf("✅ Copy job finished. Copied: %d. Skipped: %d. Total: %d.", j.copied, j.skipped, st.Total)
	e.notify(nctx, spec.Trigger, summary)
	if spec.Destination != spec.Trigger {
		e.notify(nctx, spec.Destination, summary)
	}
	e.publish(EventFinished, st)
}

func (e *Engine) notify(ctx context.Context, to kit.ChatTarget, text string) {
	if e.notifier == nil || to.IsZero() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("notifier panicked", logx.Any("panic", r))
		}
	}()
	if err := e.notifier.Notify(ctx, to, text); err != nil {
		e.log.Debug("notification dropped", logx.Int64("chat", to.ChatID), logx.Err(err))
	}
}

package relay

import (
	"fmt"
	"strings"
	"sync"
	"time"

	kit "relaybot/internal/transport"
)

// Mode selects how each message reaches the destination.
type Mode string

const (
	// ModeCopy fetches, rewrites and copies (media preserved, no "forwarded from").
	ModeCopy Mode = "copy"
	// ModeForward forwards messages verbatim; the text rule is not applied.
	ModeForward Mode = "forward"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCopy:
		return ModeCopy, nil
	case ModeForward:
		return ModeForward, nil
	default:
		return "", fmt.Errorf("unknown relay mode %q (want copy|forward)", s)
	}
}

// RulePolicy decides when a running job reads the find/replace rule.
type RulePolicy string

const (
	RuleLive     RulePolicy = "live"
	RuleSnapshot RulePolicy = "snapshot"
)

func ParseRulePolicy(s string) (RulePolicy, error) {
	switch RulePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RuleLive:
		return RuleLive, nil
	case RuleSnapshot:
		return RuleSnapshot, nil
	default:
		return "", fmt.Errorf("unknown rule policy %q (want live|snapshot)", s)
	}
}

// JobSpec is the immutable input of one run.
type JobSpec struct {
	Source      kit.ChatTarget
	Start       int
	End         int
	Destination kit.ChatTarget

	// Rule is the find/replace snapshot taken at launch. When zero and the
	// engine has Settings, Start fills it from Settings.
	Rule TextRule

	// Trigger receives job-level replies (start, stop, summary, failure).
	// Optional.
	Trigger kit.ChatTarget

	// RequestedBy is checked against the engine owner list, when one is set.
	RequestedBy int64

	Mode            Mode
	RenameDocuments bool
}

func (s JobSpec) Total() int { return s.End - s.Start + 1 }

func (s JobSpec) Validate() error {
	if s.Start < 1 || s.End < s.Start {
		return fmt.Errorf("%w: %d-%d", ErrInvalidRange, s.Start, s.End)
	}
	if s.Source.IsZero() {
		return fmt.Errorf("relay: source chat is not set")
	}
	if s.Destination.IsZero() {
		return fmt.Errorf("relay: destination chat is not set")
	}
	if _, err := ParseMode(string(s.Mode)); err != nil {
		return err
	}
	return nil
}

type Status string

const (
	StatusIdle          Status = "idle"
	StatusRunning       Status = "running"
	StatusStopRequested Status = "stop_requested"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Active reports whether a job occupies the engine.
func (s Status) Active() bool { return s == StatusRunning || s == StatusStopRequested }

// State is a read-only snapshot of the engine's job state.
type State struct {
	JobID  string
	Status Status

	Copied  int
	Skipped int
	Total   int
	Current int // message id being processed (0 when idle)

	Source      kit.ChatTarget
	Destination kit.ChatTarget

	StartedAt  time.Time
	FinishedAt time.Time
	LastError  string

	// Last is the final state of the previous run. Only set while idle.
	Last *State
}

// Settings holds the process-lifetime find/replace rule. Safe for
// concurrent use; there is no persistence.
type Settings struct {
	mu   sync.RWMutex
	rule TextRule
}

func NewSettings(rule TextRule) *Settings {
	return &Settings{rule: rule}
}

// SetFindReplace replaces the current rule. "-" as replace means "remove",
// i.e. an empty replacement.
func (s *Settings) SetFindReplace(find, replace string) {
	if strings.TrimSpace(replace) == "-" {
		replace = ""
	}
	s.mu.Lock()
	s.rule = TextRule{Find: find, Replace: replace}
	s.mu.Unlock()
}

func (s *Settings) Rule() TextRule {
	if s == nil {
		return TextRule{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rule
}

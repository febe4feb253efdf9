package relay

import (
	"time"

	"relaybot/internal/eventbus"
)

const (
	EventStarted  = "relay.started"
	EventProgress = "relay.progress"
	EventFinished = "relay.finished"
	EventFailed   = "relay.failed"
)

// JobEvent is the payload of relay.* events.
type JobEvent struct {
	JobID   string        `json:"job_id"`
	Status  Status        `json:"status"`
	Copied  int           `json:"copied"`
	Skipped int           `json:"skipped"`
	Total   int           `json:"total"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (e *Engine) publish(typ string, st State) {
	if e.bus == nil {
		return
	}
	ev := JobEvent{
		JobID:   st.JobID,
		Status:  st.Status,
		Copied:  st.Copied,
		Skipped: st.Skipped,
		Total:   st.Total,
		Error:   st.LastError,
	}
	now := e.clock.Now()
	if !st.StartedAt.IsZero() {
		ev.Elapsed = now.Sub(st.StartedAt)
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

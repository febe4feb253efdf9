// Package relay implements the bulk message-relay job engine.
//
// An Engine runs at most one job at a time. A job walks an inclusive range of
// message IDs in a source chat (optionally a forum topic), rewrites text and
// captions with a literal find/replace rule, and copies each message into a
// destination chat/topic through a Platform.
//
// # Pacing
//
// The loop is strictly sequential. After every message, copied or skipped,
// the engine sleeps for the configured copy delay; this is the main guard
// against platform throttling. A rate-limit signal from the platform makes the
// engine wait for the signaled duration plus a safety margin and retry the
// same message once. A second failure skips the message.
//
// # Stop and failure
//
// RequestStop is cooperative and is observed at the top of each iteration.
// Whatever happens inside the loop, including panics, the engine always
// returns to StatusIdle when the job ends.
//
// # Rules
//
// With RuleLive (the default) the find/replace rule is re-read from Settings
// before every message, so changes made while a job runs apply to the
// remaining messages. RuleSnapshot pins the rule captured at Start.
package relay

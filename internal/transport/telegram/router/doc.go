// Package router handles messages the bot receives while it runs. The only
// consumer today is the live cleaner, which rewrites new group messages with
// the relay's find/replace rule.
package router

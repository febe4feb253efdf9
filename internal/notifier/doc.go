// Package notifier delivers short operator-facing messages (job banners,
// progress notices, summaries) through a transport.Sender.
//
// Delivery is synchronous so messages to one chat keep their order, but it is
// rate limited, retried with backoff and deduplicated within a window. A
// small in-memory history of sent messages is kept for inspection.
package notifier

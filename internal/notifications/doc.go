// Package notifications delivers capture events via ntfy.
//
// NewService returns an ntfy publisher when a topic is configured and a no-op
// otherwise. Per-event toggles from the [notifications] section suppress
// events before any HTTP request is made, so callers publish unconditionally.
package notifications

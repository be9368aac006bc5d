// Package notifications delivers workflow events via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Individual events can be muted in the
// [notifications] config section; the test event is always delivered.
package notifications

// Package notifications pushes sync events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured.
// Callers publish an Event with a loosely typed Payload; per-event toggles in
// config decide which events are actually delivered.
package notifications

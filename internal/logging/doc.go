// Package logging wraps log/slog with the handlers and field conventions used
// across castsync.
//
// Console output is rendered as a short header line followed by indented
// key/value lines; JSON output is one object per line with ts/level/msg keys.
// When a log directory is configured the console stream is duplicated to a
// JSON log file through a fan-out handler.
package logging

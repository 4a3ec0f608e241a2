// Package services defines shared utilities consumed by the ingestion state
// machine and the external integrations it drives.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, source IDs, item IDs, and stage names
//     for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (rate limited vs transient vs configuration) with errors.Is.
//   - A small command Executor abstraction that keeps yt-dlp and ffmpeg
//     invocations testable.
//
// Subpackages wrap individual collaborators (yt-dlp, ffmpeg, the LLM,
// channel RSS feeds, thumbnail downloads).
package services

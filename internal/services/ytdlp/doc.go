// Package ytdlp wraps the yt-dlp CLI for channel listing, item detail
// lookups and audio downloads.
//
// Every invocation waits on a shared request pacer and runs under the
// configured timeout. Rate limiting reported by the upstream site surfaces
// as services.ErrRateLimited; other failures are services.ErrExternalTool.
package ytdlp

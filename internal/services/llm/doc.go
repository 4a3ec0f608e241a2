// Package llm generates item metadata through an OpenAI-compatible chat
// completion API (OpenRouter by default).
//
// Client handles transport: JSON-only completions, tolerant payload
// extraction, and retries with exponential backoff on 408/429/5xx and
// network timeouts. Terminal failures are tagged with services markers:
// 429 becomes services.ErrRateLimited so callers can halt, 401/403 become
// services.ErrConfiguration.
//
// Generator fills the prompt template with the video URL, decodes the
// recognized metadata fields and keeps the raw response. A circuit breaker
// stops calling a failing provider for a cooldown period.
package llm

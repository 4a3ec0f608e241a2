// Package workflow coordinates sync and refresh passes across sources.
//
// The Orchestrator selects enabled sources in ID order, lists each channel
// URL lazily, de-duplicates items by ID and runs them through an
// ingest.Machine one at a time. A result asking to halt stops the current
// source; the feed is refreshed for every visited source regardless. Only
// one pass runs at a time per Orchestrator, and callers that share a store
// across processes also hold a runlock.
//
// Per-source gates are loaded from the store at the start of each pass so a
// CLI run and the daemon see the same quota state.
package workflow

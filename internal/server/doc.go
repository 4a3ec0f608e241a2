// Package server exposes the HTTP trigger endpoint.
//
// POST or GET on /sync and /sync/rss start a sync or feed-only pass in the
// background and answer 202 immediately. Only one pass runs at a time: a
// second trigger while one is active answers 429. The guard covers this
// process (busy flag and the orchestrator's own state) and other processes
// through the shared run lock. /health, /status and /metrics are read-only.
package server

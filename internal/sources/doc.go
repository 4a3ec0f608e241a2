// Package sources loads per-source definitions from YAML files.
//
// Each file in the sources directory describes one channel group: the
// channel URLs to list, the title matcher tokens, AI and quota settings and
// the podcast channel metadata used when rendering the feed. Definitions are
// validated on load; the Registry holds the current set and the Watcher
// reloads it when files change.
package sources

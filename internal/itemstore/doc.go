// Package itemstore persists per-item completion records and rate limiter
// state in an object store under a per-source key prefix.
//
// Records live at <prefix><id>.json and limiter state at
// <prefix>state/<resource>.limiter. A record is complete when it is a
// terminal rejection, a terminal not-friendly decision, or carries a
// published media URL; anything else is reprocessed on the next pass.
package itemstore

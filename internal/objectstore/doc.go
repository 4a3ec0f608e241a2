// Package objectstore provides the durable key/value surface that item
// records, limiter state, media files and published feeds are written to.
//
// Store implementations: S3-compatible buckets (minio-go), a local directory
// tree, a SQLite table, an embedded Badger database, and an in-memory map for
// tests. Keys are slash-separated paths; Get reports missing keys with
// services.ErrNotFound.
package objectstore

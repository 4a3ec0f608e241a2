// Package ingest runs one discovered item through the ingestion pipeline.
//
// A Machine walks an item from discovery through the title filter, optional
// metadata generation and media processing until it is published, persisted
// as a terminal skip, deferred by a rate gate or failed. The record is always
// written last so a crash mid-pipeline leaves the item eligible for
// reprocessing on the next pass. Staging workspaces are removed on every
// exit path.
package ingest

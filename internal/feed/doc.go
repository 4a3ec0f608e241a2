// Package feed turns stored item records into a podcast feed.
//
// Assemble is pure: it recomputes descriptions from the current template,
// drops records that must not be published (rejected, not podcast
// friendly, or missing media) and orders the rest newest first with ties
// broken by ID, so equal inputs always render byte-identical feeds. Render
// produces RSS 2.0 with the iTunes namespace; Refresher lists a source's
// records, assembles, renders and publishes in one step.
package feed

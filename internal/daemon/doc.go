// Package daemon coordinates the long-running castsync process.
//
// It wires the HTTP trigger server, the optional interval scheduler, source
// definition hot-reload and staging housekeeping into a single lifecycle,
// with a file lock preventing multiple instances. Passes themselves live in
// the workflow package; the daemon only decides when they start.
package daemon

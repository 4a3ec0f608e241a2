// Package main hosts the castsync CLI entrypoint and command graph.
//
// Commands load the TOML configuration, wire collaborators through the app
// package and run passes in-process. The same lock file the daemon uses
// keeps a manual sync from overlapping a scheduled one.
package main

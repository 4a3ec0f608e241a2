// Package preflight provides readiness checks for the binaries, directories
// and services castsync depends on.
//
// These checks run in two contexts:
//   - Sync and refresh entry points call RunAll before a pass. A failed check
//     aborts the pass before any item is touched.
//   - The CLI "castsync status" command uses the individual checks to display
//     service health.
package preflight

// Package preflight provides readiness checks for the filesystem paths,
// external binaries and translation backends reelscribe depends on.
//
// The daemon runs RunAll before starting its worker pools and refuses to
// start when a check fails, so a misconfigured host does not burn every
// file's attempt budget. The CLI "status" command shows the same results.
package preflight

// Package main implements the reelscribe command line.
//
// `reelscribe run` hosts the daemon: worker pools, the stuck-work reclaimer
// and the read-only status API. Every other command opens the status
// database directly, so registering files, inspecting progress and
// retrying failures work whether or not the daemon is running.
package main

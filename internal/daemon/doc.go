// Package daemon coordinates the long-running reelscribe process.
//
// It wires configuration, the status store, the workflow manager and the
// read-only status API into a single lifecycle with flock-based locking to
// prevent two schedulers from sharing one database. Individual stages live in
// their own packages; the daemon only handles startup, shutdown and the HTTP
// query surface.
package daemon

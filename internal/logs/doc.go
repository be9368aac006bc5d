// Package logs reads the daemon log for `reelscribe logs`.
//
// Stream prints the last N lines of a log file and, in follow mode, keeps
// polling for appended lines. The daemon starts a new log file per run and
// points reelscribe.log at it, so a follower reopens the path whenever it
// resolves to a different file or the file shrinks.
package logs

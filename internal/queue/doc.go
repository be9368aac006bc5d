// Package queue persists per-file stage status in SQLite and is the single
// point of coordination between workers.
//
// Every (file, stage) pair has exactly one stage_status row. Workers take
// ownership through Claim, which moves a row to in_progress with a single
// conditional UPDATE and stamps a fresh claim token; Complete, Fail and
// Heartbeat only succeed while that token is still on the row, so a worker
// whose claim was reclaimed cannot overwrite the new owner's outcome.
// ReclaimStuck returns in_progress rows with stale heartbeats to pending.
//
// The store also holds the append-only error history and the subtitle cues
// shared by the translation stages. Cue identity (index, start, end, source
// text) is write-once; triggers in schema.sql reject later updates.
//
// Schema changes bump schemaVersion in schema.go; an older database must be
// cleared to adopt the new schema.
package queue

// Package api defines wire-format types and converters for the HTTP status
// API and the CLI's JSON output. It translates status store models into
// transport-friendly DTOs so consumers never couple to internal types.
//
// # Key Types
//
// MediaFile, StageStatus and ErrorRecord mirror one file, one of its stage
// rows and one error history entry.
//
// Summary carries counts by file state, by stage and by target language.
//
// WorkflowStatus reports scheduler pools, last error and stage health.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums (queue.State, queue.Stage) are exposed
// as lowercase strings. Timestamps use RFC3339 with milliseconds and are
// omitted when unset.
package api

// Package services defines shared utilities consumed by the workflow stage
// handlers and the backend integrations.
//
// Key responsibilities:
//   - Context helpers that stamp file IDs, stage names, worker labels and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify, the single
//     place where a stage error becomes a retry or terminal outcome.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services

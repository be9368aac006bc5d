// Package workflow runs the processing pipeline on top of the status store.
//
// The Manager owns one worker pool per stage (transcription, and one
// translation and evaluation pool per target language). A dispatcher per
// pool claims ready work in batches, hands claims to workers, and backs off
// while the pool is idle. Workers heartbeat while a handler runs and write
// the outcome back with the claim token, classifying failures through
// services.Classify and scheduling retries with a RetryPolicy.
//
// The Reclaimer sweeps in_progress rows whose heartbeat stopped and returns
// them to the claimable pool, which keeps the pipeline live after crashes.
package workflow

// Package subtitles holds the cue model, SRT encoding and the
// segment-preserving translator.
//
// The translator detects the language of every cue in contiguous batches,
// translates only the cues that are not already in the target language, and
// reassembles the result by cue index so the output sequence has exactly the
// same count and timings as the source. Batched backend responses whose item
// count does not match the request fall back to one call per cue.
package subtitles

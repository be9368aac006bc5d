// Package transcription implements the transcription stage: it probes the
// input against provider limits, runs WhisperX, filters hallucinated cues,
// normalizes timings and persists the source cues together with a
// source.srt artifact. A file whose cues are already stored is resumed
// without calling WhisperX again.
package transcription

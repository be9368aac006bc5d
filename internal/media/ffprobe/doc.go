// Package ffprobe provides a typed wrapper around ffprobe JSON output and
// the provider limit checks applied before transcription.
//
// Primary entry points:
//   - Inspect: executes ffprobe and returns parsed Result
//   - Result.CheckLimits: rejects files longer or larger than the provider accepts
package ffprobe

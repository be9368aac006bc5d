// Package whisperx is the transcription backend. It extracts the audio track
// with ffmpeg, runs WhisperX through uvx and converts the JSON segments into
// subtitle cues.
//
// Failures of the external tools are reported as services.ErrExternalTool,
// which the scheduler retries; inputs ffmpeg cannot decode are reported as
// services.ErrPermanent.
package whisperx
